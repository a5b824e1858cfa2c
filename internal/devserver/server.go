// Package devserver is a small in-memory Fieldlink backend for local
// development and tests. It issues signed JWTs as access tokens and opaque
// rotating refresh tokens. The client never inspects token contents; JWTs
// are used here only so the server can validate what it issued.
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fieldlink/fieldlink-go/internal/client/models"
	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/logging"
)

// DefaultAccessTTL is the access-token lifetime unless configured
// otherwise.
const DefaultAccessTTL = 15 * time.Minute

// Config adjusts server behavior. Zero fields take defaults.
type Config struct {
	AccessTTL time.Duration
	Secret    []byte // JWT signing secret; random when empty
}

type account struct {
	user     models.User
	password string

	// anyPassword marks seeded demo accounts that accept any password.
	anyPassword bool
}

// Server holds all state in memory.
type Server struct {
	cfg Config
	log logging.Logger

	mu       sync.Mutex
	accounts map[string]*account // by email
	sessions map[string]string   // refresh token -> email
	projects []models.Project
}

func New(cfg Config, log logging.Logger) *Server {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = common.GenerateRandByteArray(32)
	}

	s := &Server{
		cfg:      cfg,
		log:      log.With("component", "devserver"),
		accounts: map[string]*account{},
		sessions: map[string]string{},
	}
	s.seed()
	return s
}

// seed installs the demo account and sample projects.
func (s *Server) seed() {
	s.accounts["user@example.com"] = &account{
		user: models.User{
			ID:        uuid.NewString(),
			Email:     "user@example.com",
			FirstName: "Dana",
			LastName:  "Ortiz",
			Company:   "Ortiz Construction",
		},
		anyPassword: true,
	}
	s.projects = []models.Project{
		{ID: uuid.NewString(), Name: "Riverside Tower", Address: "12 Quay St", Status: "active"},
		{ID: uuid.NewString(), Name: "Hillcrest School", Address: "4 Summit Rd", Status: "active"},
		{ID: uuid.NewString(), Name: "Depot Refit", Address: "88 Yard Ln", Status: "closed"},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/v1/projects", s.requireAuth(s.handleProjects))
	return mux
}

type sessionGrant struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         models.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || (!acc.anyPassword && acc.password != req.Password) {
		httpError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.grant(r.Context(), w, acc.user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Company   string `json:"company"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	email := strings.ToLower(req.Email)
	s.mu.Lock()
	if _, exists := s.accounts[email]; exists {
		s.mu.Unlock()
		httpError(w, http.StatusConflict, "account already exists")
		return
	}
	acc := &account{
		user: models.User{
			ID:        uuid.NewString(),
			Email:     email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Company:   req.Company,
		},
		password: req.Password,
	}
	s.accounts[email] = acc
	s.mu.Unlock()

	s.grant(r.Context(), w, acc.user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	email, ok := s.sessions[req.RefreshToken]
	if ok {
		// Rotate: the old refresh token is single-use.
		delete(s.sessions, req.RefreshToken)
	}
	acc := s.accounts[email]
	s.mu.Unlock()

	if !ok || acc == nil {
		httpError(w, http.StatusUnauthorized, "refresh token rejected")
		return
	}

	s.grant(r.Context(), w, acc.user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	delete(s.sessions, req.RefreshToken)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	projects := make([]models.Project, len(s.projects))
	copy(projects, s.projects)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, projects)
}

// grant issues a fresh access/refresh token pair for the user.
func (s *Server) grant(ctx context.Context, w http.ResponseWriter, user models.User) {
	access, err := s.issueAccessToken(user)
	if err != nil {
		s.log.Error(ctx, "failed to sign access token", "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	refresh := uuid.NewString()
	s.mu.Lock()
	s.sessions[refresh] = user.Email
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, sessionGrant{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
		User:         user,
	})
}

func (s *Server) issueAccessToken(user models.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.Secret)
}

// requireAuth validates the bearer token on protected routes.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			httpError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
			return s.cfg.Secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			httpError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
