// Package api is the HTTP client for the Fieldlink backend. Authenticated
// calls go through the request pipeline; the auth endpoints (login,
// register, refresh) use a plain client so a refresh can never recurse into
// the 401 interception that triggered it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldlink/fieldlink-go/internal/client/models"
	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/logging"
)

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client // pipeline-wrapped, for authenticated calls
	auth    *http.Client // plain, for the auth endpoints
	log     logging.Logger
}

// NewClient builds a Client. pipelined must be the pipeline-decorated HTTP
// client; plain must bypass the pipeline.
func NewClient(baseURL string, pipelined, plain *http.Client, log logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    pipelined,
		auth:    plain,
		log:     log.With("component", "api"),
	}
}

// SessionGrant is the backend's response to a successful login, register,
// or refresh call.
type SessionGrant struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"` // seconds
	User         models.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates with email and password. A 401 from the backend maps
// to common.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (SessionGrant, error) {
	var grant SessionGrant
	err := c.postJSON(ctx, c.auth, "/api/v1/auth/login", loginRequest{Email: email, Password: password}, &grant)
	if errors.Is(err, common.ErrUnauthorized) {
		return SessionGrant{}, fmt.Errorf("login: %w", common.ErrInvalidCredentials)
	}
	if err != nil {
		return SessionGrant{}, fmt.Errorf("login: %w", err)
	}
	return grant, nil
}

// Register creates an account and returns a session for it.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (SessionGrant, error) {
	var grant SessionGrant
	err := c.postJSON(ctx, c.auth, "/api/v1/auth/register", req, &grant)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("register: %w", err)
	}
	return grant, nil
}

// RefreshSession exchanges a refresh token for new tokens. A 401 means the
// refresh token was rejected and maps to common.ErrSessionExpired. The
// returned refresh token may be empty when the backend does not rotate.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (string, string, time.Duration, error) {
	var grant SessionGrant
	err := c.postJSON(ctx, c.auth, "/api/v1/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &grant)
	if errors.Is(err, common.ErrUnauthorized) {
		return "", "", 0, fmt.Errorf("refresh: %w", common.ErrSessionExpired)
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("refresh: %w", err)
	}
	return grant.AccessToken, grant.RefreshToken, time.Duration(grant.ExpiresIn) * time.Second, nil
}

// Logout revokes the refresh token on the backend. Best-effort: the caller
// clears local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if err := c.postJSON(ctx, c.auth, "/api/v1/auth/logout", logoutRequest{RefreshToken: refreshToken}, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ListProjects fetches the caller's projects through the authenticated
// pipeline.
func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/projects", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var projects []models.Project
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		return nil, fmt.Errorf("list projects: decode: %w", err)
	}
	return projects, nil
}

// postJSON sends a JSON POST and decodes the JSON response into out (when
// out is non-nil).
func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return unwrapURLError(err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d", common.ErrUnknown, resp.StatusCode)
	default:
		return fmt.Errorf("%w: server returned %d", common.ErrUnknown, resp.StatusCode)
	}
}

// unwrapURLError strips the url.Error wrapper so pipeline and context
// sentinels survive errors.Is checks, and classifies raw transport
// failures from the plain client.
func unwrapURLError(err error) error {
	for _, sentinel := range []error{
		common.ErrUnauthorized, common.ErrNetworkUnavailable, common.ErrTimeout,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", common.ErrNetworkUnavailable, err)
}
