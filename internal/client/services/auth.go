// Package services contains the application-facing use cases: they
// orchestrate the API client, token record manager, session state machine,
// and refresh coordinator, and are what the UI layer calls.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldlink/fieldlink-go/internal/client/api"
	"github.com/fieldlink/fieldlink-go/internal/client/models"
	"github.com/fieldlink/fieldlink-go/internal/client/securestore"
	"github.com/fieldlink/fieldlink-go/internal/client/session"
	"github.com/fieldlink/fieldlink-go/internal/client/tokens"
	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/logging"
)

// AuthAPI is the subset of the backend client the auth service needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (api.SessionGrant, error)
	Register(ctx context.Context, req api.RegisterRequest) (api.SessionGrant, error)
	Logout(ctx context.Context, refreshToken string) error
}

// ProactiveChecker triggers a foreground token-freshness check.
type ProactiveChecker interface {
	CheckProactive(ctx context.Context) error
}

// Lifecycle receives app foreground/background transitions.
type Lifecycle interface {
	EnterForeground()
	EnterBackground()
}

// AuthService implements the session lifecycle use cases.
type AuthService struct {
	api      AuthAPI
	manager  *tokens.Manager
	machine  *session.Machine
	checker  ProactiveChecker
	watchdog Lifecycle
	log      logging.Logger
}

func NewAuthService(apiClient AuthAPI, manager *tokens.Manager, machine *session.Machine,
	checker ProactiveChecker, watchdog Lifecycle, log logging.Logger) *AuthService {
	return &AuthService{
		api:      apiClient,
		manager:  manager,
		machine:  machine,
		checker:  checker,
		watchdog: watchdog,
		log:      log.With("component", "auth"),
	}
}

// Login authenticates against the backend and installs the session. The
// session only becomes Authenticated after the token record is persisted;
// a storage failure fails the login and leaves the state unchanged.
func (s *AuthService) Login(ctx context.Context, email, password string) (models.User, error) {
	grant, err := s.api.Login(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}
	return s.install(ctx, grant)
}

// Register creates an account and logs it in.
func (s *AuthService) Register(ctx context.Context, req api.RegisterRequest) (models.User, error) {
	grant, err := s.api.Register(ctx, req)
	if err != nil {
		return models.User{}, err
	}
	return s.install(ctx, grant)
}

func (s *AuthService) install(ctx context.Context, grant api.SessionGrant) (models.User, error) {
	expiresIn := time.Duration(grant.ExpiresIn) * time.Second
	if err := s.manager.SaveTokens(ctx, grant.AccessToken, grant.RefreshToken, expiresIn, grant.User); err != nil {
		return models.User{}, fmt.Errorf("persist session: %w", err)
	}
	s.machine.LoggedIn(grant.User)
	s.log.Info(ctx, "session established", "email", grant.User.Email, "expires_in", expiresIn)
	return grant.User, nil
}

// Logout revokes the session on the backend when it can, then always clears
// the local token record and moves the session to Unauthenticated.
// Biometric credentials survive a logout.
func (s *AuthService) Logout(ctx context.Context) error {
	if refresh, ok := s.manager.RefreshToken(); ok {
		if err := s.api.Logout(ctx, refresh); err != nil {
			s.log.Warn(ctx, "server-side logout failed, clearing local session anyway", "error", err)
		}
	}

	err := s.manager.ClearTokens(ctx)
	s.machine.LoggedOut("logout")
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ForceUnauthorized tears the session down without a backend call. It backs
// the pipeline's irrecoverable-401 hook and the background watchdog.
func (s *AuthService) ForceUnauthorized(reason string) {
	ctx := context.Background()
	if err := s.manager.ClearTokens(ctx); err != nil {
		s.log.Error(ctx, "failed to clear token record", "reason", reason, "error", err)
	}
	s.machine.LoggedOut(reason)
}

// Bootstrap resolves the startup session state from the secure store, then
// runs a proactive freshness check when a session was restored.
func (s *AuthService) Bootstrap(ctx context.Context) error {
	record, err := s.manager.Restore(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.machine.ResolveStartup(nil)
			return nil
		}
		s.machine.ResolveStartup(nil)
		return fmt.Errorf("restore session: %w", err)
	}

	s.machine.ResolveStartup(&record.User)
	if err := s.checker.CheckProactive(ctx); err != nil {
		s.log.Warn(ctx, "startup token check failed", "error", err)
	}
	return nil
}

// EnterForeground reports the app returning to the foreground: the
// background watchdog is disarmed and token freshness is checked.
func (s *AuthService) EnterForeground(ctx context.Context) {
	s.watchdog.EnterForeground()
	if err := s.checker.CheckProactive(ctx); err != nil {
		s.log.Warn(ctx, "foreground token check failed", "error", err)
	}
}

// EnterBackground reports the app moving to the background and arms the
// inactivity watchdog.
func (s *AuthService) EnterBackground() {
	s.watchdog.EnterBackground()
}

// SaveBiometricCredentials stores the login credentials behind the strong
// authentication gate for later biometric re-login.
func (s *AuthService) SaveBiometricCredentials(ctx context.Context, email, password string) error {
	return s.manager.SaveBiometricCredentials(ctx, email, password)
}

// HasBiometricCredentials reports whether a biometric re-login is possible.
func (s *AuthService) HasBiometricCredentials(ctx context.Context) (bool, error) {
	return s.manager.HasBiometricCredentials(ctx)
}

// BiometricLogin re-authenticates with the stored credentials. auth carries
// the strong-authentication secret that unlocks the gated entry.
func (s *AuthService) BiometricLogin(ctx context.Context, auth *securestore.AuthContext) (models.User, error) {
	creds, err := s.manager.LoadBiometricCredentials(ctx, auth)
	if err != nil {
		return models.User{}, err
	}
	return s.Login(ctx, creds.Email, creds.Password)
}

// ClearBiometricCredentials removes the stored credentials.
func (s *AuthService) ClearBiometricCredentials(ctx context.Context) error {
	return s.manager.ClearBiometricCredentials(ctx)
}

// CurrentState exposes the session state for the UI.
func (s *AuthService) CurrentState() session.State {
	return s.machine.Current()
}

// Subscribe registers a session-state observer.
func (s *AuthService) Subscribe(fn func(session.State)) (unsubscribe func()) {
	return s.machine.Subscribe(fn)
}
