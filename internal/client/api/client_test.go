package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlink/fieldlink-go/internal/client/transport"
	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/devserver"
	"github.com/fieldlink/fieldlink-go/internal/logging"
	"github.com/fieldlink/fieldlink-go/internal/timex"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.Default())
}

// memTokens is a minimal token holder implementing the pipeline's
// TokenSource, fed by a refresher closure in the tests.
type memTokens struct {
	mu    sync.Mutex
	token string
}

func (m *memTokens) GetAccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *memTokens) set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

type funcRefresher func(ctx context.Context) error

func (f funcRefresher) Refresh(ctx context.Context) error { return f(ctx) }

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := devserver.New(devserver.Config{}, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newPlainClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	return NewClient(ts.URL, ts.Client(), ts.Client(), testLogger())
}

func TestLogin_ReturnsGrant(t *testing.T) {
	c := newPlainClient(t, newBackend(t))

	grant, err := c.Login(context.Background(), "user@example.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.AccessToken)
	assert.NotEmpty(t, grant.RefreshToken)
	assert.Equal(t, int64(devserver.DefaultAccessTTL.Seconds()), grant.ExpiresIn)
	assert.Equal(t, "user@example.com", grant.User.Email)
}

func TestLogin_BadCredentialsMapToInvalidCredentials(t *testing.T) {
	c := newPlainClient(t, newBackend(t))

	_, err := c.Login(context.Background(), "nobody@example.com", "pw")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestRegister_CreatesSession(t *testing.T) {
	c := newPlainClient(t, newBackend(t))

	grant, err := c.Register(context.Background(), RegisterRequest{
		Email:     "fresh@example.com",
		Password:  "pw",
		FirstName: "Fresh",
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh@example.com", grant.User.Email)
	assert.NotEmpty(t, grant.AccessToken)
}

func TestRefreshSession_RotatesTokens(t *testing.T) {
	c := newPlainClient(t, newBackend(t))
	ctx := context.Background()

	grant, err := c.Login(ctx, "user@example.com", "pw")
	require.NoError(t, err)

	access, refresh, expiresIn, err := c.RefreshSession(ctx, grant.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEqual(t, grant.RefreshToken, refresh)
	assert.Equal(t, time.Duration(grant.ExpiresIn)*time.Second, expiresIn)
}

func TestRefreshSession_RejectionMapsToSessionExpired(t *testing.T) {
	c := newPlainClient(t, newBackend(t))

	_, _, _, err := c.RefreshSession(context.Background(), "revoked-token")
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	c := newPlainClient(t, newBackend(t))
	ctx := context.Background()

	grant, err := c.Login(ctx, "user@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx, grant.RefreshToken))

	_, _, _, err = c.RefreshSession(ctx, grant.RefreshToken)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestListProjects_ThroughPipeline(t *testing.T) {
	ts := newBackend(t)
	tokens := &memTokens{}

	refresher := funcRefresher(func(ctx context.Context) error {
		return errors.New("no refresh expected")
	})
	pipeline := transport.NewPipeline(ts.Client().Transport, tokens, refresher, nil,
		transport.Config{}, timex.NewClock(), testLogger())
	pipelined := &http.Client{Transport: pipeline}

	c := NewClient(ts.URL, pipelined, ts.Client(), testLogger())
	ctx := context.Background()

	grant, err := c.Login(ctx, "user@example.com", "pw")
	require.NoError(t, err)
	tokens.set(grant.AccessToken)

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "Riverside Tower", projects[0].Name)
}

func TestListProjects_StaleTokenRefreshedOnce(t *testing.T) {
	ts := newBackend(t)
	tokens := &memTokens{}

	var c *Client
	var refreshes int
	var refreshToken string
	refresher := funcRefresher(func(ctx context.Context) error {
		refreshes++
		access, newRefresh, _, err := c.RefreshSession(ctx, refreshToken)
		if err != nil {
			return err
		}
		tokens.set(access)
		refreshToken = newRefresh
		return nil
	})
	pipeline := transport.NewPipeline(ts.Client().Transport, tokens, refresher, nil,
		transport.Config{}, timex.NewClock(), testLogger())
	c = NewClient(ts.URL, &http.Client{Transport: pipeline}, ts.Client(), testLogger())

	ctx := context.Background()
	grant, err := c.Login(ctx, "user@example.com", "pw")
	require.NoError(t, err)
	refreshToken = grant.RefreshToken

	// A token the server never issued draws a 401, which the pipeline
	// resolves with a single refresh-and-retry.
	tokens.set("stale-token")

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 3)
	assert.Equal(t, 1, refreshes)
}

func TestUnreachableBackendMapsToNetworkUnavailable(t *testing.T) {
	ts := newBackend(t)
	url := ts.URL
	ts.Close()

	c := NewClient(url, http.DefaultClient, http.DefaultClient, testLogger())

	_, err := c.Login(context.Background(), "user@example.com", "pw")
	assert.ErrorIs(t, err, common.ErrNetworkUnavailable)
}
