// Package refresh implements the refresh coordinator: the sole owner of
// token refresh attempts. Concurrent refresh requests, whether triggered by
// a 401, the proactive timer, or a foreground check, collapse into a single
// network call whose result all callers share.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fieldlink/fieldlink-go/internal/client/session"
	"github.com/fieldlink/fieldlink-go/internal/client/tokens"
	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/logging"
	"github.com/fieldlink/fieldlink-go/internal/timex"
)

// Backend performs the refresh network call. newRefresh may be empty if the
// backend does not rotate refresh tokens.
type Backend interface {
	RefreshSession(ctx context.Context, refreshToken string) (access string, newRefresh string, expiresIn time.Duration, err error)
}

// Config bounds the coordinator's behavior. Zero fields take defaults.
type Config struct {
	// MaxRetries is the number of consecutive failed attempts after which a
	// full logout is forced. Default 3.
	MaxRetries int

	// Leeway is subtracted from the token lifetime when arming the
	// proactive refresh timer, and is also its floor. Default 30s.
	Leeway time.Duration

	// ProactiveWindow is how close to expiry the foreground check considers
	// the token worth refreshing. Default 5m.
	ProactiveWindow time.Duration
}

const (
	defaultMaxRetries      = 3
	defaultLeeway          = 30 * time.Second
	defaultProactiveWindow = 5 * time.Minute
)

// Coordinator serializes refresh attempts. At most one attempt is in flight
// at any instant; callers arriving while one runs receive that attempt's
// result.
type Coordinator struct {
	cfg     Config
	backend Backend
	manager *tokens.Manager
	machine *session.Machine
	clock   timex.Clock
	sched   *timex.Scheduler
	log     logging.Logger

	group singleflight.Group

	mu      sync.Mutex
	retries int
}

// NewCoordinator wires the coordinator to the token manager's save/clear
// hooks so that every credential write re-arms the proactive refresh and
// every clear cancels it.
func NewCoordinator(cfg Config, backend Backend, manager *tokens.Manager, machine *session.Machine, clock timex.Clock, log logging.Logger) *Coordinator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultLeeway
	}
	if cfg.ProactiveWindow <= 0 {
		cfg.ProactiveWindow = defaultProactiveWindow
	}

	c := &Coordinator{
		cfg:     cfg,
		backend: backend,
		manager: manager,
		machine: machine,
		clock:   clock,
		sched:   timex.NewScheduler(clock),
		log:     log.With("component", "refresh"),
	}
	manager.SetScheduleHooks(c.scheduleAt, c.sched.Cancel)
	return c
}

// Refresh runs (or joins) a refresh attempt and returns its result. The
// attempt itself is not cancellable by any single caller; ctx contributes
// values only.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(context.WithoutCancel(ctx))
	})
	return err
}

// CheckProactive is the app-foreground hook: when the token is within the
// proactive window of its expiry, it triggers a refresh. Failures are
// logged and left for the next trigger; terminal failures have already
// forced a logout by the time they are returned.
func (c *Coordinator) CheckProactive(ctx context.Context) error {
	expiry, ok := c.manager.TokenExpiry()
	if !ok {
		return nil
	}
	if c.clock.Now().Before(expiry.Add(-c.cfg.ProactiveWindow)) {
		return nil
	}

	c.log.Debug(ctx, "token near expiry on foreground check", "expiry", expiry)
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn(ctx, "foreground refresh failed", "error", err)
		return err
	}
	return nil
}

func (c *Coordinator) doRefresh(ctx context.Context) error {
	refreshToken, ok := c.manager.RefreshToken()
	if !ok {
		return common.ErrSessionExpired
	}

	c.machine.RefreshStarted()

	access, newRefresh, expiresIn, err := c.backend.RefreshSession(ctx, refreshToken)
	if err == nil {
		err = c.manager.UpdateTokens(ctx, access, newRefresh, expiresIn)
	}

	if err != nil {
		return c.failed(ctx, err)
	}

	c.mu.Lock()
	c.retries = 0
	c.mu.Unlock()

	c.machine.RefreshSucceeded()
	c.log.Info(ctx, "token refreshed", "expires_in", expiresIn)
	return nil
}

// failed applies the retry policy: a rejected refresh token ends the
// session immediately; other failures count toward MaxRetries, forcing a
// logout at the threshold and otherwise propagating to the caller.
func (c *Coordinator) failed(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrSessionExpired) || errors.Is(err, common.ErrUnauthorized) {
		c.log.Warn(ctx, "refresh token rejected, ending session")
		c.forceLogout(ctx)
		return fmt.Errorf("%w: %w", common.ErrTokenRefreshFailed, err)
	}

	c.mu.Lock()
	c.retries++
	attempt := c.retries
	c.mu.Unlock()

	c.log.Warn(ctx, "token refresh failed", "attempt", attempt, "max", c.cfg.MaxRetries, "error", err)

	if attempt >= c.cfg.MaxRetries {
		c.forceLogout(ctx)
		return fmt.Errorf("%w: %w", common.ErrTokenRefreshFailed, err)
	}

	c.machine.RefreshAbandoned()
	return err
}

func (c *Coordinator) forceLogout(ctx context.Context) {
	c.mu.Lock()
	c.retries = 0
	c.mu.Unlock()

	if err := c.manager.ClearTokens(ctx); err != nil {
		c.log.Error(ctx, "failed to clear tokens after refresh failure", "error", err)
	}
	c.machine.LoggedOut("refresh failed")
}

// scheduleAt arms the proactive refresh for expiry minus the leeway, with
// the leeway as floor. Runs as the manager's onSaved hook.
func (c *Coordinator) scheduleAt(expiry time.Time) {
	d := expiry.Sub(c.clock.Now()) - c.cfg.Leeway
	if d < c.cfg.Leeway {
		d = c.cfg.Leeway
	}
	c.sched.Schedule(d, c.proactiveFire)
}

// proactiveFire is the timer callback. A non-terminal failure re-arms the
// timer so the proactive path keeps retrying until the retry counter forces
// a logout.
func (c *Coordinator) proactiveFire() {
	ctx := context.Background()
	err := c.Refresh(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, common.ErrTokenRefreshFailed) || errors.Is(err, common.ErrSessionExpired) {
		return
	}
	c.log.Warn(ctx, "proactive refresh failed, retrying later", "in", c.cfg.Leeway, "error", err)
	c.sched.Schedule(c.cfg.Leeway, c.proactiveFire)
}
