// Package cli is the interactive terminal front end of the Fieldlink
// client. It wires the composition root (secure store, token manager,
// session machine, refresh coordinator, request pipeline) and runs a small
// REPL on top of the services layer.
package cli

import (
	"bufio"
	"context"
	"net/http"
	"os"

	"github.com/fieldlink/fieldlink-go/internal/client/api"
	"github.com/fieldlink/fieldlink-go/internal/client/config"
	"github.com/fieldlink/fieldlink-go/internal/client/refresh"
	"github.com/fieldlink/fieldlink-go/internal/client/securestore"
	"github.com/fieldlink/fieldlink-go/internal/client/services"
	"github.com/fieldlink/fieldlink-go/internal/client/session"
	"github.com/fieldlink/fieldlink-go/internal/client/tokens"
	"github.com/fieldlink/fieldlink-go/internal/client/transport"
	"github.com/fieldlink/fieldlink-go/internal/logging"
	"github.com/fieldlink/fieldlink-go/internal/timex"

	_ "modernc.org/sqlite"
)

type App struct {
	config   *config.Config
	store    *securestore.SQLiteStore
	machine  *session.Machine
	auth     *services.AuthService
	projects *services.ProjectService
	log      logging.Logger
	reader   *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.Default()

	deviceSecret, err := loadOrCreateDeviceSecret(cfg.StorePath + ".key")
	if err != nil {
		return nil, err
	}

	store, err := securestore.Open(ctx, cfg.StorePath, deviceSecret)
	if err != nil {
		return nil, err
	}

	clock := timex.NewClock()
	machine := session.NewMachine(log)
	manager := tokens.NewManager(store, clock)

	plain := &http.Client{Timeout: cfg.RequestTimeout}
	pipelined := &http.Client{Timeout: cfg.RequestTimeout}

	apiClient := api.NewClient(cfg.ServerBaseURL, pipelined, plain, log)

	coordinator := refresh.NewCoordinator(refresh.Config{
		MaxRetries:      cfg.RefreshMaxRetries,
		Leeway:          cfg.RefreshLeeway,
		ProactiveWindow: cfg.ProactiveWindow,
	}, apiClient, manager, machine, clock, log)

	// The pipeline, watchdog, and auth service reference each other, so the
	// service pointer is captured before it is built.
	var auth *services.AuthService

	pipelined.Transport = transport.NewPipeline(nil, manager, coordinator,
		func() { auth.ForceUnauthorized("session_expired") },
		transport.Config{MaxRetries: cfg.MaxRetries, BackoffBase: cfg.BackoffBase},
		clock, log)

	watchdog := session.NewWatchdog(clock, cfg.SessionTimeout,
		func() { auth.ForceUnauthorized("session_timeout") }, log)

	auth = services.NewAuthService(apiClient, manager, machine, coordinator, watchdog, log)

	return &App{
		config:   cfg,
		store:    store,
		machine:  machine,
		auth:     auth,
		projects: services.NewProjectService(apiClient, log),
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

// Run resolves the startup session state and enters the REPL.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	if err := a.auth.Bootstrap(ctx); err != nil {
		a.log.Warn(ctx, "startup session restore failed", "error", err)
	}

	a.Root(ctx)
	return nil
}

func (a *App) isLoggedIn() bool {
	return a.machine.Current().Status == session.StatusAuthenticated
}
