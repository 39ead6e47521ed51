package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/tabsession/internal/devserver/http"
	"github.com/aussiebroadwan/tabsession/internal/devserver/service"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application is the stub remote service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	signer *jwtx.EdDSASigner

	tokenService        *service.TokenService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// Option customises an Application.
type Option func(*Application)

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// New creates an Application with all dependencies initialized.
func New(cfg Config, opts ...Option) (*Application, error) {
	app := &Application{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "devserver",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	if err := app.initKeys(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the router so tests can mount it on httptest.
func (app *Application) Handler() http.Handler { return app.router }

// Users exposes the account service for seeding and administration.
func (app *Application) Users() *service.UserService { return app.userService }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	ln, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return app.Serve(ln)
}

// Serve runs on ln until SIGINT/SIGTERM or a server error.
func (app *Application) Serve(ln net.Listener) error {
	app.housekeepingService.Start()

	app.logger.Info("devserver starting", "addr", ln.Addr().String(), "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.Serve(ln)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		// ErrServerClosed means Shutdown was called elsewhere and owns cleanup
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down devserver...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	var err error
	if err = app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "err", err)
		if cerr := app.server.Close(); cerr != nil {
			app.logger.Error("error closing server", "err", cerr)
		}
	}

	app.housekeepingService.Stop()

	app.logger.Info("devserver stopped")
	return err
}

func (app *Application) initKeys() error {
	pemKey, err := cryptox.LoadOrGenerateEd25519Key(app.cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	signer, err := jwtx.NewSignerEdDSA(app.cfg.KeyID, pemKey)
	if err != nil {
		return fmt.Errorf("failed to initialize signer: %w", err)
	}
	app.signer = signer

	if app.cfg.KeyFile == "" {
		app.logger.Warn("using ephemeral signing key, tokens will not survive a restart")
	}
	return nil
}

func (app *Application) initServices() error {
	app.tokenService = service.NewTokenService(
		app.signer,
		app.cfg.Issuer,
		app.cfg.AccessTTL,
		app.cfg.RefreshTTL,
	)
	app.userService = service.NewUserService(cryptox.PasswordHasher{Pepper: app.cfg.Pepper})

	app.housekeepingService = service.NewHousekeepingService(
		app.tokenService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	seed := app.cfg.SeedUser
	if seed.Username == "" {
		return nil
	}

	u, err := app.userService.Create(context.Background(), service.NewUser{
		Username:    seed.Username,
		Password:    seed.Password,
		DisplayName: seed.DisplayName,
		Email:       seed.Email,
		Authorities: seed.Authorities,
		TOTPSecret:  seed.TOTPSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	app.logger.Info("seed user created",
		"user_id", u.ID,
		"username", u.Username,
		"totp", seed.TOTPSecret != "",
	)
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		jwtx.NewVerifierEdDSA(app.cfg.KeyID, app.signer.PublicKey(), app.cfg.Issuer),
		BuildVersion,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
