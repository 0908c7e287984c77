// Package reunite is the public API for embedding the Reunite lost & found
// server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := reunite.New(
//	    reunite.WithVersion(version),
//	    reunite.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: reunite (root) imports
// internal/*, but internal/* never imports reunite (root). Public interfaces
// (Mailer) are standalone; adapters to internal types live here because this
// is the only file that sees both sides of the boundary.
package reunite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/reuniteapp/reunite/internal/auth"
	"github.com/reuniteapp/reunite/internal/config"
	"github.com/reuniteapp/reunite/internal/notify"
	"github.com/reuniteapp/reunite/internal/ratelimit"
	"github.com/reuniteapp/reunite/internal/server"
	"github.com/reuniteapp/reunite/internal/service/matching"
	"github.com/reuniteapp/reunite/internal/storage"
	"github.com/reuniteapp/reunite/internal/telemetry"
	"github.com/reuniteapp/reunite/migrations"
)

// Mailer delivers a single notification email. The default implementation
// speaks SMTP; replace it with WithMailer.
type Mailer interface {
	Send(to, subject, body string) error
}

// App is the Reunite server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	broker       *server.Broker // nil when no notify connection
	dispatcher   *notify.Dispatcher
	limiter      ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Reunite server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("reunite starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	// Run embedded migrations, then any extra migration filesystems.
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Verify critical tables exist after migration.
	var schemaOK bool
	if err := db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'reports')`,
	).Scan(&schemaOK); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("critical table 'reports' does not exist after migration")
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Email dispatch — external override takes priority over SMTP config.
	var mailer notify.Mailer
	if o.mailer != nil {
		mailer = &mailerAdapter{m: o.mailer}
	} else {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPassword,
			From: cfg.SMTPFrom,
		}, logger)
		if cfg.SMTPHost == "" {
			logger.Info("smtp: no host configured, notification emails are logged only")
		}
	}
	dispatcher := notify.NewDispatcher(mailer, 256, logger)

	// SSE broker and broadcaster (require the LISTEN/NOTIFY connection).
	var broker *server.Broker
	var broadcaster matching.Broadcaster
	if db.HasNotifyConn() {
		broker = server.NewBroker(db, cfg.EventBufferSize, logger)
		broadcaster = server.NewPgBroadcaster(db)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	// Matching service.
	matchOpts := []matching.Option{
		matching.WithNotifier(dispatcher),
		matching.WithCandidateLimit(cfg.CandidateLimit),
		matching.WithThreshold(cfg.ScoreThreshold),
		matching.WithBaseURL(cfg.BaseURL),
	}
	if broadcaster != nil {
		matchOpts = append(matchOpts, matching.WithBroadcaster(broadcaster))
	}
	matchSvc := matching.New(db, logger, matchOpts...)

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.RateLimitPerMinute)/60.0, cfg.RateLimitPerMinute)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"per_minute", cfg.RateLimitPerMinute)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// Create HTTP server.
	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		MatchSvc:            matchSvc,
		Logger:              logger,
		Limiter:             limiter,
		Broker:              broker,
		Broadcaster:         broadcaster,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		broker:       broker,
		dispatcher:   dispatcher,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts all background goroutines and the HTTP server, then blocks until
// ctx is cancelled or a fatal server error occurs. On return, Shutdown is
// called automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start()
	if a.broker != nil {
		go a.broker.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown performs a graceful shutdown:
// (1) stop accepting HTTP requests and drain in-flight,
// (2) drain queued notification emails.
// It then closes the database pool and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("reunite shutting down")

	httpCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	a.dispatcher.Stop()

	if closer, ok := a.limiter.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("reunite stopped")
	return nil
}

// mailerAdapter wraps a public Mailer to satisfy notify.Mailer.
type mailerAdapter struct {
	m Mailer
}

func (a *mailerAdapter) Send(to, subject, body string) error {
	return a.m.Send(to, subject, body)
}
