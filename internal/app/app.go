// Package app wires the engine's subsystems together and manages their
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quintal-io/responder/internal/agents"
	"github.com/quintal-io/responder/internal/alerts"
	"github.com/quintal-io/responder/internal/alerts/email"
	"github.com/quintal-io/responder/internal/alerts/pager"
	"github.com/quintal-io/responder/internal/alerts/sms"
	"github.com/quintal-io/responder/internal/alerts/webhook"
	"github.com/quintal-io/responder/internal/api"
	"github.com/quintal-io/responder/internal/config"
	"github.com/quintal-io/responder/internal/detect"
	"github.com/quintal-io/responder/internal/history"
	"github.com/quintal-io/responder/internal/history/memstore"
	historypg "github.com/quintal-io/responder/internal/history/postgres"
	"github.com/quintal-io/responder/internal/monitor"
	"github.com/quintal-io/responder/internal/pkg/ctxlog"
	"github.com/quintal-io/responder/internal/pkg/httputil"
	"github.com/quintal-io/responder/internal/pkg/metrics"
	"github.com/quintal-io/responder/internal/pkg/postgres"
	"github.com/quintal-io/responder/internal/procedure"
	"github.com/quintal-io/responder/internal/respond"
)

// Option customizes the integration points consumed by the engine.
type Option func(*options)

type options struct {
	probes  []detect.Probe
	steps   map[string]respond.StepFunc
	senders []alerts.Sender
}

// WithProbes supplies the detection probes.
func WithProbes(probes ...detect.Probe) Option {
	return func(o *options) { o.probes = append(o.probes, probes...) }
}

// WithStep registers a procedure step executor.
func WithStep(name string, fn respond.StepFunc) Option {
	return func(o *options) {
		if o.steps == nil {
			o.steps = make(map[string]respond.StepFunc)
		}
		o.steps[name] = fn
	}
}

// WithSenders adds delivery channels beyond the configured ones.
func WithSenders(senders ...alerts.Sender) Option {
	return func(o *options) { o.senders = append(o.senders, senders...) }
}

// App is the assembled engine instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	pool          *agents.Pool
	distributor   *alerts.Distributor
	loop          *monitor.Loop
	server        *http.Server
	metricsServer *http.Server

	bgCancel context.CancelFunc
	bgDone   sync.WaitGroup
}

// New assembles the engine from configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := initLogger(cfg.Log)
	bgCtx, bgCancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	a := &App{
		config:   cfg,
		logger:   logger,
		bgCancel: bgCancel,
	}

	store, err := a.setupStore(cfg, bgCtx)
	if err != nil {
		bgCancel()
		return nil, err
	}

	detector := detect.New(detect.Config{
		ProbeTimeout:    cfg.Detector.ProbeTimeout,
		AcceptThreshold: cfg.Detector.AcceptThreshold,
	}, o.probes...)

	registry := procedure.NewRegistry()
	if err := procedure.Seed(registry); err != nil {
		bgCancel()
		return nil, fmt.Errorf("seed procedures: %w", err)
	}

	a.pool = agents.NewDefaultPool(agents.PoolConfig{
		DefaultSLA:        cfg.Agents.DefaultSLA,
		SLAOverrides:      cfg.Agents.SLAOverrides,
		Overflow:          overflowPolicy(cfg.Agents.OverflowPolicy),
		QueueDepth:        cfg.Agents.QueueDepth,
		HardTimeoutFactor: cfg.Agents.HardTimeoutFactor,
	})

	steps := respond.NewStepRegistry()
	for name, fn := range o.steps {
		if err := steps.Register(name, fn); err != nil {
			bgCancel()
			return nil, fmt.Errorf("register step %q: %w", name, err)
		}
	}

	coordinator := respond.New(registry, a.pool, steps)

	senders, err := buildSenders(cfg.Alerting)
	if err != nil {
		bgCancel()
		return nil, err
	}
	senders = append(senders, o.senders...)

	table := alerts.DefaultTierTable(cfg.Alerting.EscalateAfter, cfg.Alerting.EscalateAfterCritical)
	a.distributor = alerts.NewDistributor(table, senders...)

	a.loop = monitor.New(monitor.Config{
		MinInterval:     cfg.Monitor.MinInterval,
		MaxInterval:     cfg.Monitor.MaxInterval,
		TrailingWindow:  cfg.Monitor.TrailingWindow,
		WindowCapacity:  cfg.Monitor.WindowCapacity,
		RecentIncidents: cfg.Monitor.RecentIncidents,
	}, detector, coordinator, a.distributor, store)

	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           a.setupRouter(store),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	a.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.pool.Start(bgCtx)
	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()
		a.loop.Run(bgCtx)
	}()

	return a, nil
}

func (a *App) setupStore(cfg *config.Config, bgCtx context.Context) (history.Store, error) {
	if cfg.Database.URL == "" {
		a.logger.Info("no database configured, using in-memory history store")
		return memstore.New(), nil
	}

	if err := historypg.Migrate(cfg.Database.URL); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db

	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()
		a.collectDBMetrics(bgCtx)
	}()

	return historypg.NewStore(db), nil
}

func buildSenders(cfg config.AlertingConfig) ([]alerts.Sender, error) {
	var senders []alerts.Sender

	emailSender, err := email.NewSender(email.Config{
		Enabled:      cfg.Email.Enabled,
		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUser:     cfg.Email.SMTPUser,
		SMTPPassword: cfg.Email.SMTPPassword,
		FromAddress:  cfg.Email.FromAddress,
		Domain:       cfg.Email.Domain,
	})
	if err != nil {
		return nil, fmt.Errorf("email sender: %w", err)
	}
	senders = append(senders, emailSender)

	smsSender, err := sms.NewSender(sms.Config{
		Enabled:    cfg.SMS.Enabled,
		GatewayURL: cfg.SMS.GatewayURL,
		APIKey:     cfg.SMS.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("sms sender: %w", err)
	}
	senders = append(senders, smsSender)

	pagerSender, err := pager.NewSender(pager.Config{
		Enabled:    cfg.Pager.Enabled,
		EventsURL:  cfg.Pager.EventsURL,
		RoutingKey: cfg.Pager.RoutingKey,
	})
	if err != nil {
		return nil, fmt.Errorf("pager sender: %w", err)
	}
	senders = append(senders, pagerSender)

	if cfg.Webhook.URL != "" {
		webhookSender, err := webhook.NewSender(webhook.Config{
			URL:           cfg.Webhook.URL,
			Token:         cfg.Webhook.Token,
			RatePerSecond: cfg.Webhook.RateLimit,
			Burst:         cfg.Webhook.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("webhook sender: %w", err)
		}
		senders = append(senders, webhookSender)
	}

	return senders, nil
}

func (a *App) setupRouter(store history.Store) *chi.Mux {
	r := chi.NewRouter()

	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	handler := api.NewHandler(a.loop, store, a.distributor)

	r.Get("/healthz", handler.Healthz)
	r.Get("/readyz", handler.Readyz)
	r.Get("/version", handler.Versionz)

	r.Route("/api/v1", func(r chi.Router) {
		handler.RegisterRoutes(r)

		if a.config.Auth.JWTSecret != "" {
			r.Group(func(r chi.Router) {
				r.Use(httputil.AuthMiddleware(a.config.Auth.JWTSecret))
				handler.RegisterProtectedRoutes(r)
			})
		} else {
			a.logger.Warn("auth disabled, acknowledgment endpoint is open")
			handler.RegisterProtectedRoutes(r)
		}
	})

	return r
}

// Run serves HTTP until the listener fails or Shutdown is called.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops the loop, roles and timers, then drains both HTTP
// servers in parallel.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.bgCancel()
	a.bgDone.Wait()
	a.pool.Stop()
	a.distributor.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()
	wg.Wait()

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Loop returns the monitoring loop instance.
func (a *App) Loop() *monitor.Loop {
	return a.loop
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func overflowPolicy(s string) agents.OverflowPolicy {
	if s == "reject" {
		return agents.OverflowReject
	}
	return agents.OverflowQueue
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
