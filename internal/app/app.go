// Package app assembles the engine from configuration: stores, cache, event
// bus, command and query handlers. The server and the admin CLI share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/certiva/certiva-engine/config"
	"github.com/certiva/certiva-engine/internal/application/command"
	"github.com/certiva/certiva-engine/internal/application/eventhandler"
	"github.com/certiva/certiva-engine/internal/application/query"
	"github.com/certiva/certiva-engine/internal/application/saga"
	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/coursepolicy"
	"github.com/certiva/certiva-engine/internal/infrastructure/messaging"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/memory"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/postgres"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/redis"
	"github.com/certiva/certiva-engine/internal/infrastructure/render"
	"github.com/certiva/certiva-engine/internal/infrastructure/scheduler"
	"github.com/certiva/certiva-engine/internal/infrastructure/scheduler/jobs"
	"github.com/certiva/certiva-engine/internal/interface/http/handlers"
	"github.com/certiva/certiva-engine/pkg/logger"
	"github.com/certiva/certiva-engine/pkg/retry"
)

// App holds the wired engine.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	// DB is nil with the memory storage driver.
	DB *postgres.Connection

	// Redis is nil when disabled or unreachable at startup.
	Redis *redis.Cache

	Bus       *messaging.InMemoryEventBus
	Publisher shared.EventPublisher

	Enrollments  enrollment.Repository
	Uncertified  enrollment.UncertifiedFinder
	Certificates certificate.Repository
	Policies     course.PolicyRepository
	Thresholds   *coursepolicy.Provider

	// Renderer is nil when rendering is disabled.
	Renderer certificate.Renderer

	// Commands
	Enroll       *command.EnrollHandler
	Submit       *command.SubmitAssessmentHandler
	Generate     *command.GenerateCertificateHandler
	UpsertPolicy *command.UpsertCoursePolicyHandler

	// Queries
	Registry         *query.GetCertificateHandler
	Verify           *query.VerifyCertificateHandler
	EnrollmentsQuery *query.EnrollmentsHandler
	ListCertificates *query.ListCertificatesHandler
	Render           *query.RenderCertificateHandler

	// Certification issues certificates for completed enrollments; the
	// CourseCompleted subscription and Reconciler both drive it.
	Certification *saga.CertificationSaga
	Reconciler    *jobs.ReconcileCertificatesJob

	// Scheduler is nil when reconciliation is disabled. The caller starts it.
	Scheduler *scheduler.Scheduler

	closers []func()
}

// NewLogger builds the process logger from observability settings.
func NewLogger(cfg config.ObservabilityConfig, appName, env string) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	opts.Format = cfg.LogFormat
	return logger.New(opts).With(
		logger.String("app", appName),
		logger.String("env", env),
	)
}

// New wires the engine. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initCache(ctx)

	if err := a.initPolicies(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.initEvents(); err != nil {
		a.Close()
		return nil, err
	}

	a.initHandlers()

	if err := a.subscribe(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.initScheduler(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// STORES
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) initStores(ctx context.Context) error {
	if !a.Config.UsesPostgres() {
		a.Log.Warn("using in-memory storage; data is lost on exit")
		enrollments := memory.NewEnrollmentRepository()
		certificates := memory.NewCertificateRepository()
		a.Enrollments = enrollments
		a.Uncertified = memory.NewUncertifiedFinder(enrollments, certificates)
		a.Certificates = certificates
		a.Policies = memory.NewCoursePolicyRepository()
		return nil
	}

	db, err := OpenDatabase(ctx, a.Config.Database, a.Log)
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, func() {
		a.Log.Info("closing database connection")
		db.Close()
	})

	if a.Config.Database.AutoMigrate {
		if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Log.Info("database schema is up to date")
	}

	enrollments := postgres.NewEnrollmentRepository(db)
	a.Enrollments = enrollments
	a.Uncertified = enrollments
	a.Certificates = postgres.NewCertificateRepository(db)
	a.Policies = postgres.NewCoursePolicyRepository(db)
	return nil
}

// OpenDatabase connects to PostgreSQL, retrying while the server starts up.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*postgres.Connection, error) {
	var conn *postgres.Connection

	attempt := 0
	err := retry.StartupRetrier().Do(ctx, func(ctx context.Context) error {
		attempt++
		var err error
		if cfg.URL != "" {
			conn, err = postgres.NewConnectionFromURL(ctx, cfg.URL)
		} else {
			conn, err = postgres.NewConnection(ctx, postgresConfig(cfg))
		}
		if err != nil {
			log.Warn("database not ready", logger.Attempt(attempt), logger.Err(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established")
	return conn, nil
}

func postgresConfig(cfg config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.Host = cfg.Host
	pc.Port = cfg.Port
	pc.User = cfg.User
	pc.Password = cfg.Password
	pc.Database = cfg.Name
	pc.SSLMode = cfg.SSLMode
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		pc.ConnectTimeout = cfg.ConnectTimeout
	}
	return pc
}

// ─────────────────────────────────────────────────────────────────────────────
// CACHE
// ─────────────────────────────────────────────────────────────────────────────

// initCache connects to Redis. Redis is optional: failure is logged and the
// engine runs without the cache and fan-out.
func (a *App) initCache(ctx context.Context) {
	rc := a.Config.Redis
	if rc.Disabled {
		a.Log.Info("redis disabled")
		return
	}

	cfg := redis.DefaultConfig()
	cfg.Host = rc.Host
	cfg.Port = rc.Port
	cfg.Password = rc.Password
	cfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cfg.PoolSize = rc.PoolSize
	}
	if rc.DialTimeout > 0 {
		cfg.DialTimeout = rc.DialTimeout
	}
	if rc.ReadTimeout > 0 {
		cfg.ReadTimeout = rc.ReadTimeout
	}
	if rc.WriteTimeout > 0 {
		cfg.WriteTimeout = rc.WriteTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cache, err := redis.NewCache(connectCtx, cfg)
	if err != nil {
		a.Log.Warn("failed to connect to redis, cache and fan-out disabled",
			logger.String("addr", cfg.Addr()),
			logger.Err(err),
		)
		return
	}

	a.Redis = cache
	a.closers = append(a.closers, func() { _ = cache.Close() })
	a.Log.Info("redis connection established", logger.String("addr", cfg.Addr()))
}

// ─────────────────────────────────────────────────────────────────────────────
// COURSE POLICIES
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) initPolicies() error {
	opts := []coursepolicy.Option{
		coursepolicy.WithRepository(a.Policies),
		coursepolicy.WithLogger(a.Log),
	}

	if path := a.Config.Certificates.PoliciesFile; path != "" {
		f, err := coursepolicy.LoadFile(path)
		if err != nil {
			return err
		}
		opts = append(opts, coursepolicy.WithFile(f))
		a.Log.Info("loaded course policy file", logger.String("path", path), logger.Int("courses", len(f.Courses)))
	}

	a.Thresholds = coursepolicy.NewProvider(a.Config.Certificates.DefaultPassThreshold, opts...)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EVENTS
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) initEvents() error {
	if !a.Config.Features.Enabled(config.FeatureCertificateEvents) {
		a.Publisher = shared.NopPublisher{}
		return nil
	}

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.WorkerPoolSize = a.Config.Certificates.EventWorkers
	busCfg.Logger = a.Log
	a.Bus = messaging.NewInMemoryEventBus(busCfg)
	a.closers = append(a.closers, func() { _ = a.Bus.Close() })
	a.Publisher = a.Bus

	if a.Redis == nil {
		return nil
	}

	fanout, err := messaging.NewRedisFanout(messaging.RedisFanoutConfig{
		Local:   a.Bus,
		Client:  a.Redis,
		Channel: redis.PubSubChannel,
		Logger:  a.Log,
	})
	if err != nil {
		return err
	}
	a.Publisher = fanout
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// HANDLERS
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) initHandlers() {
	cfg := a.Config

	var cache query.CertificateCache
	if a.Redis != nil && cfg.Features.Enabled(config.FeatureVerificationCache) {
		cache = redis.NewCertificateCache(a.Redis, cfg.Redis.CertificateTTL, a.Log)
	}

	if cfg.Features.Enabled(config.FeatureCertificateRendering) {
		opts := render.DefaultOptions()
		opts.Width = cfg.Certificates.RenderWidth
		opts.Height = cfg.Certificates.RenderHeight
		opts.Issuer = cfg.Certificates.IssuerName
		a.Renderer = render.NewPNGRenderer(opts)
	}

	a.Enroll = command.NewEnrollHandler(a.Enrollments, a.Publisher, a.Log)
	a.Submit = command.NewSubmitAssessmentHandler(a.Enrollments, a.Thresholds, a.Publisher, a.Log,
		command.SubmitAssessmentHandlerConfig{MaxConflictRetries: cfg.Certificates.MaxConflictRetries})
	a.Generate = command.NewGenerateCertificateHandler(a.Enrollments, a.Certificates, a.Publisher, a.Log,
		command.GenerateCertificateHandlerConfig{})
	a.UpsertPolicy = command.NewUpsertCoursePolicyHandler(a.Policies, a.Log)

	a.Registry = query.NewGetCertificateHandler(a.Certificates, cache, a.Log)
	a.Verify = query.NewVerifyCertificateHandler(a.Registry, a.Log)
	a.EnrollmentsQuery = query.NewEnrollmentsHandler(a.Enrollments, a.Certificates)
	a.ListCertificates = query.NewListCertificatesHandler(a.Certificates)
	a.Render = query.NewRenderCertificateHandler(a.Registry, a.Renderer, a.Log)

	a.Certification = saga.NewCertificationSaga(a.Generate, a.Log, saga.DefaultCertificationConfig())
	a.Reconciler = jobs.NewReconcileCertificatesJob(a.Uncertified, a.Certification, a.Log,
		jobs.ReconcileCertificatesConfig{Grace: cfg.Reconcile.Grace, BatchSize: cfg.Reconcile.BatchSize})
}

func (a *App) subscribe() error {
	if a.Bus == nil {
		return nil
	}

	cfg := eventhandler.DefaultCertificateIssuedConfig()
	cfg.WarmCache = a.Redis != nil && a.Config.Features.Enabled(config.FeatureVerificationCache)

	onIssued := eventhandler.NewOnCertificateIssuedHandler(a.Registry, a.Log, cfg)
	if err := a.Bus.Subscribe(shared.EventCertificateIssued, onIssued.Handle); err != nil {
		return err
	}

	if !a.Config.Features.Enabled(config.FeatureAutoIssue) {
		return nil
	}
	return a.Bus.Subscribe(shared.EventCourseCompleted, a.Certification.Handle)
}

// ─────────────────────────────────────────────────────────────────────────────
// SCHEDULER
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) initScheduler() error {
	rc := a.Config.Reconcile
	if !rc.Enabled {
		a.Log.Info("certificate reconciliation disabled")
		return nil
	}

	schedule, err := scheduler.ParseSchedule(rc.Schedule)
	if err != nil {
		return err
	}

	cfg := scheduler.DefaultSchedulerConfig()
	cfg.Logger = a.Log
	s := scheduler.NewScheduler(cfg)
	if err := s.Register(a.Reconciler, schedule); err != nil {
		return err
	}

	a.Scheduler = s
	a.closers = append(a.closers, func() {
		if s.IsRunning() {
			_ = s.Stop()
		}
	})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// HEALTH & LIFECYCLE
// ─────────────────────────────────────────────────────────────────────────────

// HealthChecker returns checks for the wired dependencies. PostgreSQL is
// required; Redis only degrades health.
func (a *App) HealthChecker() *handlers.CompositeHealthChecker {
	hc := handlers.NewCompositeHealthChecker(a.Config.App.Version)
	hc.SetTimeout(2 * time.Second)
	if a.DB != nil {
		hc.AddCheck("postgres", handlers.NewPingCheck(a.DB))
	}
	if a.Redis != nil {
		hc.AddCheck("redis", handlers.NewOptionalCheck(handlers.NewPingCheck(a.Redis)))
	}
	return hc
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
