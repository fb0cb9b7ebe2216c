package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/categorization"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/features"
	importhandler "github.com/FACorreiaa/mpesa-insights/internal/domain/import/handler"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/import/normalizer"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/import/parser"
	importservice "github.com/FACorreiaa/mpesa-insights/internal/domain/import/service"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/insights"
	insightshandler "github.com/FACorreiaa/mpesa-insights/internal/domain/insights/handler"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/search"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/session"
	"github.com/FACorreiaa/mpesa-insights/internal/domain/tasks"
	"github.com/FACorreiaa/mpesa-insights/pkg/config"
	"github.com/FACorreiaa/mpesa-insights/pkg/cron"
	"github.com/FACorreiaa/mpesa-insights/pkg/metrics"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// State
	Sessions *session.Store
	Indexes  *search.Registry
	Tracker  *tasks.Tracker
	Pool     *tasks.Pool

	// Services
	ClassifierService *categorization.Service
	ImportService     *importservice.ImportService
	InsightsService   *insights.Service
	Scheduler         *cron.Scheduler

	// Handlers
	ImportHandler   *importhandler.ImportHandler
	SessionHandler  *importhandler.SessionHandler
	InsightsHandler *insightshandler.InsightsHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()

	if err := deps.initState(); err != nil {
		return nil, fmt.Errorf("failed to init state: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Metrics = metrics.New(d.Registry)
}

// initState builds the in-memory session store, search indexes and task
// machinery.
func (d *Dependencies) initState() error {
	d.Sessions = session.NewStore(d.Config.Session.TTL, d.Logger,
		session.WithGauge(d.Metrics.ActiveSessions))
	d.Indexes = search.NewRegistry(d.Logger)
	d.Sessions.OnEvict(d.Indexes.Evict)

	d.Tracker = tasks.NewTracker(d.Config.Worker.TaskRetention, d.Logger)
	d.Pool = tasks.NewPool(d.Config.Worker.Count, d.Config.Worker.QueueSize, d.Tracker, d.Logger,
		tasks.WithInFlightGauge(d.Metrics.TasksInFlight))

	d.Logger.Info("state initialized",
		slog.Duration("session_ttl", d.Config.Session.TTL),
		slog.Int("workers", d.Config.Worker.Count),
		slog.Int("queue_size", d.Config.Worker.QueueSize),
	)
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	loc, err := time.LoadLocation(d.Config.Ingest.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load statement timezone: %w", err)
	}

	d.ClassifierService = categorization.NewService(nil)

	d.ImportService = importservice.NewImportService(importservice.Dependencies{
		Decryptor:  parser.NewDecryptor(d.Logger),
		Tables:     parser.NewTableExtractor(d.Logger),
		Metadata:   parser.NewMetadataExtractor(),
		Ledger:     parser.NewLedgerParser(),
		Normalizer: normalizer.NewNormalizer(d.Logger).WithLocation(loc),
		Classifier: d.ClassifierService,
		Deriver:    features.NewDeriver(),
		Store:      d.Sessions,
	}, d.Logger).
		WithTasks(d.Pool).
		WithRecorder(d.Metrics)

	insightsSvc, err := insights.NewService(d.Sessions, insights.Config{MaxCost: d.Config.Cache.MaxCost}, d.Logger)
	if err != nil {
		return err
	}
	d.InsightsService = insightsSvc.WithRecorder(d.Metrics)
	d.Sessions.OnEvict(d.InsightsService.Evict)

	d.Scheduler = cron.NewScheduler(d.Tracker, d.Sessions, cron.Schedules{
		TaskEviction: d.Config.Worker.EvictSchedule,
		SessionSweep: d.Config.Session.SweepSchedule,
	}, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Tracker, d.Config.Server.MaxUploadBytes, d.Logger)
	d.SessionHandler = importhandler.NewSessionHandler(d.Sessions, d.Indexes, d.Logger)
	d.InsightsHandler = insightshandler.NewInsightsHandler(d.InsightsService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources. The pool and scheduler must already be
// stopped.
func (d *Dependencies) Cleanup() {
	if d.InsightsService != nil {
		d.InsightsService.Close()
	}
	if d.Indexes != nil {
		d.Indexes.Close()
	}
	d.Logger.Info("cleanup completed")
}
