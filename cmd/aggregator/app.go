package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	pnlapp "github.com/restodash/backend/internal/application/pnl"
	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/infrastructure/cache"
	"github.com/restodash/backend/internal/infrastructure/config"
	"github.com/restodash/backend/internal/infrastructure/logger"
	"github.com/restodash/backend/internal/infrastructure/mongodb"
	"github.com/restodash/backend/internal/infrastructure/persistence"
	"github.com/restodash/backend/internal/infrastructure/resilience"
	"github.com/restodash/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// app holds everything a subcommand needs. closers run in reverse order.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	service   *pnlapp.AggregationService
	lineItems pnl.LineItemRepository // guarded ledger store the service reads from
	checks    map[string]healthCheck
	closers   []func(context.Context) error
}

// healthCheck reports whether one backing service is usable.
type healthCheck func(ctx context.Context) error

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("Shutdown step failed", zap.Error(err))
		}
	}
	_ = logger.Sync(a.log)
}

// stores is the pair of repositories the service runs on.
type stores struct {
	lineItems pnl.LineItemRepository
	summaries pnl.SummaryRepository
	checks    map[string]healthCheck
	closers   []func(context.Context) error
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigFile: configFile, EnvFile: ".env"})
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	metrics, err := a.initTelemetry(ctx)
	if err != nil {
		return err
	}

	a.log.Info("Starting P&L aggregator",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("driver", cfg.Database.Driver),
	)

	st, err := openStores(ctx, cfg, a.log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, st.closers...)
	a.lineItems = st.lineItems
	a.checks = st.checks

	aggregator, err := cfg.Aggregation.Aggregator()
	if err != nil {
		return err
	}
	var preferChildren []string
	for b, p := range aggregator.Policies() {
		if p == pnl.RollupPreferChildren {
			preferChildren = append(preferChildren, b.String())
		}
	}
	sort.Strings(preferChildren)
	a.log.Debug("Aggregator configured",
		zap.Int("rules", len(aggregator.Rules())),
		zap.Strings("prefer_children", preferChildren),
	)

	a.service = pnlapp.NewAggregationService(st.lineItems, st.summaries, aggregator, a.log,
		pnlapp.WithPageSize(cfg.Aggregation.PageSize),
		pnlapp.WithWorkers(cfg.Aggregation.Workers),
		pnlapp.WithMetrics(metrics),
	)
	return nil
}

// initTelemetry starts the OpenTelemetry pipelines and the profiler.
// The returned metrics are nil when metrics export is disabled.
func (a *app) initTelemetry(ctx context.Context) (*telemetry.AggregationMetrics, error) {
	tc := a.cfg.Telemetry
	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = a.cfg.App.Name
	}

	collector := telemetry.Collector{
		Endpoint:    tc.CollectorEndpoint,
		Insecure:    tc.Insecure,
		ServiceName: serviceName,
		Environment: a.cfg.App.Env,
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:       tc.Enabled,
		SamplingRatio: tc.SamplingRatio,
		Collector:     collector,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}
	a.onClose(tp.Shutdown)

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:   tc.Enabled && tc.LogsEnabled,
		Collector: collector,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("initialize log export: %w", err)
	}
	a.onClose(lp.Shutdown)
	if lp.IsEnabled() {
		level, err := logger.ParseLevel(tc.LogsExportLevel)
		if err != nil {
			return nil, fmt.Errorf("telemetry.logs_export_level: %w", err)
		}
		a.log = lp.Bridge(a.log, level)
	}

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:        tc.Enabled && tc.MetricsEnabled,
		ExportInterval: tc.MetricsInterval,
		Collector:      collector,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}
	a.onClose(mp.Shutdown)

	var metrics *telemetry.AggregationMetrics
	if mp.IsEnabled() {
		metrics, err = telemetry.NewAggregationMetrics(mp.Meter(telemetry.TracerName))
		if err != nil {
			return nil, fmt.Errorf("register aggregation metrics: %w", err)
		}
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.PyroscopeAddress,
		ApplicationName: serviceName,
		Environment:     a.cfg.App.Env,
		ProfileTypes:    tc.ProfileTypes,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("initialize profiler: %w", err)
	}
	a.onClose(func(context.Context) error { return profiler.Stop() })
	if tc.SpanProfiles && profiler.IsEnabled() {
		tp.EnableSpanProfiles()
	}

	return metrics, nil
}

// openStores builds the line item and summary repositories for the configured
// driver, then layers the circuit breaker and the summary cache on top.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	var (
		st  *stores
		err error
	)
	switch cfg.Database.Driver {
	case config.DriverMongoDB:
		st, err = openMongoStores(ctx, cfg)
	case config.DriverPostgres, config.DriverSQLite:
		st, err = openSQLStores(cfg, log)
	default:
		err = fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Resilience.BreakerEnabled {
		guarded := resilience.NewBreakerLineItemRepository(st.lineItems, cfg.Resilience, log)
		st.lineItems = guarded
		st.checks["line_item_breaker"] = guarded.Check
	}

	summaries, closeCache, err := cache.NewSummaryCacheFactory(cfg.Redis,
		cache.WithFactoryLogger(log),
	).Wrap(ctx, st.summaries)
	if err != nil {
		closeAll(ctx, st.closers)
		return nil, err
	}
	st.summaries = summaries
	st.closers = append(st.closers, func(context.Context) error { return closeCache() })
	if cached, ok := summaries.(*cache.CachedSummaryRepository); ok {
		st.checks["redis"] = cached.Ping
	}
	return st, nil
}

func openSQLStores(cfg *config.Config, log *zap.Logger) (*stores, error) {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		return nil, err
	}
	closers := []func(context.Context) error{func(context.Context) error {
		if stats, err := db.Stats(); err == nil {
			log.Debug("Closing SQL store",
				zap.Int("open_connections", stats.OpenConnections),
				zap.Int64("wait_count", stats.WaitCount),
				zap.Duration("wait_duration", stats.WaitDuration),
			)
		}
		return db.Close()
	}}

	if err := db.EnsureSchema(); err != nil {
		closeAll(context.Background(), closers)
		return nil, err
	}

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:        db.System(),
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		closeAll(context.Background(), closers)
		return nil, err
	}

	return &stores{
		lineItems: persistence.NewGormLineItemRepository(db.DB),
		summaries: persistence.NewGormSummaryRepository(db.DB),
		checks:    map[string]healthCheck{db.System(): db.Ping},
		closers:   closers,
	}, nil
}

func openMongoStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	client, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	closers := []func(context.Context) error{client.Close}

	lineItems := mongodb.NewLineItemRepository(client.Database())
	summaries := mongodb.NewSummaryRepository(client.Database())
	if err := errors.Join(lineItems.EnsureIndexes(ctx), summaries.EnsureIndexes(ctx)); err != nil {
		closeAll(ctx, closers)
		return nil, fmt.Errorf("ensure mongodb indexes: %w", err)
	}

	return &stores{
		lineItems: lineItems,
		summaries: summaries,
		checks:    map[string]healthCheck{"mongodb": client.HealthCheck},
		closers:   closers,
	}, nil
}

func closeAll(ctx context.Context, closers []func(context.Context) error) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i](ctx)
	}
}
