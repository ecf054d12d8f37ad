package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/restodash/backend/internal/infrastructure/config"
	"github.com/restodash/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is an open SQL ledger and summary store.
type Database struct {
	DB     *gorm.DB
	Driver string
}

// Option customizes the gorm configuration used by NewDatabase.
type Option func(*gorm.Config)

// WithLogger sets the gorm logger. The default is silent.
func WithLogger(l logger.Interface) Option {
	return func(c *gorm.Config) { c.Logger = l }
}

// NewDatabase opens the SQL store named by cfg.Driver, sizes its pool and
// pings it. An empty driver means postgres.
func NewDatabase(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}
	for _, opt := range opts {
		opt(gormCfg)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverPostgres
	}

	var dialector gorm.Dialector
	memory := false
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN())
		gormCfg.PrepareStmt = true
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
		memory = cfg.SQLitePath == ":memory:"
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB handle: %w", err)
	}

	if memory {
		// each connection to :memory: is its own database, so the one
		// connection must never be closed by the pool
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(min(cfg.MaxIdleConns, cfg.MaxOpenConns))
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}
	return &Database{DB: db, Driver: driver}, nil
}

// System returns the OpenTelemetry db.system name of the store.
func (d *Database) System() string {
	if d.Driver == config.DriverSQLite {
		return "sqlite"
	}
	return "postgresql"
}

// EnsureSchema creates the line item and summary tables on sqlite. Postgres
// is left alone: its schema is versioned by the migrate command.
func (d *Database) EnsureSchema() error {
	if d.Driver != config.DriverSQLite {
		return nil
	}
	if err := d.DB.AutoMigrate(&models.LineItemModel{}, &models.PeriodSummaryModel{}); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB handle: %w", err)
	}
	return sqlDB.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// ConnectionStats is a snapshot of the connection pool.
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("get sql.DB handle: %w", err)
	}
	s := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}, nil
}
