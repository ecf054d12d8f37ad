package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongoDB  = "mongodb"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Log         LogConfig
	Aggregation AggregationConfig
	Resilience  ResilienceConfig
	Scheduler   SchedulerConfig
	Telemetry   TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `validate:"required"`
	Env  string `validate:"oneof=development staging production test"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=json console"`
	Output string // stdout, stderr, or file path
}

// DatabaseConfig selects and configures the ledger and summary store.
type DatabaseConfig struct {
	Driver          string `validate:"oneof=postgres sqlite mongodb"`
	Host            string
	Port            int `validate:"gte=0,lte=65535"`
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int `validate:"gte=0,lte=65535"`
	Password  string
	DB        int `validate:"gte=0"`
	TTL       time.Duration
	KeyPrefix string
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AggregationConfig holds the aggregation engine settings.
type AggregationConfig struct {
	PageSize       int `validate:"gte=1,lte=100000"`
	Workers        int `validate:"gte=1,lte=256"`
	RollupPolicies map[string]string
	// Rules replaces the built-in category table when non-empty.
	Rules []pnl.Rule
}

// Aggregator builds the aggregator described by the configuration.
func (a AggregationConfig) Aggregator() (*pnl.Aggregator, error) {
	var opts []pnl.Option
	if len(a.Rules) > 0 {
		rules, err := pnl.NewRuleSet(a.Rules)
		if err != nil {
			return nil, fmt.Errorf("aggregation.rules: %w", err)
		}
		opts = append(opts, pnl.WithRules(rules))
	}
	policies, err := pnl.ParseRollupPolicies(a.RollupPolicies)
	if err != nil {
		return nil, fmt.Errorf("aggregation.rollup_policies: %w", err)
	}
	opts = append(opts, pnl.WithRollupPolicies(policies))
	return pnl.NewAggregator(opts...), nil
}

// ResilienceConfig configures the circuit breaker in front of the ledger store.
type ResilienceConfig struct {
	BreakerEnabled     bool
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	BreakerFailures    uint32
}

// SchedulerConfig holds the refresh scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MonthlySchedule   string // "M H D * *"
	CheckInterval     time.Duration
	Timezone          string
	MaxConcurrentJobs int `validate:"gte=1"`
	QueueSize         int `validate:"gte=1"`
	JobTimeout        time.Duration
	RetryAttempts     int `validate:"gte=0"`
	RetryDelay        time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64 `validate:"gte=0,lte=1"`
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	LogsExportLevel   string `validate:"oneof=debug info warn warning error"`
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
	ProfilingEnabled  bool
	PyroscopeAddress  string
	ProfileTypes      []string
	SpanProfiles      bool
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an explicit TOML path. Empty searches ".", "./config" and "/app".
	ConfigFile string
	// EnvFile is a dotenv file loaded before reading the environment. Missing files are ignored.
	EnvFile string
}

// Load reads configuration with default options.
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads configuration from TOML and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with RESTODASH_ prefix (e.g., RESTODASH_DATABASE_PASSWORD)
// 2. Variables from the dotenv file, when not already set
// 3. config.toml
// 4. Built-in defaults
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	v.SetConfigType("toml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RESTODASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		MongoDB: MongoDBConfig{
			URI:            v.GetString("mongodb.uri"),
			Database:       v.GetString("mongodb.database"),
			ConnectTimeout: v.GetDuration("mongodb.connect_timeout"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			TTL:       v.GetDuration("redis.ttl"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Aggregation: AggregationConfig{
			PageSize:       v.GetInt("aggregation.page_size"),
			Workers:        v.GetInt("aggregation.workers"),
			RollupPolicies: v.GetStringMapString("aggregation.rollup_policies"),
		},
		Resilience: ResilienceConfig{
			BreakerEnabled:     v.GetBool("resilience.breaker_enabled"),
			BreakerMaxRequests: v.GetUint32("resilience.breaker_max_requests"),
			BreakerInterval:    v.GetDuration("resilience.breaker_interval"),
			BreakerTimeout:     v.GetDuration("resilience.breaker_timeout"),
			BreakerFailures:    v.GetUint32("resilience.breaker_failures"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			MonthlySchedule:   v.GetString("scheduler.monthly_schedule"),
			CheckInterval:     v.GetDuration("scheduler.check_interval"),
			Timezone:          v.GetString("scheduler.timezone"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			QueueSize:         v.GetInt("scheduler.queue_size"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			LogsExportLevel:   strings.ToLower(v.GetString("telemetry.logs_export_level")),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
			ProfileTypes:      v.GetStringSlice("telemetry.profile_types"),
			SpanProfiles:      v.GetBool("telemetry.span_profiles"),
		},
	}

	if err := v.UnmarshalKey("aggregation.rules", &cfg.Aggregation.Rules); err != nil {
		return nil, fmt.Errorf("error decoding aggregation.rules: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "restodash-aggregator"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "restodash"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "restodash.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.MongoDB.URI == "" {
		cfg.MongoDB.URI = "mongodb://localhost:27017"
	}
	if cfg.MongoDB.Database == "" {
		cfg.MongoDB.Database = "restodash"
	}
	if cfg.MongoDB.ConnectTimeout == 0 {
		cfg.MongoDB.ConnectTimeout = 10 * time.Second
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "pnl:summary:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Aggregation.PageSize == 0 {
		cfg.Aggregation.PageSize = 1000
	}
	if cfg.Aggregation.Workers == 0 {
		cfg.Aggregation.Workers = 4
	}
	if cfg.Resilience.BreakerMaxRequests == 0 {
		cfg.Resilience.BreakerMaxRequests = 1
	}
	if cfg.Resilience.BreakerInterval == 0 {
		cfg.Resilience.BreakerInterval = time.Minute
	}
	if cfg.Resilience.BreakerTimeout == 0 {
		cfg.Resilience.BreakerTimeout = 30 * time.Second
	}
	if cfg.Resilience.BreakerFailures == 0 {
		cfg.Resilience.BreakerFailures = 5
	}
	if cfg.Scheduler.MonthlySchedule == "" {
		cfg.Scheduler.MonthlySchedule = "0 3 1 * *"
	}
	if cfg.Scheduler.CheckInterval == 0 {
		cfg.Scheduler.CheckInterval = time.Minute
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Local"
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 3
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 100
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.LogsExportLevel == "" {
		cfg.Telemetry.LogsExportLevel = "info"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeAddress == "" {
		cfg.Telemetry.PyroscopeAddress = "http://localhost:4040"
	}
}

var validate = validator.New()

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if _, err := c.Aggregation.Aggregator(); err != nil {
		return err
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == DriverPostgres {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		if c.Database.Driver == DriverSQLite {
			return fmt.Errorf("database.driver=sqlite is not supported in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Database.Driver == DriverMongoDB && c.Telemetry.DBTraceEnabled {
		return fmt.Errorf("telemetry.db_trace_enabled requires a SQL database driver")
	}

	return nil
}

// Location resolves the scheduler timezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
