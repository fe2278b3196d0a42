// Package config defines the pipeline configuration and its loading hooks.
//
// A Config is built once at startup and passed into each component
// constructor; nothing in the pipeline reads process-wide settings.
package config

import "time"

// Config contains process configuration.
type Config struct {
	Log           LogConfig           `koanf:"log"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Sources       SourcesConfig       `koanf:"sources"`
	Database      DatabaseConfig      `koanf:"database"`
	Quality       QualityConfig       `koanf:"quality"`
	BusinessRules BusinessRulesConfig `koanf:"business_rules"`
	Lock          LockConfig          `koanf:"lock"`
	Tracing       TracingConfig       `koanf:"tracing"`
	API           APIConfig           `koanf:"api"`
}

// LogConfig controls the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Mode is "development" (console) or "production" (JSON).
	Mode string `koanf:"mode"`
}

// PipelineConfig holds run-level knobs.
type PipelineConfig struct {
	BatchSize          int           `koanf:"batch_size"`
	MaxRetries         int           `koanf:"max_retries"`
	RetryDelay         time.Duration `koanf:"retry_delay"`
	AggregationWorkers int           `koanf:"aggregation_workers"`
	SLAWindow          time.Duration `koanf:"sla_window"`
	OutputDir          string        `koanf:"output_dir"`
	ExportCSV          bool          `koanf:"export_csv"`
}

// SourcesConfig points at the raw inputs.
type SourcesConfig struct {
	TransactionsPath string        `koanf:"transactions_path"`
	UsersPath        string        `koanf:"users_path"`
	ProductsPath     string        `koanf:"products_path"`
	ProductsAPIURL   string        `koanf:"products_api_url"`
	APITimeout       time.Duration `koanf:"api_timeout"`
}

// Supported sink drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig configures the two sinks.
type DatabaseConfig struct {
	Relational SinkConfig `koanf:"relational"`
	Analytical SinkConfig `koanf:"analytical"`
}

// SinkConfig configures one sink. For postgres either DSN or the discrete
// connection fields must be set.
type SinkConfig struct {
	Driver   string `koanf:"driver"`
	Path     string `koanf:"path"`
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// QualityConfig holds the per-dimension pass thresholds.
type QualityConfig struct {
	Completeness float64 `koanf:"completeness"`
	Accuracy     float64 `koanf:"accuracy"`
	Consistency  float64 `koanf:"consistency"`
	Timeliness   float64 `koanf:"timeliness"`
}

// BusinessRulesConfig holds the validation constants applied at the source
// boundary and by the quality scorer.
type BusinessRulesConfig struct {
	MinAmount           float64  `koanf:"min_amount"`
	MaxAmount           float64  `koanf:"max_amount"`
	ValidCurrencies     []string `koanf:"valid_currencies"`
	ValidPaymentMethods []string `koanf:"valid_payment_methods"`
	ValidStatuses       []string `koanf:"valid_statuses"`
}

// LockConfig configures the single-runner guard.
type LockConfig struct {
	RedisAddr string        `koanf:"redis_addr"`
	Key       string        `koanf:"key"`
	TTL       time.Duration `koanf:"ttl"`
}

// TracingConfig toggles span export. Spans go to OTLPEndpoint over HTTP when
// it is set and are pretty-printed otherwise.
type TracingConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// APIConfig configures the run-history server.
type APIConfig struct {
	Addr   string `koanf:"addr"`
	RunsDB string `koanf:"runs_db"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
			Mode:  "development",
		},
		Pipeline: PipelineConfig{
			BatchSize:          1000,
			MaxRetries:         3,
			RetryDelay:         5 * time.Second,
			AggregationWorkers: 2,
			SLAWindow:          24 * time.Hour,
			OutputDir:          "results",
			ExportCSV:          true,
		},
		Sources: SourcesConfig{
			TransactionsPath: "data/sample_transactions.json",
			UsersPath:        "data/sample_users.csv",
			ProductsPath:     "data/sample_products.json",
			APITimeout:       30 * time.Second,
		},
		Database: DatabaseConfig{
			Relational: SinkConfig{Driver: DriverSQLite, Path: "warehouse.db", Port: 5432},
			Analytical: SinkConfig{Driver: DriverSQLite, Path: "analytics.db", Port: 5432},
		},
		Quality: QualityConfig{
			Completeness: 0.95,
			Accuracy:     0.99,
			Consistency:  0.98,
			Timeliness:   0.90,
		},
		BusinessRules: BusinessRulesConfig{
			MinAmount:           0.01,
			MaxAmount:           100000.00,
			ValidCurrencies:     []string{"USD", "EUR", "GBP", "CAD"},
			ValidPaymentMethods: []string{"credit_card", "debit_card", "paypal", "apple_pay", "google_pay"},
			ValidStatuses:       []string{"pending", "completed", "failed", "refunded", "cancelled"},
		},
		Lock: LockConfig{
			Key: "ecommerce-pipeline:run",
			TTL: 30 * time.Minute,
		},
		Tracing: TracingConfig{
			ServiceName: "ecommerce-pipeline",
		},
		API: APIConfig{
			Addr:   ":8080",
			RunsDB: "pipeline.db",
		},
	}
}
