package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	ce := &ConfigError{}

	switch c.Log.Mode {
	case "development", "production":
	default:
		ce.add("log.mode", fmt.Sprintf("unknown mode %q", c.Log.Mode))
	}

	if c.Pipeline.BatchSize <= 0 {
		ce.add("pipeline.batch_size", "must be positive")
	}
	if c.Pipeline.MaxRetries < 0 {
		ce.add("pipeline.max_retries", "must not be negative")
	}
	if c.Pipeline.RetryDelay < 0 {
		ce.add("pipeline.retry_delay", "must not be negative")
	}
	if c.Pipeline.AggregationWorkers <= 0 {
		ce.add("pipeline.aggregation_workers", "must be positive")
	}
	if c.Pipeline.SLAWindow <= 0 {
		ce.add("pipeline.sla_window", "must be positive")
	}

	if c.Sources.TransactionsPath == "" {
		ce.add("sources.transactions_path", "must not be empty")
	}
	if c.Sources.APITimeout <= 0 {
		ce.add("sources.api_timeout", "must be positive")
	}

	validateSink(ce, "database.relational", c.Database.Relational)
	validateSink(ce, "database.analytical", c.Database.Analytical)

	for name, v := range map[string]float64{
		"quality.completeness": c.Quality.Completeness,
		"quality.accuracy":     c.Quality.Accuracy,
		"quality.consistency":  c.Quality.Consistency,
		"quality.timeliness":   c.Quality.Timeliness,
	} {
		if v < 0 || v > 1 {
			ce.add(name, "must be within [0,1]")
		}
	}

	br := c.BusinessRules
	if br.MinAmount > br.MaxAmount {
		ce.add("business_rules.min_amount", "must not exceed max_amount")
	}
	if len(br.ValidCurrencies) == 0 {
		ce.add("business_rules.valid_currencies", "must not be empty")
	}
	if len(br.ValidPaymentMethods) == 0 {
		ce.add("business_rules.valid_payment_methods", "must not be empty")
	}
	if len(br.ValidStatuses) == 0 {
		ce.add("business_rules.valid_statuses", "must not be empty")
	}

	if c.Lock.Key == "" {
		ce.add("lock.key", "must not be empty")
	}
	if c.Lock.TTL <= 0 {
		ce.add("lock.ttl", "must be positive")
	}

	if len(ce.Fields) > 0 {
		sortFields(ce.Fields)
		return ce
	}
	return nil
}

func validateSink(ce *ConfigError, prefix string, sc SinkConfig) {
	switch sc.Driver {
	case DriverSQLite:
		if sc.Path == "" {
			ce.add(prefix+".path", "sqlite requires a path")
		}
	case DriverPostgres:
		if sc.DSN == "" && (sc.Host == "" || sc.Name == "" || sc.User == "") {
			ce.add(prefix+".dsn", "postgres requires dsn or host, name and user")
		}
	default:
		ce.add(prefix+".driver", fmt.Sprintf("unknown driver %q", sc.Driver))
	}
}

// PostgresDSN returns the connection string for a postgres sink.
func (sc SinkConfig) PostgresDSN() string {
	if sc.DSN != "" {
		return sc.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(sc.User, sc.Password),
		Host:   net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
		Path:   "/" + sc.Name,
	}
	return u.String()
}
