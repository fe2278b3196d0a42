package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "PIPELINE_"

// EnvConfigPath names the variable holding an optional YAML config file.
const EnvConfigPath = "PIPELINE_CONFIG"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PIPELINE_CONFIG is set
//  3. env (prefix PIPELINE_, "__" separates nesting levels)
//  4. POSTGRES_* aliases for the relational sink
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// PIPELINE_PIPELINE__BATCH_SIZE -> pipeline.batch_size
	envProvider := env.Provider(EnvPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := applyPostgresAliases(&cfg.Database.Relational); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// applyPostgresAliases honors the conventional POSTGRES_* variables. Any of
// them being set switches the relational sink to postgres.
func applyPostgresAliases(sc *SinkConfig) error {
	set := false
	if v, ok := os.LookupEnv("POSTGRES_HOST"); ok {
		sc.Host, set = v, true
	}
	if v, ok := os.LookupEnv("POSTGRES_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Fields: []FieldError{{Field: "POSTGRES_PORT", Reason: "must be an integer"}}}
		}
		sc.Port, set = port, true
	}
	if v, ok := os.LookupEnv("POSTGRES_DB"); ok {
		sc.Name, set = v, true
	}
	if v, ok := os.LookupEnv("POSTGRES_USER"); ok {
		sc.User, set = v, true
	}
	if v, ok := os.LookupEnv("POSTGRES_PASSWORD"); ok {
		sc.Password, set = v, true
	}
	if set {
		sc.Driver = DriverPostgres
	}
	return nil
}
