package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "casanexus.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The path can be moved with CASANEXUS_CONFIG; a missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("CASANEXUS_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.GatewayPort, "PORT")
	setString(&cfg.Server.ListingsPort, "CASANEXUS_LISTINGS_PORT")
	setString(&cfg.Server.ReservationsPort, "CASANEXUS_RESERVATIONS_PORT")
	setDuration(&cfg.Server.ShutdownTimeout, "CASANEXUS_SHUTDOWN_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt(&cfg.Postgres.MaxOpenConns, "CASANEXUS_PG_MAX_OPEN_CONNS")
	setInt(&cfg.Postgres.MaxIdleConns, "CASANEXUS_PG_MAX_IDLE_CONNS")
	setDuration(&cfg.Postgres.ConnectTimeout, "CASANEXUS_PG_CONNECT_TIMEOUT")
	setBool(&cfg.Postgres.Migrate, "CASANEXUS_PG_MIGRATE")

	setString(&cfg.Storage.Driver, "CASANEXUS_STORAGE_DRIVER")

	setString(&cfg.Logging.Level, "CASANEXUS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CASANEXUS_LOG_SERVICE")

	setBool(&cfg.Rate.Enabled, "CASANEXUS_RATE_ENABLED")
	setFloat64(&cfg.Rate.RequestsPerSecond, "CASANEXUS_RATE_RPS")
	setInt(&cfg.Rate.Burst, "CASANEXUS_RATE_BURST")

	setString(&cfg.Postal.BaseURL, "CASANEXUS_POSTAL_URL")
	setDuration(&cfg.Postal.Timeout, "CASANEXUS_POSTAL_TIMEOUT")
	setDuration(&cfg.Postal.CacheTTL, "CASANEXUS_POSTAL_CACHE_TTL")

	setString(&cfg.Services.ListingsURL, "LISTINGS_SERVICE_URL")
	setString(&cfg.Services.ReservationsURL, "RESERVATIONS_SERVICE_URL")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.SubjectPrefix, "CASANEXUS_NATS_PREFIX")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "CASANEXUS_OTLP_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	if cfg.Rate.Enabled && cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Postal.BreakerMaxFailures < 1 {
		return errors.New("postal.breaker_max_failures must be >= 1")
	}
	if cfg.NATS.URL != "" && cfg.NATS.BatchSize < 1 {
		return errors.New("nats.batch_size must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
