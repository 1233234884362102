package config

import (
	"errors"
	"fmt"

	"github.com/xtxerr/telemetry/config"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// HTTP
	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}

	// Store
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	// Ingestion
	if err := c.Ingestion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ingestion: %w", err))
	}

	// Snowflake
	if err := c.Snowflake.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("snowflake: %w", err))
	}

	// RateLimit
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ratelimit: %w", err))
	}

	// Tracing
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing: sample_ratio must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, errors.New("port must be between 0 and 65535"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.ReadHeaderTimeout <= 0 {
		errs = append(errs, errors.New("read_header_timeout must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	var errs []error

	switch c.Driver {
	case DriverClickHouse:
		if c.Host == "" {
			errs = append(errs, errors.New("host is required for clickhouse"))
		}
		if c.Port <= 0 || c.Port > 65535 {
			errs = append(errs, errors.New("port must be between 1 and 65535"))
		}
		if c.Database == "" {
			errs = append(errs, errors.New("database is required for clickhouse"))
		}
	case DriverDuckDB:
	default:
		errs = append(errs, fmt.Errorf("driver must be one of: %s, %s", DriverClickHouse, DriverDuckDB))
	}

	if c.PoolMax <= 0 {
		errs = append(errs, errors.New("pool_max must be positive"))
	}
	if c.PoolMin < 0 {
		errs = append(errs, errors.New("pool_min must be non-negative"))
	}
	if c.PoolMin > c.PoolMax {
		errs = append(errs, errors.New("pool_min must be <= pool_max"))
	}
	if c.OperationTimeout <= 0 {
		errs = append(errs, errors.New("operation_timeout must be positive"))
	}
	if c.PingTimeout <= 0 {
		errs = append(errs, errors.New("ping_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the ingestion configuration.
func (c *IngestionConfig) Validate() error {
	var errs []error

	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the identifier generator configuration.
func (c *SnowflakeConfig) Validate() error {
	var errs []error

	if c.DatacenterID < 0 || c.DatacenterID > 31 {
		errs = append(errs, errors.New("datacenter_id must be between 0 and 31"))
	}
	if c.WorkerID < 0 || c.WorkerID > 31 {
		errs = append(errs, errors.New("worker_id must be between 0 and 31"))
	}
	if c.MaxClockDrift < 0 {
		errs = append(errs, errors.New("max_clock_drift must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.PerSecond <= 0 {
		errs = append(errs, errors.New("per_second must be positive"))
	}
	if c.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive"))
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = config.DefaultRateLimitIdleTTL
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
