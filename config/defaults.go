// Package config provides configuration defaults for the telemetry server.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.toml, config.yaml or
// TELEMETRY_* environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultHTTPHost is the interface the HTTP server binds to.
	// Override via config: http.host / TELEMETRY_HTTP_HOST
	DefaultHTTPHost = "0.0.0.0"

	// DefaultHTTPPort is the port the HTTP server listens on.
	// Override via config: http.port / TELEMETRY_HTTP_PORT
	DefaultHTTPPort = 1234

	// DefaultRequestTimeout bounds the handling of a single request, including
	// pool acquisition and the store round-trip.
	// Override via config: http.request_timeout
	DefaultRequestTimeout = 10 * time.Second

	// DefaultReadHeaderTimeout limits how long a client may take to send headers.
	// Override via config: http.read_header_timeout
	DefaultReadHeaderTimeout = 5 * time.Second

	// DefaultShutdownTimeout is how long in-flight requests may drain on shutdown.
	// Override via config: http.shutdown_timeout
	DefaultShutdownTimeout = 5 * time.Second
)

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultMaxBodyBytes is the largest accepted /send body (256 KiB).
	// A body of exactly this size is accepted; one byte more is rejected.
	DefaultMaxBodyBytes = 262144

	// DefaultEventsTable is the table every event row is written to.
	DefaultEventsTable = "events"
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultStoreDriver selects the analytical store: clickhouse or duckdb.
	// Override via config: store.driver / TELEMETRY_STORE_DRIVER
	DefaultStoreDriver = "clickhouse"

	// DefaultStoreHost is the ClickHouse host.
	DefaultStoreHost = "localhost"

	// DefaultStorePort is the ClickHouse native protocol port.
	DefaultStorePort = 9000

	// DefaultStoreDatabase is the database holding the events table.
	DefaultStoreDatabase = "telemetry"

	// DefaultPoolMin is the number of connections kept idle and opened on warm-up.
	// Override via config: store.pool_min / TELEMETRY_CLICKHOUSE_MIN_CONN_IN_POOL
	DefaultPoolMin = 10

	// DefaultPoolMax caps the number of open connections.
	// Override via config: store.pool_max / TELEMETRY_CLICKHOUSE_MAX_CONN_IN_POOL
	DefaultPoolMax = 20

	// DefaultOperationTimeout is the upper bound of a single store round-trip.
	// Override via config: store.operation_timeout
	DefaultOperationTimeout = 5 * time.Second

	// DefaultPingTimeout bounds the startup connectivity check.
	DefaultPingTimeout = 10 * time.Second
)

// =============================================================================
// Identifier Defaults
// =============================================================================

const (
	// DefaultDatacenterID is the 5-bit datacenter field of generated identifiers.
	DefaultDatacenterID = 31

	// DefaultWorkerID is the 5-bit worker field of generated identifiers.
	DefaultWorkerID = 1

	// DefaultMaxClockDrift is how far the wall clock may step backwards before
	// identifier generation fails instead of waiting.
	DefaultMaxClockDrift = 5 * time.Millisecond
)

// =============================================================================
// Rate Limiting Defaults
// =============================================================================

const (
	// DefaultRateLimitPerSecond is the sustained /send rate per client IP.
	// Rate limiting is disabled unless ratelimit.enabled is set.
	DefaultRateLimitPerSecond = 50.0

	// DefaultRateLimitBurst is the token bucket capacity per client IP.
	DefaultRateLimitBurst = 100

	// DefaultRateLimitIdleTTL is how long an idle client's limiter is kept.
	DefaultRateLimitIdleTTL = 10 * time.Minute
)

// =============================================================================
// Observability Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level written to the log.
	DefaultLogLevel = "info"

	// DefaultServiceName is reported as the OpenTelemetry service name and
	// the Logstash source.
	DefaultServiceName = "telemetryd"

	// DefaultSketchAccuracy is the relative accuracy of latency sketches.
	DefaultSketchAccuracy = 0.01

	// DefaultConfigPath is read when neither --config nor
	// TELEMETRY_CONFIG_PATH is given.
	DefaultConfigPath = "config.toml"
)
