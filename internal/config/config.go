// Package config loads the telemetry server configuration.
//
// Values are layered: DefaultConfig, then the config file (TOML or YAML,
// chosen by extension), then TELEMETRY_* environment variables. The result
// is validated before it is handed to the rest of the process.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/telemetry/config"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TELEMETRY_"

// Store drivers.
const (
	DriverClickHouse = "clickhouse"
	DriverDuckDB     = "duckdb"
)

// Config represents the complete server configuration.
type Config struct {
	// HTTP configures the listener and per-request limits.
	HTTP HTTPConfig `yaml:"http" toml:"http"`

	// Store describes the analytical store connection.
	Store StoreConfig `yaml:"store" toml:"store"`

	// Ingestion configures the /send pipeline.
	Ingestion IngestionConfig `yaml:"ingestion" toml:"ingestion"`

	// Snowflake configures the identifier generator.
	Snowflake SnowflakeConfig `yaml:"snowflake" toml:"snowflake"`

	// RateLimit configures per-client throttling of /send.
	RateLimit RateLimitConfig `yaml:"ratelimit" toml:"ratelimit"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Host string `yaml:"host" toml:"host" env:"HTTP_HOST"`
	Port int    `yaml:"port" toml:"port" env:"HTTP_PORT"`

	// RequestTimeout is the deadline applied to each request context.
	RequestTimeout    time.Duration `yaml:"request_timeout" toml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" toml:"read_header_timeout" env:"HTTP_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
}

// Addr returns the host:port listen address.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StoreConfig is the connection descriptor for the analytical store.
type StoreConfig struct {
	// Driver is clickhouse or duckdb.
	Driver string `yaml:"driver" toml:"driver" env:"STORE_DRIVER"`

	Host     string `yaml:"host" toml:"host" env:"CLICKHOUSE_HOST"`
	Port     int    `yaml:"port" toml:"port" env:"CLICKHOUSE_PORT"`
	Username string `yaml:"username" toml:"username" env:"CLICKHOUSE_USERNAME"`
	Password string `yaml:"password" toml:"password" env:"CLICKHOUSE_PASSWORD"`
	Database string `yaml:"database" toml:"database" env:"CLICKHOUSE_DB_NAME"`

	// PoolMin connections are kept idle and opened on warm-up.
	PoolMin int `yaml:"pool_min" toml:"pool_min" env:"CLICKHOUSE_MIN_CONN_IN_POOL"`

	// PoolMax caps open connections.
	PoolMax int `yaml:"pool_max" toml:"pool_max" env:"CLICKHOUSE_MAX_CONN_IN_POOL"`

	// LZ4 enables LZ4 compression on the ClickHouse wire.
	LZ4 bool `yaml:"lz4" toml:"lz4" env:"CLICKHOUSE_USE_LZ4_COMPRESSION"`

	// Path is the DuckDB database file. Empty means in-memory.
	Path string `yaml:"path" toml:"path" env:"DUCKDB_PATH"`

	// OperationTimeout caps every store round-trip.
	OperationTimeout time.Duration `yaml:"operation_timeout" toml:"operation_timeout" env:"STORE_OPERATION_TIMEOUT"`

	// PingTimeout bounds the startup connectivity check.
	PingTimeout time.Duration `yaml:"ping_timeout" toml:"ping_timeout" env:"STORE_PING_TIMEOUT"`
}

// DSN returns the data source name for the configured driver.
func (c StoreConfig) DSN() string {
	if c.Driver == DriverDuckDB {
		return c.Path
	}

	u := url.URL{
		Scheme: "clickhouse",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	if c.LZ4 {
		q := url.Values{}
		q.Set("compress", "lz4")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Redacted returns the DSN with the password masked, for logging.
func (c StoreConfig) Redacted() string {
	if c.Password == "" {
		return c.DSN()
	}
	masked := c
	masked.Password = "xxxxx"
	return masked.DSN()
}

// IngestionConfig configures the /send pipeline.
type IngestionConfig struct {
	// MaxBodyBytes is the largest accepted request body.
	MaxBodyBytes int `yaml:"max_body_bytes" toml:"max_body_bytes" env:"INGESTION_MAX_BODY_BYTES"`

	// Table receives one row per event.
	Table string `yaml:"table" toml:"table" env:"INGESTION_TABLE"`
}

// SnowflakeConfig configures the identifier generator.
type SnowflakeConfig struct {
	DatacenterID  int64         `yaml:"datacenter_id" toml:"datacenter_id" env:"SNOWFLAKE_DATACENTER_ID"`
	WorkerID      int64         `yaml:"worker_id" toml:"worker_id" env:"SNOWFLAKE_WORKER_ID"`
	MaxClockDrift time.Duration `yaml:"max_clock_drift" toml:"max_clock_drift" env:"SNOWFLAKE_MAX_CLOCK_DRIFT"`
}

// RateLimitConfig configures per-IP throttling of /send.
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled" env:"RATELIMIT_ENABLED"`
	PerSecond float64       `yaml:"per_second" toml:"per_second" env:"RATELIMIT_PER_SECOND"`
	Burst     int           `yaml:"burst" toml:"burst" env:"RATELIMIT_BURST"`
	IdleTTL   time.Duration `yaml:"idle_ttl" toml:"idle_ttl" env:"RATELIMIT_IDLE_TTL"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" env:"LOG_LEVEL"`
	JSON  bool   `yaml:"json" toml:"json" env:"LOG_IN_JSON"`

	// LogstashURI receives every record as JSON over TCP, e.g. tcp://logstash:5000.
	LogstashURI string `yaml:"logstash_uri" toml:"logstash_uri" env:"LOGSTASH_URI"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector. Empty disables tracing.
	Endpoint    string  `yaml:"endpoint" toml:"endpoint" env:"OTEL_ENDPOINT"`
	ServiceName string  `yaml:"service_name" toml:"service_name" env:"OTEL_SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio" env:"OTEL_SAMPLE_RATIO"`
	Insecure    bool    `yaml:"insecure" toml:"insecure" env:"OTEL_INSECURE"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:              config.DefaultHTTPHost,
			Port:              config.DefaultHTTPPort,
			RequestTimeout:    config.DefaultRequestTimeout,
			ReadHeaderTimeout: config.DefaultReadHeaderTimeout,
			ShutdownTimeout:   config.DefaultShutdownTimeout,
		},
		Store: StoreConfig{
			Driver:           config.DefaultStoreDriver,
			Host:             config.DefaultStoreHost,
			Port:             config.DefaultStorePort,
			Database:         config.DefaultStoreDatabase,
			PoolMin:          config.DefaultPoolMin,
			PoolMax:          config.DefaultPoolMax,
			OperationTimeout: config.DefaultOperationTimeout,
			PingTimeout:      config.DefaultPingTimeout,
		},
		Ingestion: IngestionConfig{
			MaxBodyBytes: config.DefaultMaxBodyBytes,
			Table:        config.DefaultEventsTable,
		},
		Snowflake: SnowflakeConfig{
			DatacenterID:  config.DefaultDatacenterID,
			WorkerID:      config.DefaultWorkerID,
			MaxClockDrift: config.DefaultMaxClockDrift,
		},
		RateLimit: RateLimitConfig{
			PerSecond: config.DefaultRateLimitPerSecond,
			Burst:     config.DefaultRateLimitBurst,
			IdleTTL:   config.DefaultRateLimitIdleTTL,
		},
		Logging: LoggingConfig{
			Level: config.DefaultLogLevel,
		},
		Tracing: TracingConfig{
			ServiceName: config.DefaultServiceName,
			SampleRatio: 1,
		},
	}
}

// Load reads the config file at path on top of the defaults, applies the
// environment overlay and validates the result. A missing file is not an
// error: the server then runs from defaults and environment alone.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// PathFromEnv returns TELEMETRY_CONFIG_PATH or the default config path.
func PathFromEnv() string {
	if p := os.Getenv(EnvPrefix + "CONFIG_PATH"); p != "" {
		return p
	}
	return config.DefaultConfigPath
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	case ".toml", "":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}

// ApplyEnv overlays TELEMETRY_* environment variables. Unset variables leave
// the current value untouched.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
