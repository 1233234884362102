// Package cli implements the telemetryd command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/logging"
)

var log = logging.Component("cli")

// Build metadata, set at build time via ldflags:
//
//	-X github.com/xtxerr/telemetry/internal/cli.Version=1.2.3
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// ConfigPath is the config file; TELEMETRY_CONFIG_PATH when unset.
	ConfigPath string
}

// NewRootCommand creates the root command for telemetryd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "telemetryd",
		Short: "Anonymous usage telemetry collector",
		Long: `telemetryd receives anonymous usage events from client products over HTTP,
stamps each with a time-ordered snowflake id and stores it in ClickHouse
or an embedded DuckDB database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.toml, .yaml); defaults to $TELEMETRY_CONFIG_PATH or config.toml")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig loads the configuration and initializes logging from it. The
// returned function releases the log sink.
func loadConfig(opts *RootOptions) (*config.Config, func(), error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.PathFromEnv()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	closer, err := logging.Setup(logging.Options{
		Level:       cfg.Logging.Level,
		JSON:        cfg.Logging.JSON,
		LogstashURI: cfg.Logging.LogstashURI,
		Source:      cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, nil, err
	}

	log.Debug("configuration loaded", "path", path, "store", cfg.Store.Redacted())
	return cfg, func() { closer.Close() }, nil
}
