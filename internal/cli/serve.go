package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/ingestion"
	"github.com/xtxerr/telemetry/internal/server"
	"github.com/xtxerr/telemetry/internal/snowflake"
	"github.com/xtxerr/telemetry/internal/stats"
	"github.com/xtxerr/telemetry/internal/store"
	"github.com/xtxerr/telemetry/internal/tracing"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry HTTP server",
		Long: `Run the telemetry HTTP server.

The store is pinged before the listener opens; an unreachable store aborts
startup. SIGINT or SIGTERM drains in-flight requests and exits.

Example:
  telemetryd serve --config /etc/telemetry/config.toml
  TELEMETRY_STORE_DRIVER=duckdb telemetryd serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, release, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log.Info("telemetryd starting", "version", Version, "commit", Commit, "build_date", BuildDate)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	client, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Warm(ctx); err != nil {
		return fmt.Errorf("warm store pool: %w", err)
	}
	if err := client.EnsureSchema(ctx, cfg.Ingestion.Table); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	gen, err := snowflake.New(snowflake.Options{
		DatacenterID:  cfg.Snowflake.DatacenterID,
		WorkerID:      cfg.Snowflake.WorkerID,
		MaxClockDrift: cfg.Snowflake.MaxClockDrift,
	})
	if err != nil {
		return fmt.Errorf("create id generator: %w", err)
	}

	pipeline := ingestion.New(gen, client, ingestion.Options{
		Table:        cfg.Ingestion.Table,
		MaxBodyBytes: cfg.Ingestion.MaxBodyBytes,
	})

	agg, err := stats.New(client, cfg.Ingestion.Table)
	if err != nil {
		return err
	}

	srv := server.New(&server.Config{
		HTTP:      cfg.HTTP,
		RateLimit: cfg.RateLimit,
		Ingester:  pipeline,
		Stats:     agg,
		Store:     client,
	})

	if err := srv.Run(ctx); err != nil {
		return err
	}

	log.Info("telemetryd stopped", "store_calls", client.Calls(), "ingestion", pipeline.Stats())
	return nil
}

// openStore builds the store client and pings it. A failed ping is fatal.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Client, error) {
	client, err := store.New(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		log.Error("store is unreachable", "store", cfg.Redacted(), "error", err)
		return nil, fmt.Errorf("store %s is unreachable: %w", cfg.Redacted(), err)
	}

	log.Info("store reachable", "driver", client.Driver(), "store", cfg.Redacted())
	return client, nil
}
