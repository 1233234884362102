package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xtxerr/telemetry/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output      string
	Compression string
	BatchSize   int
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump stored events to a Parquet file",
		Long: `Dump every stored event to a Parquet file, in id order.

Example:
  telemetryd export -o events.parquet
  telemetryd export -o /tmp/events.parquet --compression snappy --batch-size 50000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	defaults := export.DefaultOptions()
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "events.parquet", "output file")
	cmd.Flags().StringVar(&opts.Compression, "compression", "zstd", "compression (none|snappy|zstd|lz4|gzip)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", defaults.BatchSize, "rows fetched per store query")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	compression, err := export.ParseCompressionType(opts.Compression)
	if err != nil {
		return err
	}
	if opts.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be positive")
	}

	cfg, release, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	defer release()

	client, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return err
	}
	defer client.Close()

	exp, err := export.New(client, cfg.Ingestion.Table, export.Options{
		Compression: compression,
		BatchSize:   opts.BatchSize,
	})
	if err != nil {
		return err
	}

	res, err := exp.Export(cmd.Context(), opts.Output)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s (%s)\n", res.Rows, res.Path, humanize.IBytes(uint64(res.Bytes)))
	return nil
}
