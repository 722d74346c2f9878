package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/internal/output"
	"github.com/ajitpratap0/colview/internal/pipeline"
	"github.com/ajitpratap0/colview/internal/sorter"
	"github.com/ajitpratap0/colview/pkg/config"
	"github.com/ajitpratap0/colview/pkg/formats"
	"github.com/ajitpratap0/colview/pkg/logger"
)

type viewFlags struct {
	columns []string
	sort    []string
	stats   bool
}

func newViewCommand(flags *globalFlags) *cobra.Command {
	vf := &viewFlags{}
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "view FILE",
		Short: "Show rows of a file",
		Long: `Show rows of a file with optional column selection, row limit and
multi-key sort.

Sort keys are given as col, col+ or col:asc for ascending and col- or
col:desc for descending order, separated by commas or by repeating --sort.
Null values always sort first.

Example:
  colview view users.parquet --columns name,age --sort age:desc,name --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags, cmd.Flags())
			if err != nil {
				return err
			}
			return runView(cmd, args[0], vf, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVarP(&vf.columns, "columns", "c", nil, "Columns to show, comma separated, in output order")
	fs.StringArrayVarP(&vf.sort, "sort", "s", nil, "Sort keys, e.g. age:desc,name")
	fs.IntP("limit", "n", d.Output.Limit, "Maximum number of rows, 0 for all rows")
	fs.StringP("format", "f", d.Output.Format, "Output format (table, vertical, ndjson)")
	fs.Int("truncate", d.Output.Truncate, "Cut cells longer than this many characters, 0 disables")
	fs.BoolVar(&vf.stats, "stats", false, "Print pipeline statistics to stderr")

	fs.Int("batch-size", d.Reader.BatchSize, "Rows per batch read from the file")
	fs.Int("topk-threshold", d.Sort.TopKThreshold, "Limits below this use the in-memory top-k sort")
	fs.Int("run-size", d.Sort.RunSizeRows, "Rows buffered before a sorted run is spilled")
	fs.Int("fan-in", d.Sort.FanIn, "Runs merged per pass")
	fs.String("spill-dir", d.Sort.SpillDir, "Directory for temporary sort runs")
	fs.String("spill-compression", d.Sort.SpillCompression, "Codec for sort runs (none, s2, snappy, zstd, lz4, gzip)")
	return cmd
}

func runView(cmd *cobra.Command, path string, vf *viewFlags, cfg *config.Config) error {
	ctx := cmd.Context()
	log := logger.With(zap.String("file", path))

	specs, err := sorter.ParseSpecs(vf.sort)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = log
	if vf.stats {
		opts.Metrics = pipeline.NewMetrics()
	}

	src, err := formats.Open(ctx, path, formats.Options{BatchSize: cfg.Reader.BatchSize, Logger: log})
	if err != nil {
		return err
	}
	defer src.Close()

	sink, err := output.New(format, cmd.OutOrStdout(), output.Options{Truncate: cfg.Output.Truncate})
	if err != nil {
		return err
	}
	result, err := pipeline.Run(ctx, src, pipeline.Request{
		Columns: vf.columns,
		Sort:    specs,
		Limit:   cfg.Output.Limit,
	}, sink, opts)
	if err != nil {
		return err
	}

	if vf.stats {
		return writeStats(cmd.ErrOrStderr(), result, opts.Metrics)
	}
	return nil
}

func writeStats(w io.Writer, r *pipeline.Result, m *pipeline.Metrics) error {
	fmt.Fprintf(w, "Strategy: %s\n", r.Plan.Strategy)
	fmt.Fprintf(w, "Estimated rows: %d\n", r.Plan.EstimatedRows)
	fmt.Fprintf(w, "Rows read: %d\n", r.RowsRead)
	fmt.Fprintf(w, "Rows emitted: %d\n", r.RowsEmitted)
	fmt.Fprintf(w, "Runs spilled: %d\n", r.Sort.Runs)
	fmt.Fprintf(w, "Spill bytes: %d\n", r.Sort.SpillBytes)
	fmt.Fprintf(w, "Merge passes: %d\n", r.Sort.MergePasses)
	fmt.Fprintf(w, "Peak buffered rows: %d\n", r.Sort.MaxBuffered)
	fmt.Fprintf(w, "Duration: %s\n", r.Duration)
	fmt.Fprintln(w)
	return m.WriteText(w)
}
