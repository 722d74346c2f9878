// Package pipeline runs a view query: it projects the columns of a batch
// source, plans a sort strategy, executes it and streams the resulting
// rows into a sink.
//
// # Overview
//
// A query flows through four stages, each pulling from the previous one:
//
//	Batch Source -> Projector -> Execution (passthrough | top-k | external) -> Sink
//
// The strategy is chosen once, before the first batch is read, from the
// sort keys, the row limit and the top-k threshold. At most one batch is
// in flight between stages.
//
// # Basic Usage
//
//	opts, err := pipeline.OptionsFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	result, err := pipeline.Run(ctx, src, pipeline.Request{
//	    Columns: []string{"name", "age"},
//	    Sort:    specs,
//	    Limit:   10,
//	}, sink, opts)
package pipeline

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/internal/sorter"
	"github.com/ajitpratap0/colview/pkg/compression"
	"github.com/ajitpratap0/colview/pkg/config"
	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/formats"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Options tunes strategy selection and the sort engines
type Options struct {
	// TopKThreshold is the limit below which sorted queries use top-k
	TopKThreshold int
	// External is the budget of the external sort
	External sorter.ExternalConfig
	// Logger receives stage events at debug level
	Logger *zap.Logger
	// Metrics records query counters when set
	Metrics *Metrics
}

// DefaultOptions returns the built-in tuning
func DefaultOptions() Options {
	return Options{
		TopKThreshold: DefaultTopKThreshold,
		External:      sorter.DefaultExternalConfig(),
	}
}

// OptionsFromConfig maps the sort section of cfg onto pipeline options
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	alg, err := compression.Parse(cfg.Sort.SpillCompression)
	if err != nil {
		return Options{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid sort.spill_compression")
	}
	return Options{
		TopKThreshold: cfg.Sort.TopKThreshold,
		External: sorter.ExternalConfig{
			RunSizeRows:   cfg.Sort.RunSizeRows,
			RunSizeBytes:  cfg.Sort.RunSizeBytes,
			FanIn:         cfg.Sort.FanIn,
			SpillDir:      cfg.Sort.SpillDir,
			Compression:   alg,
			ParallelSpill: cfg.Sort.ParallelSpill,
		},
	}, nil
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Request describes one view query
type Request struct {
	// Columns selects top-level columns in output order, empty for all
	Columns []string
	// Sort lists the sort keys in priority order
	Sort []sorter.SortSpec
	// Limit caps the output rows, 0 means no limit
	Limit int
}

// Sink consumes the rows of a query. Begin is called once with the
// projected schema before the first row, End once after the last.
type Sink interface {
	Begin(schema *models.Schema) error
	WriteRow(row models.Row) error
	End() error
}

// Result summarizes a finished query
type Result struct {
	Plan        Plan
	Schema      *models.Schema
	RowsRead    int64
	RowsEmitted int64
	Sort        sorter.Stats
	Duration    time.Duration
}

// Prepare validates req against the schema of src and plans the query
// without reading any batch
func Prepare(src formats.BatchSource, req Request, opts Options) (*Projector, Plan, error) {
	if req.Limit < 0 {
		return nil, Plan{}, errors.Newf(errors.ErrorTypeValidation, "limit cannot be negative: %d", req.Limit)
	}
	projector, err := NewProjector(src.Schema(), req.Columns)
	if err != nil {
		return nil, Plan{}, err
	}
	keys, err := sorter.ResolveKeys(req.Sort, projector.Schema(), src.Schema())
	if err != nil {
		return nil, Plan{}, err
	}

	plan := Plan{Keys: keys, Limit: req.Limit, EstimatedRows: -1}
	if est, ok := src.(interface{ EstimatedRows() int64 }); ok {
		plan.EstimatedRows = est.EstimatedRows()
	}
	threshold := opts.TopKThreshold
	if threshold <= 0 {
		threshold = DefaultTopKThreshold
	}
	plan.Strategy = Select(plan, threshold)
	return projector, plan, nil
}

// Run executes req over src and writes the rows into sink. Every
// resource of the query, spill files included, is released before Run
// returns, on success and on error.
func Run(ctx context.Context, src formats.BatchSource, req Request, sink Sink, opts Options) (*Result, error) {
	start := time.Now()
	log := opts.logger().With(zap.String("component", "pipeline"))

	projector, plan, err := Prepare(src, req, opts)
	if err != nil {
		return nil, err
	}
	log.Debug("query planned",
		zap.Stringer("strategy", plan.Strategy),
		zap.String("keys", sorter.Describe(plan.Keys)),
		zap.Int("limit", plan.Limit),
		zap.Int64("estimated_rows", plan.EstimatedRows),
		zap.Strings("columns", projector.Schema().Names()))

	counted := &countingSource{src: projector.Source(src)}
	exec := NewExecution(plan, opts)
	result := &Result{Plan: plan, Schema: projector.Schema()}
	finish := func(err error) (*Result, error) {
		result.RowsRead = counted.rows
		result.Sort = exec.Stats()
		result.Duration = time.Since(start)
		if opts.Metrics != nil {
			opts.Metrics.Observe(result, err)
		}
		if err != nil {
			return result, err
		}
		log.Debug("query complete",
			zap.Int64("rows_read", result.RowsRead),
			zap.Int64("rows_emitted", result.RowsEmitted),
			zap.Duration("duration", result.Duration))
		return result, nil
	}

	rows, err := exec.Start(ctx, counted)
	if err != nil {
		return finish(err)
	}

	if err := sink.Begin(projector.Schema()); err != nil {
		rows.Close()
		return finish(errors.Wrap(err, errors.ErrorTypeOutput, "failed to write output"))
	}
	for {
		row, err := rows.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rows.Close()
			return finish(err)
		}
		if err := sink.WriteRow(row); err != nil {
			rows.Close()
			return finish(errors.Wrap(err, errors.ErrorTypeOutput, "failed to write output"))
		}
		result.RowsEmitted++
	}
	if err := rows.Close(); err != nil {
		return finish(err)
	}
	if err := sink.End(); err != nil {
		return finish(errors.Wrap(err, errors.ErrorTypeOutput, "failed to write output"))
	}
	return finish(nil)
}

// countingSource counts the rows that leave the projector
type countingSource struct {
	src  formats.BatchSource
	rows int64
}

func (s *countingSource) Next(ctx context.Context) (*models.Batch, error) {
	batch, err := s.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	s.rows += int64(batch.Len())
	return batch, nil
}
