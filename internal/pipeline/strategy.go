package pipeline

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/internal/sorter"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Strategy is the execution path chosen for a query
type Strategy int

const (
	// StrategyPassthrough streams rows in file order up to the limit
	StrategyPassthrough Strategy = iota
	// StrategyTopK keeps the best limit rows in a bounded heap
	StrategyTopK
	// StrategyExternal runs a spilling merge sort
	StrategyExternal
)

func (s Strategy) String() string {
	switch s {
	case StrategyPassthrough:
		return "passthrough"
	case StrategyTopK:
		return "topk"
	case StrategyExternal:
		return "external"
	default:
		return "unknown"
	}
}

// DefaultTopKThreshold is the limit below which sorted queries use top-k
const DefaultTopKThreshold = 1000

// Plan is decided once per query before any batch is read
type Plan struct {
	Keys []sorter.SortKey
	// Limit caps the output rows, 0 means no limit
	Limit int
	// EstimatedRows is the footer row count, -1 when unknown
	EstimatedRows int64
	Strategy      Strategy
}

// Select picks the strategy for plan. Sorted queries with a limit under
// threshold use top-k whatever the input size; every other sorted query
// uses the external sort, which stays in memory when the input fits.
func Select(plan Plan, threshold int) Strategy {
	switch {
	case len(plan.Keys) == 0:
		return StrategyPassthrough
	case plan.Limit > 0 && plan.Limit < threshold:
		return StrategyTopK
	default:
		return StrategyExternal
	}
}

// Execution runs one strategy over a projected batch stream
type Execution interface {
	Strategy() Strategy
	// Start begins the query. Rows are pulled from the returned iterator,
	// which must be closed.
	Start(ctx context.Context, src sorter.BatchSource) (sorter.RowIterator, error)
	// Stats reports sort counters, zero for passthrough
	Stats() sorter.Stats
}

// NewExecution builds the execution for a planned query
func NewExecution(plan Plan, opts Options) Execution {
	log := opts.logger()
	switch plan.Strategy {
	case StrategyTopK:
		return &topKExecution{cmp: sorter.NewComparator(plan.Keys), limit: plan.Limit, log: log}
	case StrategyExternal:
		cfg := opts.External
		cfg.Logger = log
		return &externalExecution{cmp: sorter.NewComparator(plan.Keys), limit: plan.Limit, cfg: cfg}
	default:
		return &passthroughExecution{limit: plan.Limit}
	}
}

// passthroughExecution streams rows and stops pulling batches once the
// limit is reached
type passthroughExecution struct {
	limit int
	rows  int64
}

func (e *passthroughExecution) Strategy() Strategy { return StrategyPassthrough }

func (e *passthroughExecution) Stats() sorter.Stats {
	return sorter.Stats{RowsIn: e.rows, RowsOut: e.rows, InMemory: true}
}

func (e *passthroughExecution) Start(_ context.Context, src sorter.BatchSource) (sorter.RowIterator, error) {
	return &streamIterator{exec: e, src: src}, nil
}

type streamIterator struct {
	exec  *passthroughExecution
	src   sorter.BatchSource
	batch *models.Batch
	pos   int
	done  bool
}

func (it *streamIterator) Next(ctx context.Context) (models.Row, error) {
	for {
		if it.done || (it.exec.limit > 0 && it.exec.rows >= int64(it.exec.limit)) {
			it.done = true
			return nil, io.EOF
		}
		if it.batch != nil && it.pos < it.batch.Len() {
			row := it.batch.Rows[it.pos]
			it.batch.Rows[it.pos] = nil
			it.pos++
			it.exec.rows++
			return row, nil
		}
		batch, err := it.src.Next(ctx)
		if err != nil {
			it.done = true
			return nil, err
		}
		it.batch, it.pos = batch, 0
	}
}

func (it *streamIterator) Close() error {
	it.done, it.batch = true, nil
	return nil
}

type topKExecution struct {
	cmp   *sorter.Comparator
	limit int
	log   *zap.Logger
	topk  *sorter.TopK
}

func (e *topKExecution) Strategy() Strategy { return StrategyTopK }

func (e *topKExecution) Stats() sorter.Stats {
	if e.topk == nil {
		return sorter.Stats{InMemory: true}
	}
	return sorter.Stats{
		RowsIn:      int64(e.topk.Seen()),
		MaxBuffered: e.topk.MaxRetained(),
		InMemory:    true,
	}
}

func (e *topKExecution) Start(ctx context.Context, src sorter.BatchSource) (sorter.RowIterator, error) {
	e.topk = sorter.NewTopK(e.cmp, e.limit, e.log)
	if err := e.topk.Consume(ctx, src); err != nil {
		return nil, err
	}
	return &sliceIterator{rows: e.topk.Rows()}, nil
}

type sliceIterator struct {
	rows []models.Row
	pos  int
}

func (it *sliceIterator) Next(ctx context.Context) (models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

func (it *sliceIterator) Close() error {
	it.rows = nil
	return nil
}

type externalExecution struct {
	cmp    *sorter.Comparator
	limit  int
	cfg    sorter.ExternalConfig
	sorter *sorter.ExternalSorter
}

func (e *externalExecution) Strategy() Strategy { return StrategyExternal }

func (e *externalExecution) Stats() sorter.Stats {
	if e.sorter == nil {
		return sorter.Stats{}
	}
	return e.sorter.Stats()
}

func (e *externalExecution) Start(ctx context.Context, src sorter.BatchSource) (sorter.RowIterator, error) {
	e.sorter = sorter.NewExternalSorter(e.cmp, e.cfg)
	it, err := e.sorter.Sort(ctx, src)
	if err != nil {
		return nil, err
	}
	if e.limit > 0 {
		return &limitIterator{RowIterator: it, remaining: e.limit}, nil
	}
	return it, nil
}

// limitIterator stops a sorted stream after a fixed number of rows and
// releases the underlying sort as soon as the limit is reached
type limitIterator struct {
	sorter.RowIterator
	remaining int
}

func (it *limitIterator) Next(ctx context.Context) (models.Row, error) {
	if it.remaining <= 0 {
		if err := it.RowIterator.Close(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	row, err := it.RowIterator.Next(ctx)
	if err != nil {
		return nil, err
	}
	it.remaining--
	return row, nil
}
