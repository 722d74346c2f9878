package sorter

import (
	"container/heap"
	"context"
	"io"
	"slices"

	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// BatchSource is the pull contract the engines consume. Next returns
// io.EOF once the input is exhausted.
type BatchSource interface {
	Next(ctx context.Context) (*models.Batch, error)
}

// entry is a row tagged with its input position
type entry struct {
	row models.Row
	seq uint64
}

// worstFirst is a max-heap: the root is the entry that would be emitted
// last
type worstFirst struct {
	cmp     *Comparator
	entries []entry
}

func (h *worstFirst) Len() int           { return len(h.entries) }
func (h *worstFirst) Less(i, j int) bool { return h.cmp.compareEntries(h.entries[i], h.entries[j]) > 0 }
func (h *worstFirst) Swap(i, j int)      { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *worstFirst) Push(x any)         { h.entries = append(h.entries, x.(entry)) }
func (h *worstFirst) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	h.entries = old[:n-1]
	return e
}

// TopK keeps the first limit rows of a sorted stream without sorting it.
// It retains at most limit rows at any time.
type TopK struct {
	cmp         *Comparator
	limit       int
	heap        *worstFirst
	seq         uint64
	maxRetained int
	log         *zap.Logger
}

// NewTopK creates an engine returning at most limit rows. limit must be
// positive.
func NewTopK(cmp *Comparator, limit int, log *zap.Logger) *TopK {
	if limit < 1 {
		limit = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TopK{
		cmp:   cmp,
		limit: limit,
		heap:  &worstFirst{cmp: cmp, entries: make([]entry, 0, limit)},
		log:   log.With(zap.String("component", "topk")),
	}
}

// Push offers one row. Rows arriving later lose ties against retained ones.
func (t *TopK) Push(row models.Row) {
	e := entry{row: row, seq: t.seq}
	t.seq++

	if t.heap.Len() < t.limit {
		heap.Push(t.heap, e)
		t.maxRetained = max(t.maxRetained, t.heap.Len())
		return
	}
	if t.cmp.compareEntries(e, t.heap.entries[0]) < 0 {
		t.heap.entries[0] = e
		heap.Fix(t.heap, 0)
	}
}

// Consume reads src to exhaustion. A source error is returned as is and
// leaves the engine without usable output.
func (t *TopK) Consume(ctx context.Context, src BatchSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.heap.entries = t.heap.entries[:0]
			return err
		}
		for _, row := range batch.Rows {
			t.Push(row)
		}
	}

	t.log.Debug("top-k input exhausted",
		zap.Uint64("rows_seen", t.seq),
		zap.Int("retained", t.heap.Len()),
		zap.Int("limit", t.limit))
	return nil
}

// Rows drains the retained rows in final order
func (t *TopK) Rows() []models.Row {
	entries := t.heap.entries
	t.heap.entries = nil
	slices.SortFunc(entries, t.cmp.compareEntries)

	rows := make([]models.Row, len(entries))
	for i, e := range entries {
		rows[i] = e.row
	}
	return rows
}

// Seen returns the number of rows offered so far
func (t *TopK) Seen() uint64 { return t.seq }

// Len returns the number of rows currently retained
func (t *TopK) Len() int { return t.heap.Len() }

// MaxRetained returns the largest number of rows retained at once
func (t *TopK) MaxRetained() int { return t.maxRetained }
