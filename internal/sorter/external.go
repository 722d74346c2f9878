package sorter

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/colview/pkg/compression"
	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// ExternalConfig bounds the memory and disk behaviour of an external sort
type ExternalConfig struct {
	// RunSizeRows caps the rows held in memory before a run is spilled
	RunSizeRows int
	// RunSizeBytes caps the estimated bytes held before a run is spilled
	RunSizeBytes int64
	// FanIn is the maximum number of runs merged in one pass
	FanIn int
	// SpillDir is the parent of the per-sort temporary directory
	SpillDir string
	// Compression encodes run files
	Compression compression.Algorithm
	// ParallelSpill sorts and writes one chunk while the next is read.
	// The chunk budget is halved so the total stays within RunSizeRows.
	ParallelSpill bool
	// Logger receives stage events at debug level
	Logger *zap.Logger
	// Knobs are hooks for tests
	Knobs TestingKnobs
}

// TestingKnobs inject failures into a running sort
type TestingKnobs struct {
	// BeforeMergeRow runs before each row of the final merge is emitted,
	// with the number of rows emitted so far. A non-nil error fails the
	// merge like a run read failure.
	BeforeMergeRow func(emitted int64) error
}

// DefaultExternalConfig returns the built-in budget
func DefaultExternalConfig() ExternalConfig {
	return ExternalConfig{
		RunSizeRows:   100_000,
		RunSizeBytes:  64 << 20,
		FanIn:         16,
		SpillDir:      os.TempDir(),
		Compression:   compression.S2,
		ParallelSpill: true,
	}
}

func (c ExternalConfig) withDefaults() ExternalConfig {
	d := DefaultExternalConfig()
	if c.RunSizeRows <= 0 {
		c.RunSizeRows = d.RunSizeRows
	}
	c.RunSizeRows = max(c.RunSizeRows, 2)
	if c.RunSizeBytes <= 0 {
		c.RunSizeBytes = d.RunSizeBytes
	}
	if c.FanIn < 2 {
		c.FanIn = d.FanIn
	}
	if c.SpillDir == "" {
		c.SpillDir = d.SpillDir
	}
	if c.Compression == "" {
		c.Compression = compression.None
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Stats describes a finished or running sort
type Stats struct {
	RowsIn      int64
	RowsOut     int64
	Runs        int
	SpillBytes  int64
	MergePasses int
	MaxBuffered int
	InMemory    bool
}

// RowIterator streams sorted rows. Next returns io.EOF after the last row.
// Close releases every resource and may be called at any point.
type RowIterator interface {
	Next(ctx context.Context) (models.Row, error)
	Close() error
}

// ExternalSorter sorts one input of any size within a fixed memory budget
// by spilling sorted runs to disk and merging them. All spill files live
// in one private directory that is removed by Close, and on every error
// path before the error is returned.
type ExternalSorter struct {
	cmp *Comparator
	cfg ExternalConfig
	log *zap.Logger

	dir   string
	runs  []*run
	runID int
	seq   uint64

	inFlight atomic.Int64
	stats    Stats
}

// NewExternalSorter creates a sorter. Zero config fields take defaults.
func NewExternalSorter(cmp *Comparator, cfg ExternalConfig) *ExternalSorter {
	cfg = cfg.withDefaults()
	return &ExternalSorter{
		cmp: cmp,
		cfg: cfg,
		log: cfg.Logger.With(zap.String("component", "external_sort")),
	}
}

// Sort consumes src and returns an iterator over its rows in sorted order.
// The merge runs lazily as the iterator is advanced.
func (s *ExternalSorter) Sort(ctx context.Context, src BatchSource) (_ RowIterator, err error) {
	chunkRows, chunkBytes := s.cfg.RunSizeRows, s.cfg.RunSizeBytes
	if s.cfg.ParallelSpill {
		chunkRows, chunkBytes = max(1, chunkRows/2), max(1, chunkBytes/2)
	}

	w := s.newSpillWriter(ctx)
	defer func() {
		if err != nil {
			w.finish()
			s.Close()
		}
	}()

	var (
		buf      = make([]entry, 0, min(chunkRows, 8192))
		bufBytes int64
		chunks   int
	)
	flush := func() error {
		chunk := buf
		buf, bufBytes = make([]entry, 0, len(chunk)), 0
		chunks++
		return w.submit(chunk)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, row := range batch.Rows {
			buf = append(buf, entry{row: row, seq: s.seq})
			s.seq++
			bufBytes += int64(row.SizeHint())
			s.stats.MaxBuffered = max(s.stats.MaxBuffered, len(buf)+int(s.inFlight.Load()))

			if len(buf) >= chunkRows || bufBytes >= chunkBytes {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}
	s.stats.RowsIn = int64(s.seq)

	if chunks == 0 {
		w.finish()
		slices.SortFunc(buf, s.cmp.compareEntries)
		s.stats.InMemory = true
		s.log.Debug("sorted in memory", zap.Int("rows", len(buf)))
		return &memoryIterator{sorter: s, entries: buf}, nil
	}

	if len(buf) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	if err := w.finish(); err != nil {
		return nil, err
	}
	s.log.Debug("run generation complete",
		zap.Int64("rows", s.stats.RowsIn),
		zap.Int("runs", len(s.runs)),
		zap.Int64("spill_bytes", s.stats.SpillBytes))

	if err := s.reduceRuns(ctx); err != nil {
		return nil, err
	}
	return s.finalMerge()
}

// Stats returns counters of the sort so far
func (s *ExternalSorter) Stats() Stats { return s.stats }

// MaxBuffered returns the peak number of rows held in memory during run
// generation, including a chunk being written in the background
func (s *ExternalSorter) MaxBuffered() int { return s.stats.MaxBuffered }

// Dir returns the spill directory, empty when nothing was spilled or
// after Close
func (s *ExternalSorter) Dir() string { return s.dir }

// Close removes every run file. It is idempotent.
func (s *ExternalSorter) Close() error {
	if s.dir == "" {
		return nil
	}
	dir := s.dir
	s.dir, s.runs = "", nil
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpillIO, "failed to remove spill directory").
			WithDetail("dir", dir)
	}
	s.log.Debug("removed spill directory", zap.String("dir", dir))
	return nil
}

func (s *ExternalSorter) spillError(err error, message string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.IsType(err, errors.ErrorTypeSpillIO) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeSpillIO, message)
}

func (s *ExternalSorter) createRun() (*runWriter, error) {
	if s.dir == "" {
		dir, err := os.MkdirTemp(s.cfg.SpillDir, "colview-sort-*")
		if err != nil {
			return nil, s.spillError(err, "failed to create spill directory")
		}
		s.dir = dir
		s.log.Debug("created spill directory", zap.String("dir", dir))
	}
	s.runID++
	w, err := createRun(s.dir, s.runID, s.cfg.Compression, s.log)
	if err != nil {
		return nil, s.spillError(err, "failed to create run")
	}
	return w, nil
}

// writeRun sorts chunk and persists it as the next run
func (s *ExternalSorter) writeRun(ctx context.Context, chunk []entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slices.SortFunc(chunk, s.cmp.compareEntries)

	w, err := s.createRun()
	if err != nil {
		return err
	}
	for i, e := range chunk {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				w.abort()
				return err
			}
		}
		if err := w.write(e); err != nil {
			w.abort()
			return s.spillError(err, "failed to write run")
		}
	}
	r, err := w.finish()
	if err != nil {
		return s.spillError(err, "failed to finish run")
	}

	s.runs = append(s.runs, r)
	s.stats.Runs++
	s.stats.SpillBytes += r.bytes
	s.log.Debug("spilled run",
		zap.String("path", r.path),
		zap.Int64("rows", r.rows),
		zap.Int64("bytes", r.bytes))
	return nil
}

// reduceRuns merges consecutive groups of FanIn runs until at most FanIn
// remain
func (s *ExternalSorter) reduceRuns(ctx context.Context) error {
	for len(s.runs) > s.cfg.FanIn {
		s.stats.MergePasses++
		next := make([]*run, 0, (len(s.runs)+s.cfg.FanIn-1)/s.cfg.FanIn)
		for start := 0; start < len(s.runs); start += s.cfg.FanIn {
			group := s.runs[start:min(start+s.cfg.FanIn, len(s.runs))]
			if len(group) == 1 {
				next = append(next, group[0])
				continue
			}
			r, err := s.mergeGroup(ctx, group)
			if err != nil {
				return err
			}
			next = append(next, r)
		}
		s.log.Debug("merge pass complete",
			zap.Int("pass", s.stats.MergePasses),
			zap.Int("runs_in", len(s.runs)),
			zap.Int("runs_out", len(next)))
		s.runs = next
	}
	return nil
}

// mergeGroup merges runs into one new run and deletes the inputs
func (s *ExternalSorter) mergeGroup(ctx context.Context, group []*run) (*run, error) {
	readers, err := s.openRuns(group)
	if err != nil {
		return nil, err
	}
	defer closeReaders(readers)

	m, err := newMerger(s.cmp, asSources(readers))
	if err != nil {
		return nil, s.spillError(err, "failed to read run")
	}
	w, err := s.createRun()
	if err != nil {
		return nil, err
	}

	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				w.abort()
				return nil, err
			}
		}
		e, err := m.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.abort()
			return nil, s.spillError(err, "failed to read run")
		}
		if err := w.write(e); err != nil {
			w.abort()
			return nil, s.spillError(err, "failed to write run")
		}
	}

	r, err := w.finish()
	if err != nil {
		return nil, s.spillError(err, "failed to finish run")
	}
	s.stats.SpillBytes += r.bytes
	for _, in := range group {
		removeRunFile(s.log, in.path)
	}
	return r, nil
}

func (s *ExternalSorter) openRuns(runs []*run) ([]*runReader, error) {
	readers := make([]*runReader, 0, len(runs))
	for _, r := range runs {
		rr, err := openRun(r, s.cfg.Compression)
		if err != nil {
			closeReaders(readers)
			return nil, s.spillError(err, "failed to open run")
		}
		readers = append(readers, rr)
	}
	return readers, nil
}

func (s *ExternalSorter) finalMerge() (RowIterator, error) {
	s.stats.MergePasses++
	readers, err := s.openRuns(s.runs)
	if err != nil {
		return nil, err
	}
	m, err := newMerger(s.cmp, asSources(readers))
	if err != nil {
		closeReaders(readers)
		return nil, s.spillError(err, "failed to read run")
	}
	s.log.Debug("final merge started", zap.Int("runs", len(readers)))
	return &mergeIterator{sorter: s, merger: m, readers: readers}, nil
}

func asSources(readers []*runReader) []entrySource {
	out := make([]entrySource, len(readers))
	for i, r := range readers {
		out[i] = r
	}
	return out
}

func closeReaders(readers []*runReader) {
	for _, r := range readers {
		r.close()
	}
}

// spillWriter hands chunks to writeRun, either inline or on one
// background goroutine. Runs are appended in submission order.
type spillWriter struct {
	sorter   *ExternalSorter
	ctx      context.Context
	chunks   chan []entry
	group    *errgroup.Group
	gctx     context.Context
	finished bool
	err      error
}

func (s *ExternalSorter) newSpillWriter(ctx context.Context) *spillWriter {
	w := &spillWriter{sorter: s, ctx: ctx}
	if !s.cfg.ParallelSpill {
		return w
	}

	w.group, w.gctx = errgroup.WithContext(ctx)
	w.chunks = make(chan []entry)
	w.group.Go(func() error {
		for chunk := range w.chunks {
			err := s.writeRun(w.gctx, chunk)
			s.inFlight.Add(-int64(len(chunk)))
			if err != nil {
				return err
			}
		}
		return nil
	})
	return w
}

func (w *spillWriter) submit(chunk []entry) error {
	if w.chunks == nil {
		return w.sorter.writeRun(w.ctx, chunk)
	}

	w.sorter.inFlight.Add(int64(len(chunk)))
	select {
	case w.chunks <- chunk:
		return nil
	case <-w.gctx.Done():
		w.sorter.inFlight.Add(-int64(len(chunk)))
		if err := w.finish(); err != nil {
			return err
		}
		return w.ctx.Err()
	}
}

// finish waits for the background writer. It is idempotent.
func (w *spillWriter) finish() error {
	if w.chunks == nil || w.finished {
		return w.err
	}
	w.finished = true
	close(w.chunks)
	w.err = w.group.Wait()
	return w.err
}

// memoryIterator serves a sort that never spilled
type memoryIterator struct {
	sorter  *ExternalSorter
	entries []entry
	pos     int
}

func (it *memoryIterator) Next(ctx context.Context) (models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.entries) {
		return nil, io.EOF
	}
	row := it.entries[it.pos].row
	it.entries[it.pos] = entry{}
	it.pos++
	it.sorter.stats.RowsOut++
	return row, nil
}

func (it *memoryIterator) Close() error {
	it.entries = nil
	return it.sorter.Close()
}

// mergeIterator streams the final merge pass
type mergeIterator struct {
	sorter  *ExternalSorter
	merger  *merger
	readers []*runReader
	emitted int64
	closed  bool
}

func (it *mergeIterator) Next(ctx context.Context) (models.Row, error) {
	if it.closed {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		it.Close()
		return nil, err
	}
	if hook := it.sorter.cfg.Knobs.BeforeMergeRow; hook != nil {
		if err := hook(it.emitted); err != nil {
			it.Close()
			return nil, it.sorter.spillError(err, "failed to read run")
		}
	}

	e, err := it.merger.next()
	if errors.Is(err, io.EOF) {
		it.sorter.log.Debug("final merge complete", zap.Int64("rows", it.emitted))
		if err := it.Close(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	if err != nil {
		it.Close()
		return nil, it.sorter.spillError(err, fmt.Sprintf("failed to read run after %d rows", it.emitted))
	}
	it.emitted++
	it.sorter.stats.RowsOut++
	return e.row, nil
}

func (it *mergeIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	closeReaders(it.readers)
	it.readers = nil
	return it.sorter.Close()
}
