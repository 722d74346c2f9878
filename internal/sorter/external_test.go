package sorter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/colview/pkg/compression"
	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
	"github.com/ajitpratap0/colview/pkg/testutil"
)

func spillConfig(t *testing.T, dir string) ExternalConfig {
	return ExternalConfig{
		RunSizeRows: 500,
		FanIn:       4,
		SpillDir:    dir,
		Compression: compression.S2,
		Logger:      testutil.TestLogger(t),
	}
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "spill files left behind")
}

func TestExternalSortInMemory(t *testing.T) {
	dir := t.TempDir()
	rows := randomRows(5, 300)
	cmp := NewComparator(bucketLabelKeys(t, "bucket", "label:desc"))

	cfg := spillConfig(t, dir)
	cfg.RunSizeRows = 1000
	cfg.ParallelSpill = false
	sorter := NewExternalSorter(cmp, cfg)
	it, err := sorter.Sort(context.Background(), source(rows, 64))
	require.NoError(t, err)
	defer it.Close()

	assert.True(t, sorter.Stats().InMemory)
	assert.Empty(t, sorter.Dir())
	requireEmptyDir(t, dir)

	got := drain(t, it)
	require.Len(t, got, len(rows))
	requireSortedStable(t, cmp, got)
	assert.Equal(t, int64(len(rows)), sorter.Stats().RowsOut)
}

func TestExternalSortScenario(t *testing.T) {
	schema := testutil.PeopleSchema()
	specs, err := ParseSpecs([]string{"age:desc"})
	require.NoError(t, err)
	keys, err := ResolveKeys(specs, schema, schema)
	require.NoError(t, err)

	rows := append(testutil.People(), testutil.Person("Dave", -1, "Daegu"))
	sorter := NewExternalSorter(NewComparator(keys), ExternalConfig{
		RunSizeRows: 2,
		SpillDir:    t.TempDir(),
		Compression: compression.None,
	})
	it, err := sorter.Sort(context.Background(), testutil.NewSliceSource(schema, rows, 1))
	require.NoError(t, err)

	var names []string
	for _, r := range drain(t, it) {
		names = append(names, r[0].AsString())
	}
	assert.Equal(t, []string{"Dave", "Carol", "Alice", "Bob"}, names)
}

func TestExternalSortSpillsAndMerges(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			dir := t.TempDir()
			rows := randomRows(42, 10_000)
			cmp := NewComparator(bucketLabelKeys(t, "bucket:desc", "label"))

			cfg := spillConfig(t, dir)
			cfg.ParallelSpill = parallel
			sorter := NewExternalSorter(cmp, cfg)
			it, err := sorter.Sort(context.Background(), source(rows, 333))
			require.NoError(t, err)

			stats := sorter.Stats()
			assert.False(t, stats.InMemory)
			assert.Greater(t, stats.Runs, cfg.FanIn)
			assert.Greater(t, stats.MergePasses, 1)
			assert.Positive(t, stats.SpillBytes)
			assert.LessOrEqual(t, sorter.MaxBuffered(), cfg.RunSizeRows)
			assert.NotEmpty(t, sorter.Dir())

			got := drain(t, it)
			require.Len(t, got, len(rows))
			requireSortedStable(t, cmp, got)
			assert.Equal(t, rows[got[0][0].AsInt()], got[0], "rows survive the spill intact")

			assert.Empty(t, sorter.Dir())
			requireEmptyDir(t, dir)
			require.NoError(t, it.Close())
		})
	}
}

func TestExternalSortCodecs(t *testing.T) {
	rows := randomRows(9, 2000)
	cmp := NewComparator(bucketLabelKeys(t, "label", "bucket"))

	for _, alg := range []compression.Algorithm{
		compression.None, compression.Gzip, compression.Zlib, compression.Snappy,
		compression.LZ4, compression.Zstd, compression.S2,
	} {
		t.Run(string(alg), func(t *testing.T) {
			dir := t.TempDir()
			cfg := spillConfig(t, dir)
			cfg.RunSizeRows = 300
			cfg.Compression = alg
			sorter := NewExternalSorter(cmp, cfg)

			it, err := sorter.Sort(context.Background(), source(rows, 128))
			require.NoError(t, err)
			got := drain(t, it)
			require.Len(t, got, len(rows))
			requireSortedStable(t, cmp, got)
			requireEmptyDir(t, dir)
		})
	}
}

func TestExternalSortByteBudget(t *testing.T) {
	cfg := spillConfig(t, t.TempDir())
	cfg.RunSizeRows = 1_000_000
	cfg.RunSizeBytes = 16 << 10
	cfg.ParallelSpill = false

	sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), cfg)
	it, err := sorter.Sort(context.Background(), source(randomRows(1, 3000), 100))
	require.NoError(t, err)
	defer it.Close()

	assert.False(t, sorter.Stats().InMemory)
	assert.Greater(t, sorter.Stats().Runs, 1)
}

func TestExternalSortMergeFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := spillConfig(t, dir)
	cfg.Knobs.BeforeMergeRow = func(emitted int64) error {
		if emitted == 1234 {
			return io.ErrUnexpectedEOF
		}
		return nil
	}

	sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), cfg)
	it, err := sorter.Sort(context.Background(), source(randomRows(2, 5000), 250))
	require.NoError(t, err)

	ctx := context.Background()
	var n int
	for {
		_, err = it.Next(ctx)
		if err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 1234, n)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSpillIO), "got %v", err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	requireEmptyDir(t, dir)

	_, err = it.Next(ctx)
	assert.Equal(t, io.EOF, err, "a failed iterator stays closed")
}

func TestExternalSortEarlyClose(t *testing.T) {
	dir := t.TempDir()
	sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), spillConfig(t, dir))
	it, err := sorter.Sort(context.Background(), source(randomRows(3, 4000), 500))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := it.Next(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	require.NoError(t, sorter.Close())
	requireEmptyDir(t, dir)
}

func TestExternalSortSourceErrorAfterSpill(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		dir := t.TempDir()
		src := source(randomRows(4, 5000), 200)
		src.FailAfter = 12

		cfg := spillConfig(t, dir)
		cfg.ParallelSpill = parallel
		sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), cfg)
		it, err := sorter.Sort(context.Background(), src)
		require.Error(t, err)
		assert.Nil(t, it)
		assert.Contains(t, err.Error(), "injected read failure")
		requireEmptyDir(t, dir)
	}
}

func TestExternalSortWrappedEOF(t *testing.T) {
	rows := randomRows(8, 3000)
	src := source(rows, 100)
	src.FailAfter = 20
	src.Err = fmt.Errorf("stream drained: %w", io.EOF)

	dir := t.TempDir()
	cmp := NewComparator(bucketLabelKeys(t, "bucket"))
	sorter := NewExternalSorter(cmp, spillConfig(t, dir))
	it, err := sorter.Sort(context.Background(), src)
	require.NoError(t, err)
	defer it.Close()

	got := drain(t, it)
	require.Len(t, got, 2000)
	requireSortedStable(t, cmp, got)
}

// drainedSource ends with a wrapped io.EOF
type drainedSource struct {
	entries []entry
}

func (s *drainedSource) next() (entry, error) {
	if len(s.entries) == 0 {
		return entry{}, fmt.Errorf("run drained: %w", io.EOF)
	}
	e := s.entries[0]
	s.entries = s.entries[1:]
	return e, nil
}

func TestMergerWrappedEOF(t *testing.T) {
	cmp := NewComparator(bucketLabelKeys(t, "bucket"))
	rows := randomRows(3, 4)
	sources := []entrySource{
		&drainedSource{},
		&drainedSource{entries: []entry{{row: rows[0], seq: 0}, {row: rows[1], seq: 1}}},
		&drainedSource{entries: []entry{{row: rows[2], seq: 2}}},
	}
	m, err := newMerger(cmp, sources)
	require.NoError(t, err)

	n := 0
	for {
		_, err := m.next()
		if err != nil {
			assert.Equal(t, io.EOF, err)
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
}

func TestRemoveRunFileLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	dir := t.TempDir()
	busy := filepath.Join(dir, "run-000001")
	require.NoError(t, os.Mkdir(busy, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(busy, "x"), nil, 0o600))

	removeRunFile(log, busy)
	failures := logs.FilterMessage("failed to remove run file").All()
	require.Len(t, failures, 1)
	assert.Equal(t, busy, failures[0].ContextMap()["path"])
	assert.Equal(t, zap.DebugLevel, failures[0].Level)

	removeRunFile(log, filepath.Join(dir, "missing"))
	assert.Equal(t, 1, logs.Len(), "a missing file is not a failure")
}

func TestExternalSortCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schema := seqSchema()
	rows := randomRows(8, 1)
	src := testutil.NewGeneratedSource(schema, 1_000_000, 100, func(i int) models.Row {
		if i == 5000 {
			cancel()
		}
		return rows[0]
	})

	sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), spillConfig(t, dir))
	_, err := sorter.Sort(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	requireEmptyDir(t, dir)
}

func TestExternalSortCancelledDuringMerge(t *testing.T) {
	dir := t.TempDir()
	sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), spillConfig(t, dir))
	it, err := sorter.Sort(context.Background(), source(randomRows(6, 3000), 500))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = it.Next(ctx)
	require.NoError(t, err)
	cancel()
	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	requireEmptyDir(t, dir)
}

func TestExternalSortBadSpillDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	for _, parallel := range []bool{false, true} {
		cfg := spillConfig(t, file)
		cfg.ParallelSpill = parallel
		sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), cfg)
		_, err := sorter.Sort(context.Background(), source(randomRows(1, 2000), 100))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeSpillIO), "got %v", err)
	}
}

func TestExternalSortEmptyInput(t *testing.T) {
	sorter := NewExternalSorter(NewComparator(bucketLabelKeys(t, "bucket")), spillConfig(t, t.TempDir()))
	it, err := sorter.Sort(context.Background(), source(nil, 10))
	require.NoError(t, err)
	assert.Empty(t, drain(t, it))
}

func TestWithDefaults(t *testing.T) {
	cfg := ExternalConfig{RunSizeRows: 1, FanIn: 1}.withDefaults()
	assert.Equal(t, 2, cfg.RunSizeRows)
	assert.Equal(t, 16, cfg.FanIn)
	assert.Equal(t, compression.None, cfg.Compression)
	assert.NotEmpty(t, cfg.SpillDir)
	assert.NotNil(t, cfg.Logger)

	cfg = ExternalConfig{}.withDefaults()
	assert.Equal(t, DefaultExternalConfig().RunSizeRows, cfg.RunSizeRows)
}

func TestRunCodecRoundTrip(t *testing.T) {
	values := []models.Value{
		models.Null(),
		models.Bool(true),
		models.Bool(false),
		models.Int(math.MinInt64),
		models.Int(-1),
		models.Float(math.Inf(-1)),
		models.Float(3.25),
		models.String(""),
		models.String("héllo"),
		models.Timestamp(time.Date(2024, 2, 29, 12, 30, 0, 123456789, time.UTC)),
		models.Timestamp(time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)),
		models.Timestamp(time.Date(1, 1, 1, 0, 0, 0, 1, time.UTC)),
		models.Date(-719162),
		models.Date(2932896),
		models.DecimalInt(-1234567890123456701, 2),
		decimal("-12345678901234567890123456789012345601", 2),
		decimal("12345678901234567890123456789012345601", -3),
		models.CompositeValue(models.NewStruct(
			[]string{"a", "b"},
			[]models.Value{models.Int(1), models.CompositeValue(models.NewList([]models.Value{models.Null(), models.String("x")}))},
		)),
		models.CompositeValue(models.NewMap(
			[]models.Value{models.String("k1"), models.String("k2")},
			[]models.Value{models.Float(1.5), models.Null()},
		)),
	}
	in := entry{row: models.Row(values), seq: 1<<40 + 7}

	for _, alg := range []compression.Algorithm{compression.None, compression.Zstd} {
		dir := t.TempDir()
		w, err := createRun(dir, 1, alg, testutil.TestLogger(t))
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			require.NoError(t, w.write(in))
		}
		r, err := w.finish()
		require.NoError(t, err)
		assert.Equal(t, int64(3), r.rows)

		rr, err := openRun(r, alg)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			out, err := rr.next()
			require.NoError(t, err)
			assert.Equal(t, in, out)
		}
		_, err = rr.next()
		assert.Equal(t, io.EOF, err)
		require.NoError(t, rr.close())
	}

	payload := appendEntry(nil, in)
	_, err := decodeEntry(payload[:len(payload)-3])
	assert.Error(t, err, "truncated payload")

	short := bufio.NewReader(bytes.NewReader([]byte{0x05, 1, 2}))
	_, err = readFrame(short, short, nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
