package formats_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/colview/pkg/compression"
	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/formats"
	"github.com/ajitpratap0/colview/pkg/models"
	"github.com/ajitpratap0/colview/pkg/testutil"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path   string
		format formats.Format
		alg    compression.Algorithm
	}{
		{"data.parquet", formats.Parquet, compression.None},
		{"/tmp/a/data.orc", formats.ORC, compression.None},
		{"data.parquet.gz", formats.Parquet, compression.Gzip},
		{"DATA.PARQUET.ZST", formats.Parquet, compression.Zstd},
		{"events.orc.snappy", formats.ORC, compression.Snappy},
		{"events.orc.z", formats.ORC, compression.Zlib},
		{"events.parquet.lz4", formats.Parquet, compression.LZ4},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, alg, err := formats.Detect(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, tt.alg, alg)
		})
	}

	for _, bad := range []string{"data.csv", "data.gz", "data.parquet.gz.gz", "parquet"} {
		_, _, err := formats.Detect(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat), bad)
	}
}

func TestOpenParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.parquet")
	testutil.WriteParquet(t, path, testutil.SampleRecords(10), 4)

	ctx := context.Background()
	src, err := formats.Open(ctx, path, formats.Options{BatchSize: 3, Logger: testutil.TestLogger(t)})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, formats.Parquet, src.Format())
	assert.Equal(t, int64(10), src.EstimatedRows())
	assert.Equal(t, []string{"id", "name", "score", "tags", "address", "created"}, src.Schema().Names())

	var rows []models.Row
	for {
		batch, err := src.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		assert.LessOrEqual(t, batch.Len(), 3)
		rows = append(rows, batch.Rows...)
	}
	require.Len(t, rows, 10)

	first := rows[0]
	assert.Equal(t, int64(0), first[0].AsInt())
	assert.Equal(t, "a-user", first[1].AsString())
	assert.Equal(t, models.KindFloat, first[2].Kind())

	tags := first[3].AsComposite()
	require.NotNil(t, tags)
	assert.Equal(t, models.CompositeList, tags.Kind)
	require.Len(t, tags.Values, 1)
	assert.Equal(t, "t0", tags.Values[0].AsString())

	addr := first[4].AsComposite()
	require.NotNil(t, addr)
	assert.Equal(t, models.CompositeStruct, addr.Kind)
	assert.Equal(t, []string{"street", "zip"}, addr.Names)
	assert.Equal(t, int64(10000), addr.Values[1].AsInt())

	assert.Equal(t, models.KindTimestamp, first[5].Kind())
	assert.Equal(t, time.Unix(0, 0).UTC(), first[5].AsTime())
	assert.Equal(t, time.Unix(3, 0).UTC(), rows[3][5].AsTime())

	assert.True(t, rows[3][2].IsNull(), "every fourth score is null")
	assert.Equal(t, 3.0, rows[2][2].AsFloat())
}

func TestOpenCompressedParquet(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for _, ext := range []string{".gz", ".zst", ".snappy", ".lz4", ".s2", ".zlib"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "data.parquet"+ext)
			testutil.WriteParquet(t, path, testutil.SampleRecords(25), 10)

			src, err := formats.Open(ctx, path, formats.Options{})
			require.NoError(t, err)
			defer src.Close()

			all, err := formats.ReadAll(ctx, src)
			require.NoError(t, err)
			assert.Equal(t, 25, all.Len())
		})
	}
}

func TestParquetSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.parquet")
	testutil.WriteParquet(t, path, testutil.SampleRecords(2), 10)

	schema, format, err := formats.ReadSchema(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, formats.Parquet, format)

	id := schema.Fields[schema.Index("id")]
	assert.Equal(t, models.TypeInt, id.Type.ID)
	assert.Equal(t, "INT64", id.Type.Name)
	assert.False(t, id.Nullable)

	name := schema.Fields[schema.Index("name")]
	assert.Equal(t, models.TypeString, name.Type.ID)
	assert.True(t, name.Nullable)

	tags := schema.Fields[schema.Index("tags")]
	assert.Equal(t, models.TypeList, tags.Type.ID)
	require.Len(t, tags.Type.Children, 1)
	assert.Equal(t, models.TypeString, tags.Type.Children[0].Type.ID)

	addr := schema.Fields[schema.Index("address")]
	assert.Equal(t, models.TypeStruct, addr.Type.ID)
	require.Len(t, addr.Type.Children, 2)
	assert.Equal(t, "street", addr.Type.Children[0].Name)
	assert.Equal(t, "INT32", addr.Type.Children[1].Type.Name)

	created := schema.Fields[schema.Index("created")]
	assert.Equal(t, models.TypeTimestamp, created.Type.ID)
	assert.Equal(t, "TIMESTAMP(Microsecond, UTC)", created.Type.Name)
}

func TestParquetMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.parquet.gz")
	testutil.WriteParquet(t, path, testutil.SampleRecords(10), 4)

	md, err := formats.ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, path, md.File)
	assert.Equal(t, formats.Parquet, md.Format)
	assert.Equal(t, "gzip", md.Compression)
	assert.Equal(t, int64(10), md.Rows)
	assert.Equal(t, 3, md.RowGroups)
	assert.Contains(t, md.CreatedBy, "parquet-go")
	assert.Contains(t, md.KeyValue, formats.KeyValue{Key: "origin", Value: "colview-tests"})

	raw, err := formats.RawSchema(path)
	require.NoError(t, err)
	assert.Contains(t, raw, "id")
	assert.Contains(t, raw, "address")
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := formats.Open(ctx, filepath.Join(dir, "missing.parquet"), formats.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	corrupt := filepath.Join(dir, "corrupt.parquet")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a parquet file"), 0o600))
	_, err = formats.Open(ctx, corrupt, formats.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceRead))

	badGzip := filepath.Join(dir, "bad.parquet.gz")
	require.NoError(t, os.WriteFile(badGzip, []byte("plain bytes"), 0o600))
	_, err = formats.Open(ctx, badGzip, formats.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceRead))

	_, err = formats.Open(ctx, filepath.Join(dir, "table.csv"), formats.Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat))
}

func TestParquetCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cancel.parquet")
	testutil.WriteParquet(t, path, testutil.SampleRecords(5), 5)

	src, err := formats.Open(context.Background(), path, formats.Options{})
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenORC(t *testing.T) {
	age := func(v int64) *int64 { return &v }
	rows := []testutil.ORCRow{
		{Name: "Alice", Age: age(30), Active: true, Score: 1.5},
		{Name: "Bob", Age: age(25), Active: false, Score: 2.5},
		{Name: "Carol", Age: nil, Active: true, Score: 3.5},
		{Name: "Dave", Age: age(41), Active: false, Score: 4.5},
		{Name: "Eve", Age: age(19), Active: true, Score: 5.5},
	}

	for _, name := range []string{"people.orc", "people.orc.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			testutil.WriteORC(t, path, rows)

			ctx := context.Background()
			src, err := formats.Open(ctx, path, formats.Options{BatchSize: 2})
			require.NoError(t, err)
			defer src.Close()

			assert.Equal(t, formats.ORC, src.Format())
			assert.Equal(t, int64(5), src.EstimatedRows())
			assert.Equal(t, []string{"name", "age", "active", "score"}, src.Schema().Names())
			assert.Equal(t, models.TypeInt, src.Schema().Fields[1].Type.ID)
			assert.Equal(t, models.TypeBool, src.Schema().Fields[2].Type.ID)

			var got []models.Row
			for {
				batch, err := src.Next(ctx)
				if err != nil {
					require.ErrorIs(t, err, io.EOF)
					break
				}
				assert.LessOrEqual(t, batch.Len(), 2)
				got = append(got, batch.Rows...)
			}
			require.Len(t, got, 5)
			assert.Equal(t, "Alice", got[0][0].AsString())
			assert.Equal(t, int64(30), got[0][1].AsInt())
			assert.True(t, got[0][2].AsBool())
			assert.Equal(t, 1.5, got[0][3].AsFloat())
			assert.True(t, got[2][1].IsNull())
			assert.Equal(t, "Eve", got[4][0].AsString())
		})
	}
}

func TestOpenNestedORC(t *testing.T) {
	newYear := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	preEpoch := time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)
	lastDay := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	rows := []testutil.NestedORCRow{
		{ID: 1, Tags: []string{"a", "b"}, Attrs: map[string]int64{"k": 7}, X: 3, Label: "p", Day: newYear, Score: 1.25},
		{ID: 2, X: 4, Label: "q", Day: preEpoch, Score: 2.5},
		{ID: 3, Tags: []string{"c"}, X: 5, Label: "r", Day: lastDay, Score: -0.5},
	}
	path := filepath.Join(t.TempDir(), "nested.orc")
	testutil.WriteNestedORC(t, path, rows)

	ctx := context.Background()
	src, err := formats.Open(ctx, path, formats.Options{})
	require.NoError(t, err)
	defer src.Close()

	schema := src.Schema()
	assert.Equal(t, []string{"id", "tags", "attrs", "info", "day", "score"}, schema.Names())

	tagsField := schema.Fields[1]
	assert.Equal(t, models.TypeList, tagsField.Type.ID)
	require.Len(t, tagsField.Type.Children, 1)
	assert.Equal(t, models.TypeString, tagsField.Type.Children[0].Type.ID)

	attrsField := schema.Fields[2]
	assert.Equal(t, models.TypeMap, attrsField.Type.ID)
	require.Len(t, attrsField.Type.Children, 1)
	entries := attrsField.Type.Children[0].Type
	require.Len(t, entries.Children, 2)
	assert.Equal(t, models.TypeString, entries.Children[0].Type.ID)
	assert.Equal(t, models.TypeInt, entries.Children[1].Type.ID)

	infoField := schema.Fields[3]
	assert.Equal(t, models.TypeStruct, infoField.Type.ID)
	require.Len(t, infoField.Type.Children, 2)
	assert.Equal(t, "x", infoField.Type.Children[0].Name)
	assert.Equal(t, "INT", infoField.Type.Children[0].Type.Name)
	assert.Equal(t, "label", infoField.Type.Children[1].Name)

	assert.Equal(t, models.TypeDate, schema.Fields[4].Type.ID)
	assert.Equal(t, models.TypeFloat, schema.Fields[5].Type.ID)
	assert.Equal(t, "DOUBLE", schema.Fields[5].Type.Name)

	all, err := formats.ReadAll(ctx, src)
	require.NoError(t, err)
	require.Equal(t, 3, all.Len())
	got := all.Rows

	assert.Equal(t, int64(1), got[0][0].AsInt())
	tags := got[0][1].AsComposite()
	require.NotNil(t, tags)
	assert.Equal(t, models.CompositeList, tags.Kind)
	require.Len(t, tags.Values, 2)
	assert.Equal(t, "a", tags.Values[0].AsString())
	assert.Equal(t, "b", tags.Values[1].AsString())

	attrs := got[0][2].AsComposite()
	require.NotNil(t, attrs)
	assert.Equal(t, models.CompositeMap, attrs.Kind)
	require.Len(t, attrs.Keys, 1)
	assert.Equal(t, "k", attrs.Keys[0].AsString())
	assert.Equal(t, int64(7), attrs.Values[0].AsInt())

	info := got[0][3].AsComposite()
	require.NotNil(t, info)
	assert.Equal(t, []string{"x", "label"}, info.Names)
	assert.Equal(t, int64(3), info.Values[0].AsInt())
	assert.Equal(t, "p", info.Values[1].AsString())

	assert.Equal(t, models.KindDate, got[0][4].Kind())
	assert.Equal(t, newYear, got[0][4].AsTime())
	assert.Equal(t, models.KindFloat, got[0][5].Kind())
	assert.Equal(t, 1.25, got[0][5].AsFloat())

	assert.True(t, got[1][1].IsNull())
	assert.True(t, got[1][2].IsNull())
	assert.Equal(t, int64(-1), got[1][4].AsDays())
	assert.Equal(t, "q", got[1][3].AsComposite().Values[1].AsString())
	assert.Equal(t, 2.5, got[1][5].AsFloat())

	require.Len(t, got[2][1].AsComposite().Values, 1)
	assert.Equal(t, "c", got[2][1].AsComposite().Values[0].AsString())
	assert.Equal(t, lastDay, got[2][4].AsTime())
	assert.Equal(t, -0.5, got[2][5].AsFloat())

	raw, err := formats.RawSchema(path)
	require.NoError(t, err)
	assert.Equal(t, testutil.NestedORCSchema, strings.TrimSpace(raw))
}

func TestParquetDatesAndDecimals(t *testing.T) {
	lastSecond := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	records := []testutil.TypedRecord{
		{Day: 19723, Amount: "12345678901234567.01", At: 1704067200000},
		{Day: 2932896, Amount: "12345678901234567.02", At: lastSecond.UnixMilli()},
		{Day: -1, Amount: "", At: -1},
	}
	path := filepath.Join(t.TempDir(), "typed.parquet")
	testutil.WriteTypedParquet(t, path, records)

	ctx := context.Background()
	src, err := formats.Open(ctx, path, formats.Options{})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, models.TypeDate, src.Schema().Fields[0].Type.ID)
	assert.Equal(t, models.TypeDecimal, src.Schema().Fields[1].Type.ID)

	all, err := formats.ReadAll(ctx, src)
	require.NoError(t, err)
	require.Equal(t, 3, all.Len())
	rows := all.Rows

	assert.Equal(t, models.KindDate, rows[0][0].Kind())
	assert.Equal(t, int64(19723), rows[0][0].AsDays())
	assert.Equal(t, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), rows[1][0].AsTime())
	assert.Equal(t, time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC), rows[2][0].AsTime())

	assert.Equal(t, models.KindDecimal, rows[0][1].Kind())
	assert.Equal(t, "12345678901234567.01", rows[0][1].DecimalString())
	assert.Equal(t, "12345678901234567.02", rows[1][1].DecimalString())
	assert.True(t, rows[2][1].IsNull())

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rows[0][2].AsTime())
	assert.Equal(t, lastSecond, rows[1][2].AsTime())
	assert.Equal(t, time.Unix(-1, 999_000_000).UTC(), rows[2][2].AsTime())
}

func TestORCMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.orc")
	testutil.WriteORC(t, path, []testutil.ORCRow{{Name: "x"}, {Name: "y"}})

	md, err := formats.ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, formats.ORC, md.Format)
	assert.Equal(t, int64(2), md.Rows)
	assert.Equal(t, 4, md.Columns)
	assert.GreaterOrEqual(t, md.Stripes, 1)

	raw, err := formats.RawSchema(path)
	require.NoError(t, err)
	assert.Contains(t, raw, "name:string")
}
