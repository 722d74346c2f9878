package testutil

import (
	"bytes"
	"os"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/colview/pkg/compression"
)

// Record is one row of the nested fixture file
type Record struct {
	ID      int64
	Name    string
	Score   *float64
	Tags    []string
	Street  string
	Zip     int32
	Created int64 // microseconds since epoch
}

var fixtureMetadata = arrow.NewMetadata([]string{"origin"}, []string{"colview-tests"})

// FixtureSchema is the Arrow schema of WriteParquet files
var FixtureSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	{Name: "address", Type: arrow.StructOf(
		arrow.Field{Name: "street", Type: arrow.BinaryTypes.String, Nullable: true},
		arrow.Field{Name: "zip", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	), Nullable: true},
	{Name: "created", Type: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, Nullable: true},
}, &fixtureMetadata)

// BuildRecord converts records into an Arrow record of FixtureSchema.
// The caller must Release it.
func BuildRecord(records []Record) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, FixtureSchema)
	defer b.Release()

	ids := b.Field(0).(*array.Int64Builder)
	names := b.Field(1).(*array.StringBuilder)
	scores := b.Field(2).(*array.Float64Builder)
	tags := b.Field(3).(*array.ListBuilder)
	tagValues := tags.ValueBuilder().(*array.StringBuilder)
	addr := b.Field(4).(*array.StructBuilder)
	streets := addr.FieldBuilder(0).(*array.StringBuilder)
	zips := addr.FieldBuilder(1).(*array.Int32Builder)
	created := b.Field(5).(*array.TimestampBuilder)

	for _, r := range records {
		ids.Append(r.ID)
		names.Append(r.Name)
		if r.Score == nil {
			scores.AppendNull()
		} else {
			scores.Append(*r.Score)
		}
		if r.Tags == nil {
			tags.AppendNull()
		} else {
			tags.Append(true)
			for _, tag := range r.Tags {
				tagValues.Append(tag)
			}
		}
		addr.Append(true)
		streets.Append(r.Street)
		zips.Append(r.Zip)
		created.Append(arrow.Timestamp(r.Created))
	}
	return b.NewRecord()
}

// ParquetBytes encodes records as a Parquet file with rowGroupSize rows
// per row group
func ParquetBytes(t testing.TB, records []Record, rowGroupSize int64) []byte {
	t.Helper()

	rec := BuildRecord(records)
	defer rec.Release()
	tbl := array.NewTableFromRecords(FixtureSchema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	err := pqarrow.WriteTable(tbl, &buf, rowGroupSize, props, pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	return buf.Bytes()
}

// WriteParquet writes records to path, compressing the file with the codec
// implied by its extension
func WriteParquet(t testing.TB, path string, records []Record, rowGroupSize int64) {
	t.Helper()
	WriteCompressed(t, path, ParquetBytes(t, records, rowGroupSize))
}

// WriteCompressed writes data to path through the codec implied by its
// extension
func WriteCompressed(t testing.TB, path string, data []byte) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := compression.NewWriter(f, compression.DetectFromPath(path))
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

// SampleRecords returns n deterministic fixture records
func SampleRecords(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		score := float64(i) * 1.5
		out[i] = Record{
			ID:      int64(i),
			Name:    string(rune('a'+i%26)) + "-user",
			Score:   &score,
			Tags:    []string{"t" + string(rune('0'+i%10))},
			Street:  "Main St",
			Zip:     int32(10000 + i),
			Created: int64(i) * 1_000_000,
		}
		if i%4 == 3 {
			out[i].Score = nil
		}
	}
	return out
}

// TypedRecord is one row of the date and decimal fixture file
type TypedRecord struct {
	Day    int32  // days since epoch
	Amount string // DECIMAL(38,2) literal, empty for null
	At     int64  // milliseconds since epoch
}

// TypedSchema is the Arrow schema of WriteTypedParquet files
var TypedSchema = arrow.NewSchema([]arrow.Field{
	{Name: "day", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
	{Name: "amount", Type: &arrow.Decimal128Type{Precision: 38, Scale: 2}, Nullable: true},
	{Name: "at", Type: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}, Nullable: true},
}, nil)

// TypedParquetBytes encodes records as a single row group Parquet file
func TypedParquetBytes(t testing.TB, records []TypedRecord) []byte {
	t.Helper()

	b := array.NewRecordBuilder(memory.DefaultAllocator, TypedSchema)
	defer b.Release()

	days := b.Field(0).(*array.Date32Builder)
	amounts := b.Field(1).(*array.Decimal128Builder)
	ats := b.Field(2).(*array.TimestampBuilder)
	for _, r := range records {
		days.Append(arrow.Date32(r.Day))
		if r.Amount == "" {
			amounts.AppendNull()
		} else {
			n, err := decimal128.FromString(r.Amount, 38, 2)
			require.NoError(t, err)
			amounts.Append(n)
		}
		ats.Append(arrow.Timestamp(r.At))
	}
	rec := b.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(TypedSchema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	err := pqarrow.WriteTable(tbl, &buf, int64(len(records))+1, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	return buf.Bytes()
}

// WriteTypedParquet writes records to path, compressing the file with the
// codec implied by its extension
func WriteTypedParquet(t testing.TB, path string, records []TypedRecord) {
	t.Helper()
	WriteCompressed(t, path, TypedParquetBytes(t, records))
}
