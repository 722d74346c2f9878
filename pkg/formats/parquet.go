package formats

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/apache/arrow-go/v18/parquet/schema"
	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// parquetSource implements Source for Parquet files through the Arrow
// record reader
type parquetSource struct {
	fileReader *file.Reader
	records    pqarrow.RecordReader
	schema     *models.Schema
	totalRows  int64
	log        *zap.Logger
}

func openParquet(in *input) (*file.Reader, error) {
	fr, err := file.NewParquetReader(in)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "failed to create Parquet reader")
	}
	return fr, nil
}

func newParquetSource(ctx context.Context, in *input, opts Options, log *zap.Logger) (*parquetSource, error) {
	fr, err := openParquet(in)
	if err != nil {
		return nil, err
	}

	props := pqarrow.ArrowReadProperties{BatchSize: int64(opts.batchSize())}
	arrowReader, err := pqarrow.NewFileReader(fr, props, memory.DefaultAllocator)
	if err != nil {
		fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "failed to create Arrow reader")
	}

	arrowSchema, err := arrowReader.Schema()
	if err != nil {
		fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "failed to get Arrow schema")
	}
	normalized, err := schemaFromArrow(arrowSchema)
	if err != nil {
		fr.Close()
		return nil, err
	}

	rr, err := arrowReader.GetRecordReader(ctx, nil, nil)
	if err != nil {
		fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "failed to create record reader")
	}

	return &parquetSource{
		fileReader: fr,
		records:    rr,
		schema:     normalized,
		totalRows:  fr.NumRows(),
		log:        log,
	}, nil
}

func (ps *parquetSource) Schema() *models.Schema { return ps.schema }

func (ps *parquetSource) Format() Format { return Parquet }

func (ps *parquetSource) EstimatedRows() int64 { return ps.totalRows }

// Next converts the next Arrow record into a batch. The record is only
// valid until the following call, so values are copied out eagerly.
func (ps *parquetSource) Next(ctx context.Context) (*models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ps.records.Next() {
		if err := ps.records.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, readError(err, Parquet)
		}
		return nil, io.EOF
	}
	return recordToBatch(ps.records.Record()), nil
}

func (ps *parquetSource) Close() error {
	ps.records.Release()
	return ps.fileReader.Close()
}

func recordToBatch(rec arrow.Record) *models.Batch {
	cols := rec.Columns()
	n := int(rec.NumRows())
	batch := models.NewBatch(n)
	for i := 0; i < n; i++ {
		row := make(models.Row, len(cols))
		for c, col := range cols {
			row[c] = arrowValue(col, i)
		}
		batch.Append(row)
	}
	return batch
}

// arrowValue extracts row i of arr as a normalized value
func arrowValue(arr arrow.Array, i int) models.Value {
	if arr.IsNull(i) {
		return models.Null()
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return models.Bool(a.Value(i))
	case *array.Int8:
		return models.Int(int64(a.Value(i)))
	case *array.Int16:
		return models.Int(int64(a.Value(i)))
	case *array.Int32:
		return models.Int(int64(a.Value(i)))
	case *array.Int64:
		return models.Int(a.Value(i))
	case *array.Uint8:
		return models.Int(int64(a.Value(i)))
	case *array.Uint16:
		return models.Int(int64(a.Value(i)))
	case *array.Uint32:
		return models.Int(int64(a.Value(i)))
	case *array.Uint64:
		return models.Uint(a.Value(i))
	case *array.Float16:
		return models.Float(float64(a.Value(i).Float32()))
	case *array.Float32:
		return models.Float(float64(a.Value(i)))
	case *array.Float64:
		return models.Float(a.Value(i))
	case *array.String:
		return models.String(a.Value(i))
	case *array.LargeString:
		return models.String(a.Value(i))
	case *array.Binary:
		return models.Bytes(a.Value(i))
	case *array.LargeBinary:
		return models.Bytes(a.Value(i))
	case *array.FixedSizeBinary:
		return models.Bytes(a.Value(i))
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return timestampValue(int64(a.Value(i)), unit)
	case *array.Date32:
		return models.Date(int64(a.Value(i)))
	case *array.Date64:
		return models.DateOf(a.Value(i).ToTime())
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return models.Decimal(a.Value(i).BigInt(), scale)
	case *array.Decimal256:
		scale := a.DataType().(*arrow.Decimal256Type).Scale
		return models.Decimal(a.Value(i).BigInt(), scale)
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		names := make([]string, a.NumField())
		values := make([]models.Value, a.NumField())
		for f := 0; f < a.NumField(); f++ {
			names[f] = st.Field(f).Name
			values[f] = arrowValue(a.Field(f), i)
		}
		return models.CompositeValue(models.NewStruct(names, values))
	case *array.Map:
		start, end := a.ValueOffsets(i)
		keys, items := a.Keys(), a.Items()
		ks := make([]models.Value, 0, end-start)
		vs := make([]models.Value, 0, end-start)
		for j := start; j < end; j++ {
			ks = append(ks, arrowValue(keys, int(j)))
			vs = append(vs, arrowValue(items, int(j)))
		}
		return models.CompositeValue(models.NewMap(ks, vs))
	case *array.List:
		start, end := a.ValueOffsets(i)
		return listValue(a.ListValues(), start, end)
	case *array.LargeList:
		start, end := a.ValueOffsets(i)
		return listValue(a.ListValues(), start, end)
	case *array.FixedSizeList:
		start, end := a.ValueOffsets(i)
		return listValue(a.ListValues(), start, end)
	case *array.Dictionary:
		return arrowValue(a.Dictionary(), a.GetValueIndex(i))
	default:
		return models.String(arr.ValueStr(i))
	}
}

func listValue(values arrow.Array, start, end int64) models.Value {
	items := make([]models.Value, 0, end-start)
	for j := start; j < end; j++ {
		items = append(items, arrowValue(values, int(j)))
	}
	return models.CompositeValue(models.NewList(items))
}

// timestampValue splits a raw timestamp into seconds and nanoseconds so
// that instants outside the int64 nanosecond range survive
func timestampValue(v int64, unit arrow.TimeUnit) models.Value {
	switch unit {
	case arrow.Second:
		return models.TimestampUnix(v, 0)
	case arrow.Millisecond:
		return models.TimestampUnix(v/1e3, (v%1e3)*1e6)
	case arrow.Microsecond:
		return models.TimestampUnix(v/1e6, (v%1e6)*1e3)
	default:
		return models.TimestampUnix(0, v)
	}
}

// Schema conversion helpers

func schemaFromArrow(s *arrow.Schema) (*models.Schema, error) {
	fields := make([]models.Field, 0, s.NumFields())
	for _, f := range s.Fields() {
		fields = append(fields, fieldFromArrow(f))
	}
	out, err := models.NewSchema(fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "invalid Parquet schema")
	}
	return out, nil
}

func fieldFromArrow(f arrow.Field) models.Field {
	return models.Field{Name: f.Name, Type: typeFromArrow(f.Type), Nullable: f.Nullable}
}

var timeUnitNames = [...]string{"Second", "Millisecond", "Microsecond", "Nanosecond"}

func typeFromArrow(dt arrow.DataType) models.DataType {
	switch t := dt.(type) {
	case *arrow.NullType:
		return models.DataType{ID: models.TypeNull, Name: "NULL"}
	case *arrow.BooleanType:
		return models.DataType{ID: models.TypeBool, Name: "BOOLEAN"}
	case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type, *arrow.Int64Type,
		*arrow.Uint8Type, *arrow.Uint16Type, *arrow.Uint32Type, *arrow.Uint64Type:
		return models.DataType{ID: models.TypeInt, Name: strings.ToUpper(dt.Name())}
	case *arrow.Float16Type:
		return models.DataType{ID: models.TypeFloat, Name: "FLOAT16"}
	case *arrow.Float32Type:
		return models.DataType{ID: models.TypeFloat, Name: "FLOAT32"}
	case *arrow.Float64Type:
		return models.DataType{ID: models.TypeFloat, Name: "FLOAT64"}
	case *arrow.StringType:
		return models.DataType{ID: models.TypeString, Name: "UTF8"}
	case *arrow.LargeStringType:
		return models.DataType{ID: models.TypeString, Name: "LARGE_UTF8"}
	case *arrow.BinaryType:
		return models.DataType{ID: models.TypeBinary, Name: "BINARY"}
	case *arrow.LargeBinaryType:
		return models.DataType{ID: models.TypeBinary, Name: "LARGE_BINARY"}
	case *arrow.FixedSizeBinaryType:
		return models.DataType{ID: models.TypeBinary, Name: fmt.Sprintf("FIXED_SIZE_BINARY(%d)", t.ByteWidth)}
	case *arrow.TimestampType:
		name := fmt.Sprintf("TIMESTAMP(%s)", timeUnitNames[t.Unit])
		if t.TimeZone != "" {
			name = fmt.Sprintf("TIMESTAMP(%s, %s)", timeUnitNames[t.Unit], t.TimeZone)
		}
		return models.DataType{ID: models.TypeTimestamp, Name: name}
	case *arrow.Date32Type:
		return models.DataType{ID: models.TypeDate, Name: "DATE32"}
	case *arrow.Date64Type:
		return models.DataType{ID: models.TypeDate, Name: "DATE64"}
	case *arrow.Decimal128Type:
		return models.DataType{ID: models.TypeDecimal, Name: fmt.Sprintf("DECIMAL128(%d, %d)", t.Precision, t.Scale)}
	case *arrow.Decimal256Type:
		return models.DataType{ID: models.TypeDecimal, Name: fmt.Sprintf("DECIMAL256(%d, %d)", t.Precision, t.Scale)}
	case *arrow.StructType:
		children := make([]models.Field, 0, t.NumFields())
		for _, f := range t.Fields() {
			children = append(children, fieldFromArrow(f))
		}
		return models.DataType{ID: models.TypeStruct, Name: "STRUCT", Children: children}
	case *arrow.MapType:
		order := "unsorted"
		if t.KeysSorted {
			order = "sorted"
		}
		return models.DataType{
			ID:       models.TypeMap,
			Name:     fmt.Sprintf("MAP(%s)", order),
			Children: []models.Field{fieldFromArrow(t.ElemField())},
		}
	case *arrow.ListType:
		return models.DataType{ID: models.TypeList, Name: "LIST", Children: []models.Field{fieldFromArrow(t.ElemField())}}
	case *arrow.LargeListType:
		return models.DataType{ID: models.TypeList, Name: "LARGE_LIST", Children: []models.Field{fieldFromArrow(t.ElemField())}}
	case *arrow.FixedSizeListType:
		return models.DataType{
			ID:       models.TypeList,
			Name:     fmt.Sprintf("FIXED_SIZE_LIST(%d)", t.Len()),
			Children: []models.Field{fieldFromArrow(t.ElemField())},
		}
	case *arrow.DictionaryType:
		value := typeFromArrow(t.ValueType)
		value.Name = fmt.Sprintf("DICTIONARY(%s, %s)", typeFromArrow(t.IndexType).Name, value.Name)
		return value
	default:
		return models.DataType{ID: models.TypeOther, Name: strings.ToUpper(dt.Name())}
	}
}

// Metadata helpers

func parquetMetadata(in *input, md *Metadata) error {
	fr, err := openParquet(in)
	if err != nil {
		return err
	}
	defer fr.Close()

	meta := fr.MetaData()
	md.Rows = fr.NumRows()
	md.RowGroups = fr.NumRowGroups()
	md.Columns = meta.Schema.NumColumns()
	md.CreatedBy = meta.GetCreatedBy()
	md.Version = meta.Version().String()
	for _, kv := range meta.KeyValueMetadata() {
		md.KeyValue = append(md.KeyValue, KeyValue{Key: kv.Key, Value: kv.GetValue()})
	}
	return nil
}

func parquetRawSchema(in *input, w io.Writer) error {
	fr, err := openParquet(in)
	if err != nil {
		return err
	}
	defer fr.Close()
	schema.PrintSchema(fr.MetaData().Schema.Root(), w, 2)
	return nil
}
