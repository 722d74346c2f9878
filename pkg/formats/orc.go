package formats

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/scritchley/orc"
	"github.com/scritchley/orc/proto"
	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// orcSource implements Source for ORC files. The cursor walks stripes and
// rows; Next groups rows into batches of the configured size.
type orcSource struct {
	reader    *orc.Reader
	cursor    *orc.Cursor
	schema    *models.Schema
	columns   []*orcColumn
	batchSize int
	totalRows int64
	inStripe  bool
	done      bool
	log       *zap.Logger
}

func openORC(in *input) (*orc.Reader, error) {
	r, err := orc.NewReader(in)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "failed to create ORC reader")
	}
	return r, nil
}

func newORCSource(in *input, opts Options, log *zap.Logger) (*orcSource, error) {
	r, err := openORC(in)
	if err != nil {
		return nil, err
	}

	root, err := orcRoot(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	normalized, err := schemaFromORC(root)
	if err != nil {
		r.Close()
		return nil, err
	}

	return &orcSource{
		reader:    r,
		cursor:    r.Select(root.names...),
		schema:    normalized,
		columns:   root.children,
		batchSize: opts.batchSize(),
		totalRows: int64(r.NumRows()),
		log:       log,
	}, nil
}

func (src *orcSource) Schema() *models.Schema { return src.schema }

func (src *orcSource) Format() Format { return ORC }

func (src *orcSource) EstimatedRows() int64 { return src.totalRows }

func (src *orcSource) Next(ctx context.Context) (*models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.done {
		return nil, io.EOF
	}

	batch := models.NewBatch(src.batchSize)
	for batch.Len() < src.batchSize {
		if src.inStripe && src.cursor.Next() {
			batch.Append(src.convertRow(src.cursor.Row()))
			continue
		}
		if err := src.cursor.Err(); err != nil {
			return nil, readError(err, ORC)
		}
		if src.inStripe = src.cursor.Stripes(); !src.inStripe {
			if err := src.cursor.Err(); err != nil {
				return nil, readError(err, ORC)
			}
			src.done = true
			break
		}
		src.log.Debug("reading stripe")
	}

	if batch.Len() == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (src *orcSource) Close() error {
	return src.reader.Close()
}

func (src *orcSource) convertRow(values []interface{}) models.Row {
	row := make(models.Row, len(src.columns))
	for i, col := range src.columns {
		if i < len(values) {
			row[i] = col.value(values[i])
		}
	}
	return row
}

// orcColumn is one node of the file's type tree. The footer stores types
// flattened in pre-order with the root at id 0; each node lists its
// children by id.
type orcColumn struct {
	kind      proto.Type_Kind
	names     []string
	children  []*orcColumn
	precision uint32
	scale     uint32
	maxLength uint32
}

// maxORCDepth bounds nesting so a corrupt footer cannot recurse forever
const maxORCDepth = 64

func orcRoot(r *orc.Reader) (*orcColumn, error) {
	root, err := orcTypeTree(r.Schema().Types())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "invalid ORC schema")
	}
	if root.kind != proto.Type_STRUCT {
		return nil, errors.Newf(errors.ErrorTypeSourceRead, "ORC root type is %s, not a struct", root)
	}
	return root, nil
}

// orcTypeTree rebuilds the type tree from the flattened footer types
func orcTypeTree(types []*proto.Type) (*orcColumn, error) {
	var build func(id uint32, depth int) (*orcColumn, error)
	build = func(id uint32, depth int) (*orcColumn, error) {
		if int(id) >= len(types) || types[id] == nil {
			return nil, fmt.Errorf("type id %d out of range", id)
		}
		if depth > maxORCDepth {
			return nil, fmt.Errorf("types nested deeper than %d", maxORCDepth)
		}
		t := types[id]
		col := &orcColumn{
			kind:      t.GetKind(),
			names:     t.GetFieldNames(),
			precision: t.GetPrecision(),
			scale:     t.GetScale(),
			maxLength: t.GetMaximumLength(),
		}
		for _, sub := range t.GetSubtypes() {
			if sub <= id {
				return nil, fmt.Errorf("type %d refers back to type %d", id, sub)
			}
			child, err := build(sub, depth+1)
			if err != nil {
				return nil, err
			}
			col.children = append(col.children, child)
		}

		switch col.kind {
		case proto.Type_STRUCT:
			if len(col.names) != len(col.children) {
				return nil, fmt.Errorf("struct type %d has %d names for %d fields", id, len(col.names), len(col.children))
			}
		case proto.Type_LIST:
			if len(col.children) != 1 {
				return nil, fmt.Errorf("list type %d has %d element types", id, len(col.children))
			}
		case proto.Type_MAP:
			if len(col.children) != 2 {
				return nil, fmt.Errorf("map type %d has %d key/value types", id, len(col.children))
			}
		}
		return col, nil
	}

	if len(types) == 0 {
		return nil, fmt.Errorf("no types in footer")
	}
	return build(0, 0)
}

var orcKindNames = map[proto.Type_Kind]string{
	proto.Type_BOOLEAN:   "boolean",
	proto.Type_BYTE:      "tinyint",
	proto.Type_SHORT:     "smallint",
	proto.Type_INT:       "int",
	proto.Type_LONG:      "bigint",
	proto.Type_FLOAT:     "float",
	proto.Type_DOUBLE:    "double",
	proto.Type_STRING:    "string",
	proto.Type_BINARY:    "binary",
	proto.Type_TIMESTAMP: "timestamp",
	proto.Type_LIST:      "array",
	proto.Type_MAP:       "map",
	proto.Type_STRUCT:    "struct",
	proto.Type_UNION:     "uniontype",
	proto.Type_DECIMAL:   "decimal",
	proto.Type_DATE:      "date",
	proto.Type_VARCHAR:   "varchar",
	proto.Type_CHAR:      "char",
}

// String renders the type in ORC schema syntax, for example
// struct<name:string,tags:array<string>>
func (c *orcColumn) String() string {
	var b strings.Builder
	c.write(&b)
	return b.String()
}

func (c *orcColumn) write(b *strings.Builder) {
	name, ok := orcKindNames[c.kind]
	if !ok {
		name = strings.ToLower(c.kind.String())
	}
	b.WriteString(name)

	switch c.kind {
	case proto.Type_DECIMAL:
		fmt.Fprintf(b, "(%d,%d)", c.precision, c.scale)
	case proto.Type_VARCHAR, proto.Type_CHAR:
		fmt.Fprintf(b, "(%d)", c.maxLength)
	case proto.Type_STRUCT:
		b.WriteByte('<')
		for i, child := range c.children {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(c.names[i])
			b.WriteByte(':')
			child.write(b)
		}
		b.WriteByte('>')
	case proto.Type_LIST, proto.Type_MAP, proto.Type_UNION:
		b.WriteByte('<')
		for i, child := range c.children {
			if i > 0 {
				b.WriteByte(',')
			}
			child.write(b)
		}
		b.WriteByte('>')
	}
}

// value converts a decoded cell, using the column type to order struct
// members and to interpret nested containers
func (c *orcColumn) value(v interface{}) models.Value {
	if v == nil {
		return models.Null()
	}

	switch c.kind {
	case proto.Type_STRUCT:
		return c.structValue(v)
	case proto.Type_LIST:
		items, ok := v.([]interface{})
		if !ok {
			return scalarValue(v)
		}
		out := make([]models.Value, len(items))
		for i, item := range items {
			out[i] = c.children[0].value(item)
		}
		return models.CompositeValue(models.NewList(out))
	case proto.Type_MAP:
		return c.mapValue(v)
	case proto.Type_UNION:
		if u, ok := v.(orc.UnionValue); ok && u.Tag >= 0 && u.Tag < len(c.children) {
			return c.children[u.Tag].value(u.Value)
		}
	}
	return scalarValue(v)
}

func (c *orcColumn) structValue(v interface{}) models.Value {
	values := make([]models.Value, len(c.names))
	for i, name := range c.names {
		var cell interface{}
		switch x := v.(type) {
		case orc.Struct:
			cell = x[name]
		case map[string]interface{}:
			cell = x[name]
		case []interface{}:
			if i < len(x) {
				cell = x[i]
			}
		default:
			return scalarValue(v)
		}
		values[i] = c.children[i].value(cell)
	}
	return models.CompositeValue(models.NewStruct(c.names, values))
}

func (c *orcColumn) mapValue(v interface{}) models.Value {
	key, elem := c.children[0], c.children[1]

	var keys, values []models.Value
	switch x := v.(type) {
	case []orc.MapEntry:
		for _, e := range x {
			keys = append(keys, key.value(e.Key))
			values = append(values, elem.value(e.Value))
		}
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map {
			return scalarValue(v)
		}
		mk := rv.MapKeys()
		sort.Slice(mk, func(i, j int) bool {
			return fmt.Sprint(mk[i].Interface()) < fmt.Sprint(mk[j].Interface())
		})
		for _, k := range mk {
			keys = append(keys, key.value(k.Interface()))
			values = append(values, elem.value(rv.MapIndex(k).Interface()))
		}
	}
	return models.CompositeValue(models.NewMap(keys, values))
}

func scalarValue(v interface{}) models.Value {
	switch x := v.(type) {
	case nil:
		return models.Null()
	case bool:
		return models.Bool(x)
	case int64:
		return models.Int(x)
	case int32:
		return models.Int(int64(x))
	case int16:
		return models.Int(int64(x))
	case int8:
		return models.Int(int64(x))
	case int:
		return models.Int(int64(x))
	case orc.Double:
		return models.Float(float64(x))
	case orc.Float:
		return models.Float(float64(x))
	case float32:
		return models.Float(float64(x))
	case float64:
		return models.Float(x)
	case string:
		return models.String(x)
	case []byte:
		return models.Bytes(x)
	case orc.Date:
		return models.DateOf(x.Time)
	case time.Time:
		return models.Timestamp(x)
	case orc.Decimal:
		if x.Int == nil {
			return models.Null()
		}
		return models.Decimal(x.Int, int32(x.Scale))
	}
	return models.String(fmt.Sprint(v))
}

// Schema conversion helpers

func schemaFromORC(root *orcColumn) (*models.Schema, error) {
	fields := make([]models.Field, len(root.names))
	for i, name := range root.names {
		fields[i] = fieldFromORC(name, root.children[i])
	}
	out, err := models.NewSchema(fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceRead, "invalid ORC schema")
	}
	return out, nil
}

// fieldFromORC maps an ORC column. ORC has no required columns, so every
// field is nullable.
func fieldFromORC(name string, c *orcColumn) models.Field {
	return models.Field{Name: name, Type: typeFromORC(c), Nullable: true}
}

func typeFromORC(c *orcColumn) models.DataType {
	name := strings.ToUpper(c.String())

	switch c.kind {
	case proto.Type_BOOLEAN:
		return models.DataType{ID: models.TypeBool, Name: name}
	case proto.Type_BYTE, proto.Type_SHORT, proto.Type_INT, proto.Type_LONG:
		return models.DataType{ID: models.TypeInt, Name: name}
	case proto.Type_FLOAT, proto.Type_DOUBLE:
		return models.DataType{ID: models.TypeFloat, Name: name}
	case proto.Type_STRING, proto.Type_VARCHAR, proto.Type_CHAR:
		return models.DataType{ID: models.TypeString, Name: name}
	case proto.Type_BINARY:
		return models.DataType{ID: models.TypeBinary, Name: name}
	case proto.Type_TIMESTAMP:
		return models.DataType{ID: models.TypeTimestamp, Name: name}
	case proto.Type_DATE:
		return models.DataType{ID: models.TypeDate, Name: name}
	case proto.Type_DECIMAL:
		return models.DataType{ID: models.TypeDecimal, Name: name}
	case proto.Type_STRUCT:
		fields := make([]models.Field, len(c.children))
		for i, child := range c.children {
			fields[i] = fieldFromORC(c.names[i], child)
		}
		return models.DataType{ID: models.TypeStruct, Name: "STRUCT", Children: fields}
	case proto.Type_LIST:
		return models.DataType{
			ID:       models.TypeList,
			Name:     "LIST",
			Children: []models.Field{fieldFromORC("item", c.children[0])},
		}
	case proto.Type_MAP:
		key := fieldFromORC("key", c.children[0])
		key.Nullable = false
		entries := models.DataType{
			ID:       models.TypeStruct,
			Name:     "STRUCT",
			Children: []models.Field{key, fieldFromORC("value", c.children[1])},
		}
		return models.DataType{
			ID:       models.TypeMap,
			Name:     "MAP",
			Children: []models.Field{{Name: "entries", Type: entries}},
		}
	default:
		return models.DataType{ID: models.TypeOther, Name: name}
	}
}

// Metadata helpers

func orcMetadata(in *input, md *Metadata) error {
	r, err := openORC(in)
	if err != nil {
		return err
	}
	defer r.Close()

	root, err := orcRoot(r)
	if err != nil {
		return err
	}
	stripes, err := r.NumStripes()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSourceRead, "failed to read ORC stripes")
	}

	md.Rows = int64(r.NumRows())
	md.Stripes = stripes
	md.Columns = len(root.names)
	return nil
}

func orcRawSchema(in *input, w io.Writer) error {
	r, err := openORC(in)
	if err != nil {
		return err
	}
	defer r.Close()

	root, err := orcRoot(r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, root.String())
	return err
}
