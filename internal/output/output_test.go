package output

import (
	"bytes"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
	"github.com/ajitpratap0/colview/pkg/testutil"
)

func render(t *testing.T, format Format, opts Options, schema *models.Schema, rows []models.Row) string {
	t.Helper()
	var buf bytes.Buffer
	sink, err := New(format, &buf, opts)
	require.NoError(t, err)
	require.NoError(t, sink.Begin(schema))
	for _, r := range rows {
		require.NoError(t, sink.WriteRow(r))
	}
	require.NoError(t, sink.End())
	return buf.String()
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 600_000_000, time.UTC)
	tests := []struct {
		name  string
		value models.Value
		want  string
	}{
		{"null", models.Null(), "NULL"},
		{"bool", models.Bool(true), "true"},
		{"int", models.Int(-42), "-42"},
		{"float", models.Float(3.5), "3.5"},
		{"whole float", models.Float(2), "2"},
		{"tiny float", models.Float(1.5e-9), "1.5e-09"},
		{"string", models.String("héllo"), "héllo"},
		{"timestamp", models.Timestamp(ts), "2024-01-02T03:04:05.6Z"},
		{"far timestamp", models.Timestamp(time.Date(9999, 12, 31, 23, 59, 59, 999_999_999, time.UTC)),
			"9999-12-31T23:59:59.999999999Z"},
		{"date", models.DateOf(ts), "2024-01-02"},
		{"far date", models.Date(2932896), "9999-12-31"},
		{"pre-epoch date", models.Date(-1), "1969-12-31"},
		{"decimal", models.DecimalInt(1234567890123456701, 2), "12345678901234567.01"},
		{"wide decimal", bigDecimal("-12345678901234567890123456789012345602", 2),
			"-123456789012345678901234567890123456.02"},
		{"fractional decimal", models.DecimalInt(-5, 3), "-0.005"},
		{"zero decimal", models.DecimalInt(0, 2), "0.00"},
		{"negative scale", models.DecimalInt(12, -2), "1200"},
		{"struct", models.CompositeValue(models.NewStruct(
			[]string{"a", "b"}, []models.Value{models.Int(1), models.String("x")})), "{a: 1, b: x}"},
		{"list", models.CompositeValue(models.NewList(
			[]models.Value{models.Int(1), models.Null(), models.Int(2)})), "[1, NULL, 2]"},
		{"empty list", models.CompositeValue(models.NewList(nil)), "[]"},
		{"map", models.CompositeValue(models.NewMap(
			[]models.Value{models.String("k")}, []models.Value{models.Float(0.5)})), "{k: 0.5}"},
		{"nested", models.CompositeValue(models.NewStruct(
			[]string{"tags"}, []models.Value{models.CompositeValue(models.NewList([]models.Value{models.String("a")}))})),
			"{tags: [a]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 0))
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hel...", Truncate("hello", 3))
	assert.Equal(t, "한국...", Truncate("한국어입니다", 2), "counts characters, not bytes")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" NDJSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatNDJSON, f)

	_, err = ParseFormat("csv")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestVerticalSink(t *testing.T) {
	out := render(t, FormatVertical, Options{Truncate: 3}, testutil.PeopleSchema(), []models.Row{
		testutil.Person("Alice", 30, "Seoul"),
		testutil.Person("Bob", -1, "Busan"),
	})
	want := strings.Join([]string{
		"*************************** 1 ***************************",
		"                name: Ali...",
		"                 age: 30",
		"                city: Seo...",
		"",
		"*************************** 2 ***************************",
		"                name: Bob",
		"                 age: NUL...",
		"                city: Bus...",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestTableSink(t *testing.T) {
	out := render(t, FormatTable, Options{Truncate: 4}, testutil.PeopleSchema(), testutil.People())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7, out)
	assert.Contains(t, lines[1], "name")
	assert.Contains(t, lines[1], "city")
	assert.Contains(t, out, "Alic...")
	assert.Contains(t, out, "Bob")
	assert.NotContains(t, out, "Carol")

	assert.Empty(t, render(t, FormatTable, Options{}, testutil.PeopleSchema(), nil))
}

func TestNDJSONSink(t *testing.T) {
	schema := models.MustSchema(
		models.Field{Name: "name", Type: models.DataType{ID: models.TypeString, Name: "UTF8"}},
		models.Field{Name: "score", Type: models.DataType{ID: models.TypeFloat, Name: "FLOAT64"}, Nullable: true},
		models.Field{Name: "address", Type: models.DataType{ID: models.TypeStruct, Name: "STRUCT"}},
		models.Field{Name: "tags", Type: models.DataType{ID: models.TypeList, Name: "LIST"}},
	)
	addr := models.CompositeValue(models.NewStruct(
		[]string{"zip", "street"}, []models.Value{models.Int(1234), models.String("Main St")}))
	tags := models.CompositeValue(models.NewList([]models.Value{models.String("a"), models.Null()}))

	long := strings.Repeat("x", 50)
	out := render(t, FormatNDJSON, Options{Truncate: 3}, schema, []models.Row{
		{models.String(long), models.Float(1.5), addr, tags},
		{models.String("b"), models.Float(math.NaN()), addr, tags},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		`{"name":"`+long+`","score":1.5,"address":{"zip":1234,"street":"Main St"},"tags":["a",null]}`,
		lines[0], "column and struct field order are kept, no truncation")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Nil(t, decoded["score"])
}

func TestNDJSONDatesAndDecimals(t *testing.T) {
	schema := models.MustSchema(
		models.Field{Name: "day", Type: models.DataType{ID: models.TypeDate, Name: "DATE32"}},
		models.Field{Name: "amount", Type: models.DataType{ID: models.TypeDecimal, Name: "DECIMAL128(38, 2)"}},
	)
	out := render(t, FormatNDJSON, Options{}, schema, []models.Row{
		{models.Date(19723), bigDecimal("12345678901234567890123456789012345601", 2)},
	})
	assert.Equal(t, `{"day":"2024-01-01","amount":123456789012345678901234567890123456.01}`+"\n", out)
}

func bigDecimal(unscaled string, scale int32) models.Value {
	n, ok := new(big.Int).SetString(unscaled, 10)
	if !ok {
		panic("bad decimal literal " + unscaled)
	}
	return models.Decimal(n, scale)
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(Format("xml"), &bytes.Buffer{}, Options{})
	assert.Error(t, err)
}
