package output

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/colview/pkg/models"
)

// NullText is how a null cell is shown
const NullText = "NULL"

// DateLayout renders date values
const DateLayout = "2006-01-02"

// FormatValue renders v as display text. Composites are written inline,
// e.g. {street: Main St, zip: 1234} or [1, 2, 3].
func FormatValue(v models.Value) string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v models.Value) {
	switch v.Kind() {
	case models.KindNull:
		sb.WriteString(NullText)
	case models.KindBool:
		sb.WriteString(strconv.FormatBool(v.AsBool()))
	case models.KindInt:
		sb.WriteString(strconv.FormatInt(v.AsInt(), 10))
	case models.KindFloat:
		sb.WriteString(formatFloat(v.AsFloat()))
	case models.KindString:
		sb.WriteString(v.AsString())
	case models.KindTimestamp:
		sb.WriteString(v.AsTime().Format(time.RFC3339Nano))
	case models.KindDate:
		sb.WriteString(v.AsTime().Format(DateLayout))
	case models.KindDecimal:
		sb.WriteString(v.DecimalString())
	case models.KindComposite:
		writeComposite(sb, v.AsComposite())
	}
}

func writeComposite(sb *strings.Builder, c *models.Composite) {
	switch c.Kind {
	case models.CompositeStruct:
		sb.WriteByte('{')
		for i, v := range c.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.Names[i])
			sb.WriteString(": ")
			writeValue(sb, v)
		}
		sb.WriteByte('}')
	case models.CompositeMap:
		sb.WriteByte('{')
		for i, v := range c.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, c.Keys[i])
			sb.WriteString(": ")
			writeValue(sb, v)
		}
		sb.WriteByte('}')
	default:
		sb.WriteByte('[')
		for i, v := range c.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, v)
		}
		sb.WriteByte(']')
	}
}

func formatFloat(f float64) string {
	if math.Abs(f) >= 1e21 || (f != 0 && math.Abs(f) < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truncate shortens s to n characters followed by "...". Zero or a
// negative n leaves s as is.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := 0
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut] + "..."
}

// JSONValue maps v onto values the JSON encoder understands. Structs keep
// their field order; non-finite floats become null. Decimals are written
// as exact number literals.
func JSONValue(v models.Value) any {
	switch v.Kind() {
	case models.KindNull:
		return nil
	case models.KindBool:
		return v.AsBool()
	case models.KindInt:
		return v.AsInt()
	case models.KindFloat:
		f := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case models.KindString:
		return v.AsString()
	case models.KindTimestamp:
		return v.AsTime().Format(time.RFC3339Nano)
	case models.KindDate:
		return v.AsTime().Format(DateLayout)
	case models.KindDecimal:
		return json.Number(v.DecimalString())
	case models.KindComposite:
		c := v.AsComposite()
		switch c.Kind {
		case models.CompositeStruct:
			obj := object{keys: c.Names, values: make([]any, len(c.Values))}
			for i, fv := range c.Values {
				obj.values[i] = JSONValue(fv)
			}
			return obj
		case models.CompositeMap:
			obj := object{keys: make([]string, len(c.Keys)), values: make([]any, len(c.Values))}
			for i := range c.Values {
				obj.keys[i] = FormatValue(c.Keys[i])
				obj.values[i] = JSONValue(c.Values[i])
			}
			return obj
		default:
			items := make([]any, len(c.Values))
			for i, item := range c.Values {
				items[i] = JSONValue(item)
			}
			return items
		}
	}
	return nil
}
