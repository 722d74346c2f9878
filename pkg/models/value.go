// Package models defines the normalized data model shared by every format
// reader and by the row pipeline: schemas, typed values, rows and batches.
//
// Values form a closed variant set (null, bool, int, float, decimal, string,
// timestamp, date, composite). Format readers convert their native column types
// into these variants once, so the pipeline never needs to know which file
// format a row came from.
package models

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindNull is the absent value
	KindNull Kind = iota
	// KindBool holds a boolean
	KindBool
	// KindInt holds a signed 64-bit integer
	KindInt
	// KindFloat holds a 64-bit float
	KindFloat
	// KindString holds a UTF-8 string or a raw binary payload
	KindString
	// KindTimestamp holds an instant with nanosecond precision
	KindTimestamp
	// KindDate holds a calendar day
	KindDate
	// KindDecimal holds an exact fixed-point number
	KindDecimal
	// KindComposite holds a struct, list or map as a single opaque value
	KindComposite
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindDecimal:
		return "decimal"
	case KindComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// Value is a single typed cell. The zero Value is null.
type Value struct {
	kind Kind
	num  int64 // bool (0/1), int, timestamp (unix seconds), date (days), small decimal
	aux  int64 // timestamp nanoseconds, decimal scale
	flt  float64
	str  string
	dec  *big.Int // unscaled decimal that does not fit num
	comp *Composite
}

const secondsPerDay = 86400

// Null returns the null value
func Null() Value { return Value{} }

// Bool returns a boolean value
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Int returns an integer value
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Uint returns an integer value for u, falling back to a float when u does
// not fit in an int64.
func Uint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// Float returns a floating point value
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }

// String returns a string value
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bytes returns a string value carrying a binary payload
func Bytes(b []byte) Value { return Value{kind: KindString, str: string(b)} }

// Timestamp returns a timestamp value normalized to UTC. Any instant
// representable by time.Time is kept exactly.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, num: t.Unix(), aux: int64(t.Nanosecond())}
}

// TimestampUnix returns a timestamp value from unix seconds and nanoseconds.
// nsec may fall outside [0, 1e9) and is carried into sec.
func TimestampUnix(sec, nsec int64) Value {
	if nsec < 0 || nsec >= 1e9 {
		sec += floorDiv(nsec, 1e9)
		nsec -= floorDiv(nsec, 1e9) * 1e9
	}
	return Value{kind: KindTimestamp, num: sec, aux: nsec}
}

// TimestampNanos returns a timestamp value from unix nanoseconds
func TimestampNanos(ns int64) Value { return TimestampUnix(0, ns) }

// Date returns a date value from days since 1970-01-01
func Date(days int64) Value { return Value{kind: KindDate, num: days} }

// DateOf returns the UTC calendar day containing t
func DateOf(t time.Time) Value { return Date(floorDiv(t.Unix(), secondsPerDay)) }

// Decimal returns an exact decimal worth unscaled * 10^-scale
func Decimal(unscaled *big.Int, scale int32) Value {
	if unscaled == nil {
		return Null()
	}
	if unscaled.IsInt64() {
		return DecimalInt(unscaled.Int64(), scale)
	}
	return Value{kind: KindDecimal, dec: new(big.Int).Set(unscaled), aux: int64(scale)}
}

// DecimalInt returns an exact decimal worth unscaled * 10^-scale
func DecimalInt(unscaled int64, scale int32) Value {
	return Value{kind: KindDecimal, num: unscaled, aux: int64(scale)}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CompositeValue wraps a nested value
func CompositeValue(c *Composite) Value {
	if c == nil {
		return Null()
	}
	return Value{kind: KindComposite, comp: c}
}

// Kind returns the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload
func (v Value) AsBool() bool { return v.num != 0 }

// AsInt returns the integer payload
func (v Value) AsInt() int64 { return v.num }

// AsFloat returns the float payload. Integer and decimal values are
// converted, decimals possibly losing precision.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.num)
	case KindDecimal:
		f, _ := v.AsRat().Float64()
		return f
	}
	return v.flt
}

// AsString returns the string payload
func (v Value) AsString() string { return v.str }

// AsTime returns the timestamp payload in UTC. A date converts to its
// midnight.
func (v Value) AsTime() time.Time {
	sec, nsec := v.AsUnix()
	return time.Unix(sec, nsec).UTC()
}

// AsUnix returns the timestamp payload as unix seconds and nanoseconds. A
// date converts to its midnight.
func (v Value) AsUnix() (sec, nsec int64) {
	if v.kind == KindDate {
		return v.num * secondsPerDay, 0
	}
	return v.num, v.aux
}

// AsDays returns the date payload as days since 1970-01-01
func (v Value) AsDays() int64 { return v.num }

// AsDecimal returns the unscaled value and scale of a decimal
func (v Value) AsDecimal() (*big.Int, int32) {
	if v.dec != nil {
		return new(big.Int).Set(v.dec), int32(v.aux)
	}
	return big.NewInt(v.num), int32(v.aux)
}

// DecimalScale returns the scale of a decimal
func (v Value) DecimalScale() int32 { return int32(v.aux) }

// AsRat returns a decimal, int or finite float payload as an exact rational
func (v Value) AsRat() *big.Rat {
	switch v.kind {
	case KindInt:
		return new(big.Rat).SetInt64(v.num)
	case KindFloat:
		if math.IsNaN(v.flt) || math.IsInf(v.flt, 0) {
			return new(big.Rat)
		}
		// shortest decimal form, so 0.1 equals DECIMAL 0.1
		if r, ok := new(big.Rat).SetString(strconv.FormatFloat(v.flt, 'g', -1, 64)); ok {
			return r
		}
		return new(big.Rat).SetFloat64(v.flt)
	case KindDecimal:
		unscaled, scale := v.AsDecimal()
		if scale <= 0 {
			return new(big.Rat).SetInt(unscaled.Mul(unscaled, pow10(int64(-scale))))
		}
		return new(big.Rat).SetFrac(unscaled, pow10(int64(scale)))
	default:
		return new(big.Rat)
	}
}

// DecimalString renders a decimal exactly, with scale digits after the point
func (v Value) DecimalString() string {
	unscaled, scale := v.AsDecimal()
	neg := unscaled.Sign() < 0
	digits := unscaled.Abs(unscaled).String()

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	switch {
	case scale <= 0:
		b.WriteString(digits)
		if digits != "0" {
			b.WriteString(strings.Repeat("0", int(-scale)))
		}
	default:
		if n := int(scale) - len(digits) + 1; n > 0 {
			digits = strings.Repeat("0", n) + digits
		}
		point := len(digits) - int(scale)
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	}
	return b.String()
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// AsComposite returns the nested payload, or nil
func (v Value) AsComposite() *Composite { return v.comp }

// SizeHint estimates the in-memory footprint of v in bytes. It is used to
// enforce byte budgets, not for accounting.
func (v Value) SizeHint() int {
	const base = 48
	switch v.kind {
	case KindString:
		return base + len(v.str)
	case KindDecimal:
		if v.dec != nil {
			return base + len(v.dec.Bits())*8
		}
		return base
	case KindComposite:
		return base + v.comp.sizeHint()
	default:
		return base
	}
}

// CompositeKind identifies the shape of a composite value
type CompositeKind uint8

const (
	// CompositeStruct is a named-field record
	CompositeStruct CompositeKind = iota
	// CompositeList is an ordered sequence
	CompositeList
	// CompositeMap is an ordered sequence of key/value pairs
	CompositeMap
)

// Composite is a nested struct, list or map value. Struct fields keep their
// schema order; map entries keep their file order.
type Composite struct {
	Kind CompositeKind
	// Names holds struct field names, aligned with Values
	Names []string
	// Keys holds map keys, aligned with Values
	Keys []Value
	// Values holds struct field values, list items or map values
	Values []Value
}

// NewStruct builds a struct composite
func NewStruct(names []string, values []Value) *Composite {
	return &Composite{Kind: CompositeStruct, Names: names, Values: values}
}

// NewList builds a list composite
func NewList(items []Value) *Composite {
	return &Composite{Kind: CompositeList, Values: items}
}

// NewMap builds a map composite
func NewMap(keys, values []Value) *Composite {
	return &Composite{Kind: CompositeMap, Keys: keys, Values: values}
}

func (c *Composite) sizeHint() int {
	n := 0
	for _, name := range c.Names {
		n += len(name)
	}
	for _, k := range c.Keys {
		n += k.SizeHint()
	}
	for _, v := range c.Values {
		n += v.SizeHint()
	}
	return n
}
