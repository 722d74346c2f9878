package sorter

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Run records are framed as uvarint(len) followed by a payload of
// uvarint(seq), uvarint(columns) and one tagged value per column.

const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagTimestamp
	tagStruct
	tagList
	tagMap
	tagDate
	tagDecimal
	tagBigDecimal
)

func appendEntry(buf []byte, e entry) []byte {
	buf = binary.AppendUvarint(buf, e.seq)
	buf = binary.AppendUvarint(buf, uint64(len(e.row)))
	for _, v := range e.row {
		buf = appendValue(buf, v)
	}
	return buf
}

func appendValue(buf []byte, v models.Value) []byte {
	switch v.Kind() {
	case models.KindNull:
		return append(buf, tagNull)
	case models.KindBool:
		if v.AsBool() {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case models.KindInt:
		return binary.AppendVarint(append(buf, tagInt), v.AsInt())
	case models.KindFloat:
		return binary.LittleEndian.AppendUint64(append(buf, tagFloat), math.Float64bits(v.AsFloat()))
	case models.KindString:
		return appendString(append(buf, tagString), v.AsString())
	case models.KindTimestamp:
		sec, nsec := v.AsUnix()
		buf = binary.AppendVarint(append(buf, tagTimestamp), sec)
		return binary.AppendUvarint(buf, uint64(nsec))
	case models.KindDate:
		return binary.AppendVarint(append(buf, tagDate), v.AsDays())
	case models.KindDecimal:
		return appendDecimal(buf, v)
	case models.KindComposite:
		return appendComposite(buf, v.AsComposite())
	default:
		return append(buf, tagNull)
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// appendDecimal writes the scale, then the unscaled value as a varint when
// it fits or as sign and big-endian magnitude when it does not
func appendDecimal(buf []byte, v models.Value) []byte {
	unscaled, scale := v.AsDecimal()
	if unscaled.IsInt64() {
		buf = binary.AppendVarint(append(buf, tagDecimal), int64(scale))
		return binary.AppendVarint(buf, unscaled.Int64())
	}
	buf = binary.AppendVarint(append(buf, tagBigDecimal), int64(scale))
	sign := byte(0)
	if unscaled.Sign() < 0 {
		sign = 1
	}
	buf = append(buf, sign)
	return appendString(buf, string(unscaled.Abs(unscaled).Bytes()))
}

func appendComposite(buf []byte, c *models.Composite) []byte {
	switch c.Kind {
	case models.CompositeStruct:
		buf = binary.AppendUvarint(append(buf, tagStruct), uint64(len(c.Values)))
		for i, v := range c.Values {
			buf = appendString(buf, c.Names[i])
			buf = appendValue(buf, v)
		}
	case models.CompositeMap:
		buf = binary.AppendUvarint(append(buf, tagMap), uint64(len(c.Values)))
		for i, v := range c.Values {
			buf = appendValue(buf, c.Keys[i])
			buf = appendValue(buf, v)
		}
	default:
		buf = binary.AppendUvarint(append(buf, tagList), uint64(len(c.Values)))
		for _, v := range c.Values {
			buf = appendValue(buf, v)
		}
	}
	return buf
}

// decoder walks one record payload
type decoder struct {
	buf []byte
	off int
}

var errCorruptRecord = fmt.Errorf("corrupt run record")

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		return 0, errCorruptRecord
	}
	d.off += n
	return v, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		return 0, errCorruptRecord
	}
	d.off += n
	return v, nil
}

func (d *decoder) readByte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, errCorruptRecord
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.uvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(len(d.buf)-d.off) {
		return "", errCorruptRecord
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

// count reads a length prefix, bounded by the bytes left so a corrupt
// prefix cannot trigger a huge allocation
func (d *decoder) count() (int, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(len(d.buf)-d.off) {
		return 0, errCorruptRecord
	}
	return int(n), nil
}

func decodeEntry(payload []byte) (entry, error) {
	d := &decoder{buf: payload}
	seq, err := d.uvarint()
	if err != nil {
		return entry{}, err
	}
	n, err := d.count()
	if err != nil {
		return entry{}, err
	}
	row := make(models.Row, n)
	for i := range row {
		if row[i], err = d.value(); err != nil {
			return entry{}, err
		}
	}
	if d.off != len(payload) {
		return entry{}, errCorruptRecord
	}
	return entry{row: row, seq: seq}, nil
}

func (d *decoder) value() (models.Value, error) {
	tag, err := d.readByte()
	if err != nil {
		return models.Value{}, err
	}

	switch tag {
	case tagNull:
		return models.Null(), nil
	case tagFalse:
		return models.Bool(false), nil
	case tagTrue:
		return models.Bool(true), nil
	case tagInt:
		v, err := d.varint()
		return models.Int(v), err
	case tagFloat:
		if len(d.buf)-d.off < 8 {
			return models.Value{}, errCorruptRecord
		}
		bits := binary.LittleEndian.Uint64(d.buf[d.off:])
		d.off += 8
		return models.Float(math.Float64frombits(bits)), nil
	case tagString:
		s, err := d.readString()
		return models.String(s), err
	case tagTimestamp:
		sec, err := d.varint()
		if err != nil {
			return models.Value{}, err
		}
		nsec, err := d.uvarint()
		if err != nil {
			return models.Value{}, err
		}
		if nsec >= 1e9 {
			return models.Value{}, errCorruptRecord
		}
		return models.TimestampUnix(sec, int64(nsec)), nil
	case tagDate:
		v, err := d.varint()
		return models.Date(v), err
	case tagDecimal:
		scale, err := d.varint()
		if err != nil {
			return models.Value{}, err
		}
		v, err := d.varint()
		return models.DecimalInt(v, int32(scale)), err
	case tagBigDecimal:
		scale, err := d.varint()
		if err != nil {
			return models.Value{}, err
		}
		sign, err := d.readByte()
		if err != nil {
			return models.Value{}, err
		}
		mag, err := d.readString()
		if err != nil {
			return models.Value{}, err
		}
		unscaled := new(big.Int).SetBytes([]byte(mag))
		if sign == 1 {
			unscaled.Neg(unscaled)
		}
		return models.Decimal(unscaled, int32(scale)), nil
	case tagStruct:
		n, err := d.count()
		if err != nil {
			return models.Value{}, err
		}
		names := make([]string, n)
		values := make([]models.Value, n)
		for i := 0; i < n; i++ {
			if names[i], err = d.readString(); err != nil {
				return models.Value{}, err
			}
			if values[i], err = d.value(); err != nil {
				return models.Value{}, err
			}
		}
		return models.CompositeValue(models.NewStruct(names, values)), nil
	case tagList:
		n, err := d.count()
		if err != nil {
			return models.Value{}, err
		}
		items := make([]models.Value, n)
		for i := range items {
			if items[i], err = d.value(); err != nil {
				return models.Value{}, err
			}
		}
		return models.CompositeValue(models.NewList(items)), nil
	case tagMap:
		n, err := d.count()
		if err != nil {
			return models.Value{}, err
		}
		keys := make([]models.Value, n)
		values := make([]models.Value, n)
		for i := 0; i < n; i++ {
			if keys[i], err = d.value(); err != nil {
				return models.Value{}, err
			}
			if values[i], err = d.value(); err != nil {
				return models.Value{}, err
			}
		}
		return models.CompositeValue(models.NewMap(keys, values)), nil
	default:
		return models.Value{}, fmt.Errorf("%w: unknown value tag %d", errCorruptRecord, tag)
	}
}

// readFrame reads one length-prefixed record into buf, growing it as
// needed. It returns io.EOF only at a clean record boundary.
func readFrame(r io.ByteReader, full io.Reader, buf []byte) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if n > maxRecordSize {
		return nil, fmt.Errorf("%w: record of %d bytes", errCorruptRecord, n)
	}
	if uint64(cap(buf)) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(full, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// maxRecordSize rejects absurd frame lengths from corrupt files
const maxRecordSize = 1 << 30
