package sorter

import (
	"cmp"
	"math"
	"strings"

	"github.com/ajitpratap0/colview/pkg/models"
)

// Comparator orders rows by a list of sort keys in priority order
type Comparator struct {
	keys []SortKey
}

// NewComparator creates a comparator over keys. Keys must come from
// ResolveKeys so that no key targets a composite column.
func NewComparator(keys []SortKey) *Comparator {
	return &Comparator{keys: keys}
}

// Keys returns the sort keys in priority order
func (c *Comparator) Keys() []SortKey { return c.keys }

// Compare returns a negative number when a sorts before b, a positive
// number when it sorts after, and zero when all keys tie. Nulls sort first
// whatever the direction of the key.
func (c *Comparator) Compare(a, b models.Row) int {
	for _, k := range c.keys {
		va, vb := a[k.Index], b[k.Index]
		an, bn := va.IsNull(), vb.IsNull()
		switch {
		case an && bn:
			continue
		case an:
			return -1
		case bn:
			return 1
		}

		r := CompareValues(va, vb)
		if r == 0 {
			continue
		}
		if k.Direction == Descending {
			return -r
		}
		return r
	}
	return 0
}

// compareEntries breaks comparator ties by input sequence
func (c *Comparator) compareEntries(a, b entry) int {
	if r := c.Compare(a.row, b.row); r != 0 {
		return r
	}
	return cmp.Compare(a.seq, b.seq)
}

// kindRank orders values of unrelated kinds. Ints, floats and decimals
// share a rank and are compared numerically; dates and timestamps share one
// and are compared chronologically.
func kindRank(k models.Kind) int {
	switch k {
	case models.KindBool:
		return 1
	case models.KindInt, models.KindFloat, models.KindDecimal:
		return 2
	case models.KindString:
		return 3
	case models.KindTimestamp, models.KindDate:
		return 4
	default:
		return 5
	}
}

// CompareValues is the total order over non-null values. NaN sorts below
// every other number; composites compare equal to each other.
func CompareValues(a, b models.Value) int {
	ka := a.Kind()
	if ra, rb := kindRank(ka), kindRank(b.Kind()); ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch ka {
	case models.KindBool:
		return cmp.Compare(boolRank(a.AsBool()), boolRank(b.AsBool()))
	case models.KindInt, models.KindFloat, models.KindDecimal:
		return compareNumbers(a, b)
	case models.KindString:
		return strings.Compare(a.AsString(), b.AsString())
	case models.KindTimestamp, models.KindDate:
		if ka == models.KindDate && b.Kind() == models.KindDate {
			return cmp.Compare(a.AsDays(), b.AsDays())
		}
		as, ans := a.AsUnix()
		bs, bns := b.AsUnix()
		if r := cmp.Compare(as, bs); r != 0 {
			return r
		}
		return cmp.Compare(ans, bns)
	default:
		return 0
	}
}

func compareNumbers(a, b models.Value) int {
	ka, kb := a.Kind(), b.Kind()
	switch {
	case ka == models.KindInt && kb == models.KindInt:
		return cmp.Compare(a.AsInt(), b.AsInt())
	case ka == models.KindFloat && kb == models.KindFloat:
		return cmp.Compare(a.AsFloat(), b.AsFloat())
	case ka == models.KindInt && kb == models.KindFloat:
		return compareIntFloat(a.AsInt(), b.AsFloat())
	case ka == models.KindFloat && kb == models.KindInt:
		return -compareIntFloat(b.AsInt(), a.AsFloat())
	case ka == models.KindFloat:
		return -compareDecimal(b, a.AsFloat())
	case kb == models.KindFloat:
		return compareDecimal(a, b.AsFloat())
	}

	// decimal against decimal or int
	if ka == models.KindDecimal && kb == models.KindDecimal && a.DecimalScale() == b.DecimalScale() {
		ua, _ := a.AsDecimal()
		ub, _ := b.AsDecimal()
		return ua.Cmp(ub)
	}
	return a.AsRat().Cmp(b.AsRat())
}

// compareDecimal compares a decimal with a float exactly
func compareDecimal(d models.Value, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case math.IsInf(f, 1):
		return -1
	case math.IsInf(f, -1):
		return 1
	}
	return d.AsRat().Cmp(models.Float(f).AsRat())
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// compareIntFloat compares without rounding i through float64, which
// would collapse distinct integers above 2^53
func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f >= math.MaxInt64:
		return -1
	case f < math.MinInt64:
		return 1
	}

	t := math.Trunc(f)
	if ti := int64(t); i != ti {
		return cmp.Compare(i, ti)
	}
	return cmp.Compare(0, f-t)
}
