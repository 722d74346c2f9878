package sorter

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
	"github.com/ajitpratap0/colview/pkg/testutil"
)

// scenarioSchema is the age/name table of the documented examples
func scenarioSchema() *models.Schema {
	return models.MustSchema(
		models.Field{Name: "age", Type: models.DataType{ID: models.TypeInt, Name: "INT64"}, Nullable: true},
		models.Field{Name: "name", Type: models.DataType{ID: models.TypeString, Name: "UTF8"}, Nullable: true},
	)
}

func scenarioRows() []models.Row {
	return []models.Row{
		{models.Int(30), models.String("b")},
		{models.Int(25), models.String("a")},
		{models.Int(30), models.String("a")},
	}
}

// seqSchema carries an id column holding the input position, so stability
// can be checked on output
func seqSchema() *models.Schema {
	return models.MustSchema(
		models.Field{Name: "id", Type: models.DataType{ID: models.TypeInt, Name: "INT64"}},
		models.Field{Name: "bucket", Type: models.DataType{ID: models.TypeInt, Name: "INT64"}, Nullable: true},
		models.Field{Name: "label", Type: models.DataType{ID: models.TypeString, Name: "UTF8"}, Nullable: true},
		models.Field{Name: "payload", Type: models.DataType{ID: models.TypeStruct, Name: "STRUCT"}, Nullable: true},
	)
}

// randomRows produces rows with many duplicate keys and some nulls
func randomRows(seed int64, n int) []models.Row {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]models.Row, n)
	for i := range rows {
		bucket := models.Int(int64(rng.Intn(20)))
		if rng.Intn(10) == 0 {
			bucket = models.Null()
		}
		label := models.String(fmt.Sprintf("l%02d", rng.Intn(8)))
		if rng.Intn(15) == 0 {
			label = models.Null()
		}
		payload := models.CompositeValue(models.NewStruct(
			[]string{"n", "tags"},
			[]models.Value{
				models.Float(rng.Float64()),
				models.CompositeValue(models.NewList([]models.Value{models.String("x"), models.Null()})),
			},
		))
		rows[i] = models.Row{models.Int(int64(i)), bucket, label, payload}
	}
	return rows
}

func bucketLabelKeys(t *testing.T, args ...string) []SortKey {
	t.Helper()
	specs, err := ParseSpecs(args)
	require.NoError(t, err)
	keys, err := ResolveKeys(specs, seqSchema(), nil)
	require.NoError(t, err)
	return keys
}

func drain(t *testing.T, it RowIterator) []models.Row {
	t.Helper()
	ctx := context.Background()
	var rows []models.Row
	for {
		row, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

// requireSortedStable checks order under cmp and that equal rows keep
// ascending ids
func requireSortedStable(t *testing.T, cmp *Comparator, rows []models.Row) {
	t.Helper()
	for i := 1; i < len(rows); i++ {
		c := cmp.Compare(rows[i-1], rows[i])
		require.LessOrEqual(t, c, 0, "rows %d and %d out of order", i-1, i)
		if c == 0 {
			require.Less(t, rows[i-1][0].AsInt(), rows[i][0].AsInt(), "tie at %d not stable", i)
		}
	}
}

func ids(rows []models.Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r[0].AsInt()
	}
	return out
}

func source(rows []models.Row, batch int) *testutil.SliceSource {
	return testutil.NewSliceSource(seqSchema(), rows, batch)
}
