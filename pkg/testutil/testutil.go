// Package testutil provides testing utilities for colview
package testutil

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/colview/pkg/models"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SliceSource is an in-memory batch source over a fixed row set
type SliceSource struct {
	schema    *models.Schema
	rows      []models.Row
	batchSize int
	pos       int

	// FailAfter makes Next return Err once this many batches were served.
	// Zero disables failure injection.
	FailAfter int
	// Err is the injected failure, defaults to a generic read error
	Err error

	// Batches counts batches served so far
	Batches int
}

// NewSliceSource serves rows in batches of batchSize
func NewSliceSource(schema *models.Schema, rows []models.Row, batchSize int) *SliceSource {
	if batchSize <= 0 {
		batchSize = 1024
	}
	return &SliceSource{schema: schema, rows: rows, batchSize: batchSize}
}

// Schema implements formats.BatchSource
func (s *SliceSource) Schema() *models.Schema { return s.schema }

// Next implements formats.BatchSource
func (s *SliceSource) Next(ctx context.Context) (*models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailAfter > 0 && s.Batches >= s.FailAfter {
		if s.Err == nil {
			return nil, fmt.Errorf("injected read failure after %d batches", s.Batches)
		}
		return nil, s.Err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}

	end := min(s.pos+s.batchSize, len(s.rows))
	batch := models.NewBatch(end - s.pos)
	for _, row := range s.rows[s.pos:end] {
		batch.Append(row)
	}
	s.pos = end
	s.Batches++
	return batch, nil
}

// GeneratedSource produces n synthetic rows on demand without holding
// them in memory. Row i is built by gen(i).
type GeneratedSource struct {
	schema    *models.Schema
	n         int
	batchSize int
	gen       func(i int) models.Row
	pos       int
}

// NewGeneratedSource creates a streaming source of n rows
func NewGeneratedSource(schema *models.Schema, n, batchSize int, gen func(i int) models.Row) *GeneratedSource {
	return &GeneratedSource{schema: schema, n: n, batchSize: batchSize, gen: gen}
}

// Schema implements formats.BatchSource
func (g *GeneratedSource) Schema() *models.Schema { return g.schema }

// Next implements formats.BatchSource
func (g *GeneratedSource) Next(ctx context.Context) (*models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.pos >= g.n {
		return nil, io.EOF
	}
	end := min(g.pos+g.batchSize, g.n)
	batch := models.NewBatch(end - g.pos)
	for i := g.pos; i < end; i++ {
		batch.Append(g.gen(i))
	}
	g.pos = end
	return batch, nil
}

// PeopleSchema is the flat schema used by most pipeline tests
func PeopleSchema() *models.Schema {
	return models.MustSchema(
		models.Field{Name: "name", Type: models.DataType{ID: models.TypeString, Name: "UTF8"}, Nullable: true},
		models.Field{Name: "age", Type: models.DataType{ID: models.TypeInt, Name: "INT64"}, Nullable: true},
		models.Field{Name: "city", Type: models.DataType{ID: models.TypeString, Name: "UTF8"}, Nullable: true},
	)
}

// Person builds a PeopleSchema row. A negative age is stored as null.
func Person(name string, age int64, city string) models.Row {
	ageValue := models.Int(age)
	if age < 0 {
		ageValue = models.Null()
	}
	return models.Row{models.String(name), ageValue, models.String(city)}
}

// People is the three-row table used in the documented scenarios
func People() []models.Row {
	return []models.Row{
		Person("Alice", 30, "Seoul"),
		Person("Bob", 25, "Busan"),
		Person("Carol", 35, "Seoul"),
	}
}
