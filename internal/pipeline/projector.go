package pipeline

import (
	"context"
	"strings"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/formats"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Projector selects top-level columns from every batch. It holds no
// per-batch state.
type Projector struct {
	schema   *models.Schema
	indices  []int
	identity bool
}

// NewProjector builds a projection of columns over schema, in the order
// requested. An empty list selects every column. Nested paths such as
// a.b are rejected.
func NewProjector(schema *models.Schema, columns []string) (*Projector, error) {
	if len(columns) == 0 {
		return &Projector{schema: schema, identity: true}, nil
	}

	fields := make([]models.Field, 0, len(columns))
	indices := make([]int, 0, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for _, raw := range columns {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "empty column name in selection")
		}
		if strings.Contains(name, ".") {
			return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
				"column %q: nested field selection is not supported", name).
				WithDetail("column", name)
		}
		idx := schema.Index(name)
		if idx < 0 {
			return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
				"column %q does not exist in the file", name).
				WithDetail("column", name)
		}
		if _, dup := seen[name]; dup {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q selected more than once", name)
		}
		seen[name] = struct{}{}
		fields = append(fields, schema.Fields[idx])
		indices = append(indices, idx)
	}

	projected, err := models.NewSchema(fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid column selection")
	}
	return &Projector{schema: projected, indices: indices, identity: isIdentity(indices, schema.Len())}, nil
}

func isIdentity(indices []int, width int) bool {
	if len(indices) != width {
		return false
	}
	for i, idx := range indices {
		if i != idx {
			return false
		}
	}
	return true
}

// Schema returns the projected schema
func (p *Projector) Schema() *models.Schema { return p.schema }

// Project extracts the selected columns of batch, preserving row order.
// Composite values are carried whole.
func (p *Projector) Project(batch *models.Batch) *models.Batch {
	if p.identity || batch == nil {
		return batch
	}
	out := models.NewBatch(batch.Len())
	for _, row := range batch.Rows {
		projected := make(models.Row, len(p.indices))
		for i, idx := range p.indices {
			projected[i] = row[idx]
		}
		out.Append(projected)
	}
	return out
}

// Source wraps src so that every batch it yields is projected
func (p *Projector) Source(src formats.BatchSource) formats.BatchSource {
	return &projectedSource{src: src, projector: p}
}

type projectedSource struct {
	src       formats.BatchSource
	projector *Projector
}

func (s *projectedSource) Schema() *models.Schema { return s.projector.Schema() }

func (s *projectedSource) Next(ctx context.Context) (*models.Batch, error) {
	batch, err := s.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	return s.projector.Project(batch), nil
}
