// Package sorter implements the row ordering used by the view command: a
// multi-key comparator, a bounded top-k engine and an external merge sort
// that spills runs to disk.
package sorter

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/models"
)

// Direction is the order of one sort key
type Direction int

const (
	// Ascending sorts smaller values first
	Ascending Direction = iota
	// Descending sorts larger values first
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortSpec is a parsed but unresolved sort request
type SortSpec struct {
	Column    string
	Direction Direction
}

func (s SortSpec) String() string {
	return s.Column + ":" + s.Direction.String()
}

// SortKey is a sort spec bound to a column position of the row layout
type SortKey struct {
	Column    string
	Index     int
	Direction Direction
}

// ParseSpecs parses sort arguments. Each argument may hold several comma
// separated specs of the form col, col+, col-, col:asc or col:desc.
func ParseSpecs(args []string) ([]SortSpec, error) {
	var specs []SortSpec
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			spec, err := parseSpec(part)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

func parseSpec(raw string) (SortSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return SortSpec{}, errors.New(errors.ErrorTypeValidation, "empty sort specification")
	}

	spec := SortSpec{Column: s, Direction: Ascending}
	switch {
	case strings.HasSuffix(s, "+"):
		spec.Column = s[:len(s)-1]
	case strings.HasSuffix(s, "-"):
		spec.Column, spec.Direction = s[:len(s)-1], Descending
	default:
		if col, order, ok := strings.Cut(s, ":"); ok {
			spec.Column = col
			switch strings.ToLower(strings.TrimSpace(order)) {
			case "asc", "ascending":
			case "desc", "descending":
				spec.Direction = Descending
			default:
				return SortSpec{}, errors.Newf(errors.ErrorTypeValidation,
					"invalid sort order %q in %q, use asc or desc", order, s)
			}
		}
	}

	spec.Column = strings.TrimSpace(spec.Column)
	if spec.Column == "" {
		return SortSpec{}, errors.Newf(errors.ErrorTypeValidation, "sort specification %q has no column", s)
	}
	return spec, nil
}

// ResolveKeys binds specs to positions in rows, which carries the row
// layout after projection. The file schema is consulted to tell a missing
// column from one left out of the selection. Composite columns are
// rejected here so that comparison never meets them.
func ResolveKeys(specs []SortSpec, rows, file *models.Schema) ([]SortKey, error) {
	keys := make([]SortKey, 0, len(specs))
	for _, spec := range specs {
		idx := rows.Index(spec.Column)
		if idx < 0 {
			if file != nil && file.Index(spec.Column) >= 0 {
				return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
					"sort column %q must be included in --columns selection", spec.Column).
					WithDetail("column", spec.Column)
			}
			return nil, errors.Newf(errors.ErrorTypeUnknownColumn,
				"sort column %q does not exist in the file", spec.Column).
				WithDetail("column", spec.Column)
		}

		field := rows.Fields[idx]
		if field.Type.ID.IsNested() {
			return nil, errors.Newf(errors.ErrorTypeUnsupportedSortKey,
				"cannot sort by %s column %q", field.Type.ID, spec.Column).
				WithDetail("column", spec.Column).
				WithDetail("type", field.Type.Name)
		}
		keys = append(keys, SortKey{Column: spec.Column, Index: idx, Direction: spec.Direction})
	}
	return keys, nil
}

// Describe renders keys for log output, e.g. "age:desc,name:asc"
func Describe(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%s", k.Column, k.Direction)
	}
	return strings.Join(parts, ",")
}
