package models

import (
	"fmt"
)

// TypeID is the normalized type tag of a field
type TypeID string

const (
	TypeNull      TypeID = "null"
	TypeBool      TypeID = "bool"
	TypeInt       TypeID = "int"
	TypeFloat     TypeID = "float"
	TypeString    TypeID = "string"
	TypeBinary    TypeID = "binary"
	TypeTimestamp TypeID = "timestamp"
	TypeDate      TypeID = "date"
	TypeDecimal   TypeID = "decimal"
	TypeStruct    TypeID = "struct"
	TypeList      TypeID = "list"
	TypeMap       TypeID = "map"
	TypeOther     TypeID = "other"
)

// IsNested reports whether values of this type are composites
func (id TypeID) IsNested() bool {
	return id == TypeStruct || id == TypeList || id == TypeMap
}

// DataType describes a field type. Name is the format-specific display
// name (for example INT64 or TIMESTAMP(Microsecond)); Children holds the
// member fields of struct, list and map types.
type DataType struct {
	ID       TypeID  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Children []Field `json:"children,omitempty" yaml:"children,omitempty"`
}

// Field is a named, typed column
type Field struct {
	Name     string   `json:"name" yaml:"name"`
	Type     DataType `json:"type" yaml:"type"`
	Nullable bool     `json:"nullable" yaml:"nullable"`
}

// Schema is the ordered list of top-level fields of a file. It is built
// once per file and never modified afterwards.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
	index  map[string]int
}

// NewSchema builds a schema, rejecting duplicate names at any nesting level
func NewSchema(fields []Field) (*Schema, error) {
	if err := checkUnique(fields, ""); err != nil {
		return nil, err
	}
	s := &Schema{Fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema for statically known field lists
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields)
	if err != nil {
		panic(err)
	}
	return s
}

func checkUnique(fields []Field, path string) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field name %q%s", f.Name, pathSuffix(path))
		}
		seen[f.Name] = struct{}{}
		// list and map children are synthetic element/entry fields that may
		// repeat across siblings, only struct members share a namespace
		if f.Type.ID == TypeStruct {
			if err := checkUnique(f.Type.Children, joinPath(path, f.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func pathSuffix(path string) string {
	if path == "" {
		return ""
	}
	return " in " + path
}

// Len returns the number of top-level fields
func (s *Schema) Len() int { return len(s.Fields) }

// Index returns the position of the named top-level field, or -1
func (s *Schema) Index(name string) int {
	if s.index == nil {
		for i, f := range s.Fields {
			if f.Name == name {
				return i
			}
		}
		return -1
	}
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Names returns the top-level field names in order
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Equal reports whether two schemas have the same fields in the same order
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if !fieldEqual(s.Fields[i], other.Fields[i]) {
			return false
		}
	}
	return true
}

func fieldEqual(a, b Field) bool {
	if a.Name != b.Name || a.Nullable != b.Nullable || a.Type.ID != b.Type.ID || a.Type.Name != b.Type.Name {
		return false
	}
	if len(a.Type.Children) != len(b.Type.Children) {
		return false
	}
	for i := range a.Type.Children {
		if !fieldEqual(a.Type.Children[i], b.Type.Children[i]) {
			return false
		}
	}
	return true
}
