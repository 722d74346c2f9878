package output

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/colview/pkg/models"
)

// WriteSchemaTree draws schema as an indented tree under a root node.
// format labels the header, e.g. "Schema Tree (parquet):".
func WriteSchemaTree(w io.Writer, schema *models.Schema, format string) error {
	p := &printer{w: w}
	p.printf("Schema Tree (%s):\n", format)
	p.printf("└── root\n")
	writeFields(p, schema.Fields, "    ")
	return p.err
}

func writeFields(p *printer, fields []models.Field, indent string) {
	for i, f := range fields {
		last := i == len(fields)-1
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}
		nullable := ""
		if f.Nullable {
			nullable = " (nullable)"
		}
		p.printf("%s%s%s: %s%s\n", indent, branch, f.Name, f.Type.Name, nullable)
		if len(f.Type.Children) > 0 {
			writeFields(p, f.Type.Children, indent+next)
		}
	}
}

// printer remembers the first write error
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
