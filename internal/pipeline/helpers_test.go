package pipeline

import (
	"fmt"

	"github.com/ajitpratap0/colview/pkg/models"
)

// recordingSink keeps every row it receives
type recordingSink struct {
	schema *models.Schema
	rows   []models.Row
	ended  bool

	// failAt makes WriteRow fail on this 1-based row, zero disables
	failAt int
}

func (s *recordingSink) Begin(schema *models.Schema) error {
	s.schema = schema
	return nil
}

func (s *recordingSink) WriteRow(row models.Row) error {
	if s.failAt > 0 && len(s.rows)+1 == s.failAt {
		return fmt.Errorf("broken pipe")
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *recordingSink) End() error {
	s.ended = true
	return nil
}
