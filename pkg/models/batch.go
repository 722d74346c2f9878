package models

// Row is a fixed-arity sequence of values aligned with a schema
type Row []Value

// SizeHint estimates the in-memory footprint of the row in bytes
func (r Row) SizeHint() int {
	n := 24
	for _, v := range r {
		n += v.SizeHint()
	}
	return n
}

// Batch is a block of rows moved as a unit between pipeline stages. A
// batch belongs to whichever stage currently holds it.
type Batch struct {
	Rows []Row
}

// NewBatch creates a batch with room for capacity rows
func NewBatch(capacity int) *Batch {
	return &Batch{Rows: make([]Row, 0, capacity)}
}

// Len returns the number of rows in the batch
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Append adds a row to the batch
func (b *Batch) Append(row Row) {
	b.Rows = append(b.Rows, row)
}
