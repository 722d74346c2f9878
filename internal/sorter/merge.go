package sorter

import (
	"container/heap"
	"io"

	"github.com/ajitpratap0/colview/pkg/errors"
)

// entrySource yields sorted entries, io.EOF when exhausted
type entrySource interface {
	next() (entry, error)
}

// head is the smallest unconsumed entry of one source
type head struct {
	e   entry
	src int
}

// frontier is a min-heap over the head of every open source ordered by
// comparator and then input sequence
type frontier struct {
	cmp   *Comparator
	heads []head
}

func (f *frontier) Len() int { return len(f.heads) }
func (f *frontier) Less(i, j int) bool {
	return f.cmp.compareEntries(f.heads[i].e, f.heads[j].e) < 0
}
func (f *frontier) Swap(i, j int) { f.heads[i], f.heads[j] = f.heads[j], f.heads[i] }
func (f *frontier) Push(x any)    { f.heads = append(f.heads, x.(head)) }
func (f *frontier) Pop() any {
	old := f.heads
	n := len(old)
	h := old[n-1]
	old[n-1] = head{}
	f.heads = old[:n-1]
	return h
}

// merger performs a k-way merge of sorted sources, advancing only the
// source the emitted entry came from
type merger struct {
	sources []entrySource
	heap    *frontier
}

func newMerger(cmp *Comparator, sources []entrySource) (*merger, error) {
	m := &merger{
		sources: sources,
		heap:    &frontier{cmp: cmp, heads: make([]head, 0, len(sources))},
	}
	for i, src := range sources {
		e, err := src.next()
		if errors.Is(err, io.EOF) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m.heap.heads = append(m.heap.heads, head{e: e, src: i})
	}
	heap.Init(m.heap)
	return m, nil
}

func (m *merger) next() (entry, error) {
	if m.heap.Len() == 0 {
		return entry{}, io.EOF
	}

	top := m.heap.heads[0]
	e, err := m.sources[top.src].next()
	switch {
	case errors.Is(err, io.EOF):
		heap.Pop(m.heap)
	case err != nil:
		return entry{}, err
	default:
		m.heap.heads[0].e = e
		heap.Fix(m.heap, 0)
	}
	return top.e, nil
}
