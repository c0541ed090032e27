package batch

import (
	"io"

	"github.com/teranos/pulsebatch/errors"
)

// Batch is an ordered group of at most BatchSize records. Only the last batch
// of a run may be shorter.
type Batch []Record

// Source drains an Iterator into batches. It never pulls more records than
// the batch being formed needs. Not safe for concurrent use; the admission
// loop is its only reader.
type Source struct {
	it   Iterator
	size int
	done bool
	err  error
	read int64
}

// NewSource creates a Source producing batches of up to size records.
func NewSource(it Iterator, size int) *Source {
	return &Source{it: it, size: size}
}

// Next returns the next batch. It returns an empty batch once the iterator is
// exhausted. A non-EOF iterator error ends the source; records already pulled
// into the partial batch are still returned and the error is kept for Err.
func (s *Source) Next() Batch {
	if s.done {
		return nil
	}

	batch := make(Batch, 0, s.size)
	for len(batch) < s.size {
		rec, err := s.it.Next()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			s.done = true
			s.err = errors.Wrapf(err, "read record %d", s.read+1)
			break
		}
		s.read++
		batch = append(batch, rec)
	}

	if len(batch) == 0 {
		return nil
	}
	return batch
}

// Exhausted reports whether the iterator has ended.
func (s *Source) Exhausted() bool { return s.done }

// Err returns the iterator failure that ended the source, if any.
func (s *Source) Err() error { return s.err }

// Read returns how many records have been pulled so far.
func (s *Source) Read() int64 { return s.read }
