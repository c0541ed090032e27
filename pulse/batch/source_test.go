package batch

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsebatch/errors"
)

// countingIterator counts how many records were pulled.
type countingIterator struct {
	n     int
	pulls int
	fail  error // returned once n records were pulled, instead of io.EOF
}

func (c *countingIterator) Next() (Record, error) {
	if c.pulls >= c.n {
		if c.fail != nil {
			return nil, c.fail
		}
		return nil, io.EOF
	}
	c.pulls++
	return Record{"id": c.pulls}, nil
}

func TestSourceBatches(t *testing.T) {
	src := NewSource(SliceIterator(records(25)), 10)

	var sizes []int
	for {
		b := src.Next()
		if len(b) == 0 {
			break
		}
		sizes = append(sizes, len(b))
	}

	assert.Equal(t, []int{10, 10, 5}, sizes)
	assert.True(t, src.Exhausted())
	assert.NoError(t, src.Err())
	assert.Equal(t, int64(25), src.Read())
	assert.Empty(t, src.Next(), "no batches after exhaustion")
}

func TestSourceExactMultiple(t *testing.T) {
	src := NewSource(SliceIterator(records(20)), 10)

	require.Len(t, src.Next(), 10)
	require.Len(t, src.Next(), 10)
	assert.False(t, src.Exhausted(), "EOF is only seen on the next pull")
	assert.Empty(t, src.Next())
	assert.True(t, src.Exhausted())
}

func TestSourceDoesNotReadAhead(t *testing.T) {
	it := &countingIterator{n: 100}
	src := NewSource(it, 10)

	require.Len(t, src.Next(), 10)
	assert.Equal(t, 10, it.pulls)

	require.Len(t, src.Next(), 10)
	assert.Equal(t, 20, it.pulls)
}

func TestSourceIteratorError(t *testing.T) {
	it := &countingIterator{n: 15, fail: errors.New("bad input")}
	src := NewSource(it, 10)

	require.Len(t, src.Next(), 10)
	partial := src.Next()
	assert.Len(t, partial, 5, "records read before the failure are kept")
	assert.True(t, src.Exhausted())
	require.Error(t, src.Err())
	assert.Equal(t, "bad input", errors.RootMessage(src.Err()))
	assert.Empty(t, src.Next())
}

func TestSourceEmptyInput(t *testing.T) {
	src := NewSource(SliceIterator(nil), 10)
	assert.Empty(t, src.Next())
	assert.True(t, src.Exhausted())
}
