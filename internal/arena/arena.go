// Package arena provides a growable bump allocator for per-step inference
// scratch tensors. One Arena is owned by one engine; every forward pass
// resets it and carves all of its intermediates out of a single backing
// slice, so step-to-step churn never fragments the heap.
package arena

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when growing the arena would exceed its
// configured limit.
var ErrExhausted = errors.New("arena limit exceeded")

// Arena hands out float32 scratch slices from one backing buffer.
type Arena struct {
	buf []float32
	off int

	// maxWords caps growth; 0 means unlimited.
	maxWords int
}

// New returns an arena with the given initial capacity in float32 words.
// maxWords caps later growth (0 = unlimited).
func New(capacity, maxWords int) *Arena {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena{buf: make([]float32, capacity), maxWords: maxWords}
}

// Cap returns the current capacity in words.
func (a *Arena) Cap() int { return len(a.buf) }

// Used returns the words allocated since the last Reset.
func (a *Arena) Used() int { return a.off }

// Reset discards all outstanding allocations. Slices handed out earlier
// must not be used afterwards.
func (a *Arena) Reset() { a.off = 0 }

// Ensure grows the backing buffer to at least words capacity. Growth is
// only ever upward; a request beyond the configured limit fails.
func (a *Arena) Ensure(words int) error {
	if words <= len(a.buf) {
		return nil
	}
	if a.maxWords > 0 && words > a.maxWords {
		return fmt.Errorf("grow to %d words (limit %d): %w", words, a.maxWords, ErrExhausted)
	}
	grown := make([]float32, words)
	a.buf = grown
	a.off = 0
	return nil
}

// Alloc returns a zeroed slice of n words. If the current step outgrows the
// capacity estimate the buffer is extended in place; earlier slices from
// this step stay valid against the old backing array.
func (a *Arena) Alloc(n int) []float32 {
	if n < 0 {
		panic("arena: negative allocation")
	}
	if a.off+n > len(a.buf) {
		need := a.off + n
		if a.maxWords > 0 && need > a.maxWords {
			panic(fmt.Sprintf("arena: allocation of %d words exceeds limit %d", n, a.maxWords))
		}
		grown := make([]float32, need*2)
		a.buf = grown
	}
	s := a.buf[a.off : a.off+n]
	for i := range s {
		s[i] = 0
	}
	a.off += n
	return s
}
