// Package arena provides a slot arena addressed by generation-checked handles.
//
// A [Handle] pairs a slot index with the generation the slot had when the
// value was inserted. Removing a value bumps the slot generation, so handles
// that outlive their value fail every lookup instead of aliasing whatever is
// stored in the slot next.
package arena

import (
	"errors"
	"fmt"
	"math"
)

// ErrExhausted is returned when no further slot can be allocated.
var ErrExhausted = errors.New("arena: slot capacity exhausted")

// DefaultMaxSlots bounds the number of slots an arena may allocate.
const DefaultMaxSlots = math.MaxInt32

// Handle identifies a value stored in an Arena. The zero Handle is never valid.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Invalid is the zero handle.
var Invalid = Handle{}

func (h Handle) IsZero() bool { return h.Generation == 0 }

// Key packs the handle into a single integer usable as a map key or sort key.
func (h Handle) Key() uint64 {
	return uint64(h.Index)<<32 | uint64(h.Generation)
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena stores values of type T in reusable slots.
type Arena[T any] struct {
	slots    []slot[T]
	free     []uint32
	live     int
	maxSlots int
}

func New[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		slots:    make([]slot[T], 0, capacity),
		free:     make([]uint32, 0, capacity),
		maxSlots: DefaultMaxSlots,
	}
}

// SetMaxSlots lowers the slot bound. Existing slots are kept.
func (a *Arena[T]) SetMaxSlots(n int) {
	if n <= 0 || n > DefaultMaxSlots {
		n = DefaultMaxSlots
	}
	a.maxSlots = n
}

// Insert stores v and returns its handle. Freed slots are reused last-in first-out.
func (a *Arena[T]) Insert(v T) (Handle, error) {
	for len(a.free) > 0 {
		idx := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]

		s := &a.slots[idx]
		if s.generation == math.MaxUint32 {
			// retired: the generation cannot advance without wrapping
			continue
		}
		s.generation++
		s.value = v
		s.occupied = true
		a.live++
		return Handle{Index: idx, Generation: s.generation}, nil
	}

	if len(a.slots) >= a.maxSlots {
		return Invalid, ErrExhausted
	}

	idx := uint32(len(a.slots))
	a.slots = append(a.slots, slot[T]{value: v, generation: 1, occupied: true})
	a.live++
	return Handle{Index: idx, Generation: 1}, nil
}

// Contains reports whether h refers to a live value.
func (a *Arena[T]) Contains(h Handle) bool {
	if h.Generation == 0 || int(h.Index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.Index]
	return s.occupied && s.generation == h.Generation
}

// Get returns a pointer to the value for h. The pointer stays valid until the
// next Insert or Remove on the arena.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	if !a.Contains(h) {
		return nil, false
	}
	return &a.slots[h.Index].value, true
}

// Remove frees the slot of h and returns the value it held.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !a.Contains(h) {
		return zero, false
	}
	s := &a.slots[h.Index]
	v := s.value
	s.value = zero
	s.occupied = false
	a.free = append(a.free, h.Index)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.live }

// Iter calls fn for each live value in slot order until fn returns false.
func (a *Arena[T]) Iter(fn func(Handle, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, &s.value) {
			return
		}
	}
}

// Handles returns the handles of all live values in slot order.
func (a *Arena[T]) Handles() []Handle {
	out := make([]Handle, 0, a.live)
	a.Iter(func(h Handle, _ *T) bool {
		out = append(out, h)
		return true
	})
	return out
}

// Clear removes every value, bumping the generation of every occupied slot.
func (a *Arena[T]) Clear() {
	a.Iter(func(h Handle, _ *T) bool {
		a.Remove(h)
		return true
	})
}
