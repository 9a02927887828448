// Package arena implements a growable pool of fixed-size records, addressed
// by (index, generation) pairs.
//
// Storage grows in fixed-size chunks, which are never moved or released, so
// a pointer to a record remains addressable for the life of the Arena. It is
// the generation, not the pointer, that says whether the record is still the
// one the caller allocated: every Free increments the slot's generation, and
// every accessor that accepts a generation re-validates it.
//
// Free slots form an intrusive singly linked list, threaded through the dead
// slots themselves, giving O(1) Allocate and Free with no auxiliary storage.
//
// An Arena is not safe for concurrent use.
package arena

const (
	// DefaultChunkSize is used by New if the provided chunk size is not
	// positive.
	DefaultChunkSize = 64

	// nilIndex terminates the free list.
	nilIndex = ^uint32(0)
)

type (
	// Arena is a generic slot allocator. Instances must be initialized
	// using the New factory.
	Arena[T any] struct {
		chunks    []*[]slot[T]
		chunkSize uint32
		// bound is the number of slots ever handed out, i.e. the exclusive
		// upper bound of any valid index
		bound uint32
		// free is the head of the free list, or nilIndex
		free uint32
		len  int
	}

	slot[T any] struct {
		value T
		// generation starts at 1, and skips 0 on wrap, so the zero
		// generation never identifies a live slot
		generation uint32
		// next links free slots, and is meaningless while occupied
		next     uint32
		occupied bool
	}
)

// New initializes an Arena, that will grow by chunkSize slots at a time.
// If chunkSize is not positive, DefaultChunkSize is used. One chunk is
// allocated eagerly.
func New[T any](chunkSize int) *Arena[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	x := Arena[T]{
		chunkSize: uint32(chunkSize),
		free:      nilIndex,
	}
	x.grow()
	return &x
}

// Allocate returns an unoccupied slot, marking it occupied. The returned
// value pointer refers to the zero value of T. The generation is what must be
// provided to the other methods, to address this allocation.
func (x *Arena[T]) Allocate() (index uint32, generation uint32, value *T) {
	var s *slot[T]
	if x.free != nilIndex {
		index = x.free
		s = x.slot(index)
		x.free = s.next
	} else {
		if x.bound == uint32(len(x.chunks))*x.chunkSize {
			x.grow()
		}
		index = x.bound
		x.bound++
		s = x.slot(index)
	}
	s.occupied = true
	s.next = nilIndex
	x.len++
	return index, s.generation, &s.value
}

// Free releases the slot, if it is occupied with the given generation,
// returning true if it was released. The stored value is zeroed, dropping
// any references it held, and the generation is incremented.
//
// Generations wrap. A handle held across 2^32-1 reuses of the same slot will
// alias the new occupant, which is an accepted risk.
func (x *Arena[T]) Free(index, generation uint32) bool {
	s, ok := x.lookup(index, generation)
	if !ok {
		return false
	}
	x.release(index, s)
	return true
}

// Get returns the value stored at index, if it is occupied with the given
// generation.
func (x *Arena[T]) Get(index, generation uint32) (*T, bool) {
	if s, ok := x.lookup(index, generation); ok {
		return &s.value, true
	}
	return nil, false
}

// Valid returns true if index is occupied with the given generation.
func (x *Arena[T]) Valid(index, generation uint32) bool {
	_, ok := x.lookup(index, generation)
	return ok
}

// At returns the value and current generation at index, with ok indicating
// whether the slot is occupied. Intended for iteration, see Bound.
func (x *Arena[T]) At(index uint32) (value *T, generation uint32, ok bool) {
	if index >= x.bound {
		return nil, 0, false
	}
	s := x.slot(index)
	if !s.occupied {
		return nil, s.generation, false
	}
	return &s.value, s.generation, true
}

// Bound returns the exclusive upper bound for indexes of occupied slots.
// A caller iterating [0, Bound()) may capture the bound up front, so slots
// appended during iteration are not visited.
func (x *Arena[T]) Bound() uint32 { return x.bound }

// Len returns the number of occupied slots.
func (x *Arena[T]) Len() int { return x.len }

// Cap returns the number of slots that may be occupied without growing.
func (x *Arena[T]) Cap() int { return len(x.chunks) * int(x.chunkSize) }

// Clear frees every occupied slot, returning the number freed. Generations
// are incremented as they would be by Free.
func (x *Arena[T]) Clear() int {
	var n int
	for i := uint32(0); i < x.bound; i++ {
		if s := x.slot(i); s.occupied {
			x.release(i, s)
			n++
		}
	}
	return n
}

func (x *Arena[T]) lookup(index, generation uint32) (*slot[T], bool) {
	if index >= x.bound || generation == 0 {
		return nil, false
	}
	s := x.slot(index)
	if !s.occupied || s.generation != generation {
		return nil, false
	}
	return s, true
}

func (x *Arena[T]) release(index uint32, s *slot[T]) {
	var zero T
	s.value = zero
	s.occupied = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.next = x.free
	x.free = index
	x.len--
}

func (x *Arena[T]) slot(index uint32) *slot[T] {
	return &(*x.chunks[index/x.chunkSize])[index%x.chunkSize]
}

func (x *Arena[T]) grow() {
	chunk := make([]slot[T], x.chunkSize)
	for i := range chunk {
		chunk[i].generation = 1
		chunk[i].next = nilIndex
	}
	x.chunks = append(x.chunks, &chunk)
}
