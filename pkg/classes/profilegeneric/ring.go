package profilegeneric

// ring is a bounded circular buffer. Storage grows with the elements held,
// not with the capacity. Pushing into a full ring overwrites the oldest
// element.
type ring[T any] struct {
	items    []T
	start    int
	capacity uint32
}

func newRing[T any](capacity uint32) *ring[T] {
	return &ring[T]{capacity: capacity}
}

func (r *ring[T]) Len() int { return len(r.items) }

func (r *ring[T]) Cap() uint32 { return r.capacity }

func (r *ring[T]) full() bool { return uint32(len(r.items)) >= r.capacity }

// At returns the i-th element, oldest first.
func (r *ring[T]) At(i int) T {
	return r.items[(r.start+i)%len(r.items)]
}

// Push appends v and reports whether an element was evicted. A ring of
// capacity zero drops v.
func (r *ring[T]) Push(v T) bool {
	if r.capacity == 0 {
		return false
	}
	// start only moves once the ring is full.
	if !r.full() {
		r.items = append(r.items, v)
		return false
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
	return true
}

// Slice returns the elements oldest first.
func (r *ring[T]) Slice() []T {
	out := make([]T, len(r.items))
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Load replaces the contents with s, keeping the last Cap elements.
func (r *ring[T]) Load(s []T) {
	if uint64(len(s)) > uint64(r.capacity) {
		s = s[len(s)-int(r.capacity):]
	}
	r.items = append([]T(nil), s...)
	r.start = 0
}

// Resize changes the capacity, keeping the newest elements.
func (r *ring[T]) Resize(capacity uint32) {
	s := r.Slice()
	r.capacity = capacity
	r.Load(s)
}

// Reset removes all elements.
func (r *ring[T]) Reset() {
	r.items = nil
	r.start = 0
}
