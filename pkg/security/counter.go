package security

import (
	"math"
	"sync"
)

// InvocationCounter hands out invocation counter values for one key.
// It is safe for concurrent use.
type InvocationCounter struct {
	mu        sync.Mutex
	next      uint32
	exhausted bool
	persist   func(next uint32) error
}

// NewInvocationCounter creates a counter whose next value is next. persist,
// if not nil, is called with the following value each time one is used,
// before the protected frame is released.
func NewInvocationCounter(next uint32, persist func(next uint32) error) *InvocationCounter {
	return &InvocationCounter{next: next, persist: persist}
}

// Use runs f with the next counter value and advances the counter only
// when f succeeds. f runs under the counter lock, so concurrent callers
// never observe the same value.
func (c *InvocationCounter) Use(f func(ic uint32) error) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exhausted {
		return 0, ErrCounterExhausted
	}
	ic := c.next
	if err := f(ic); err != nil {
		return 0, err
	}
	if ic == math.MaxUint32 {
		c.exhausted = true
	} else {
		c.next++
	}
	if c.persist != nil {
		if err := c.persist(c.next); err != nil {
			return 0, err
		}
	}
	return ic, nil
}

// Next returns the value the next protected frame will carry.
func (c *InvocationCounter) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Exhausted reports whether every value has been used.
func (c *InvocationCounter) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// ReceptionState rejects received invocation counters that do not exceed
// the last accepted one. It is safe for concurrent use.
type ReceptionState struct {
	mu          sync.Mutex
	last        uint32
	initialized bool
}

// NewReceptionState creates a reception state that accepts only counters
// above last.
func NewReceptionState(last uint32) *ReceptionState {
	return &ReceptionState{last: last, initialized: true}
}

// NewReceptionStateEmpty creates a reception state that accepts any first
// counter.
func NewReceptionStateEmpty() *ReceptionState {
	return &ReceptionState{}
}

// Check reports ErrReplay when ic would be a replay, without accepting it.
func (r *ReceptionState) Check(ic uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized && ic <= r.last {
		return ErrReplay
	}
	return nil
}

// Accept records ic as received. It fails with ErrReplay when ic does not
// exceed the last accepted value.
func (r *ReceptionState) Accept(ic uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized && ic <= r.last {
		return ErrReplay
	}
	r.last = ic
	r.initialized = true
	return nil
}

// Restore raises the last accepted counter to last, as when resuming from
// stored state. It never lowers it.
func (r *ReceptionState) Restore(last uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized || last > r.last {
		r.last = last
		r.initialized = true
	}
}

// Last returns the last accepted counter and whether any was accepted.
func (r *ReceptionState) Last() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.initialized
}
