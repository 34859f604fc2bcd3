package timesource

import (
	"sync/atomic"
	"time"
)

// Holder is a Clock whose backing clock can be swapped at runtime. The
// server starts on the local clock and swaps in the authority-corrected
// one once the startup resync finishes, without blocking startup.
type Holder struct {
	current atomic.Value
}

func NewHolder(initial Clock) *Holder {
	h := &Holder{}
	h.current.Store(&initial)
	return h
}

func (h *Holder) Now() time.Time {
	return (*h.current.Load().(*Clock)).Now()
}

// Swap replaces the backing clock. Readers see either the old or the new
// clock, never a torn state.
func (h *Holder) Swap(c Clock) {
	h.current.Store(&c)
}
