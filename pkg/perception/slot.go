package perception

import (
	"sync/atomic"
	"time"
)

// Slot holds the latest Snapshot. One goroutine stores, any number load;
// the last store wins.
type Slot struct {
	p atomic.Pointer[Snapshot]
}

// NewSlot creates a slot holding an empty snapshot stamped now.
func NewSlot() *Slot {
	s := &Slot{}
	s.Store(NoDetection(time.Now()))
	return s
}

// Store replaces the current snapshot.
func (s *Slot) Store(snap Snapshot) {
	s.p.Store(&snap)
}

// Load returns a copy of the current snapshot. An empty slot yields the
// zero Snapshot.
func (s *Slot) Load() Snapshot {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}
