// Package poller drives cooperatively scheduled objects: anything with a
// non-blocking Poll method registers in a Set, and the Set is walked on a
// fixed cadence. The cadence bounds every latency in the system (timer
// resolution, request pickup, completion pickup), so it should stay well
// under the shortest timeout in use.
package poller

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the poll cadence used when Run is given none.
const DefaultInterval = 20 * time.Millisecond

// Pollable is one cooperatively scheduled object. Poll must not block.
type Pollable interface {
	Poll()
}

// Set is a mutable collection of pollables. Registration is identity based:
// a pollable registers once and deregisters by the same value. The zero Set
// is ready to use and all methods are safe for concurrent use, though Poll
// itself is meant for a single driving goroutine.
type Set struct {
	mu      sync.Mutex
	items   []Pollable
	scratch []Pollable
}

// Register adds p to the set. Registering an already present pollable or nil
// is a no-op.
func (s *Set) Register(p Pollable) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.items {
		if q == p {
			return
		}
	}
	s.items = append(s.items, p)
}

// Deregister removes p from the set. Removing an absent pollable is a no-op.
// A pollable may deregister itself from inside its own Poll.
func (s *Set) Deregister(p Pollable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.items {
		if q == p {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Len reports the number of registered pollables.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Poll walks the set once. The walk runs over a snapshot, so pollables may
// register or deregister during it; changes take effect on the next walk.
func (s *Set) Poll() {
	s.mu.Lock()
	s.scratch = append(s.scratch[:0], s.items...)
	s.mu.Unlock()
	for _, p := range s.scratch {
		p.Poll()
	}
}

// Run polls the set on the given cadence until ctx is done. A non-positive
// cadence uses DefaultInterval.
func (s *Set) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultInterval
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.Poll()
		}
	}
}
