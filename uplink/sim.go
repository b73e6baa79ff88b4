package uplink

import (
	"sync"
	"time"
)

// SimConfig scripts the simulated transport.
type SimConfig struct {
	Latency time.Duration // delay before completion; 0 completes inline
	Fail    error         // completion outcome (nil = success)
	Silent  bool          // accept sends but never complete them
	Reject  error         // returned by Send itself; nothing is accepted

	// Manual holds completions until Complete is called (tests that need to
	// control exactly when the callback fires).
	Manual bool
}

// Sim is a scriptable in-memory transport. One message may be in flight at a
// time, like a real radio: a Send while busy returns ErrBusy.
type Sim struct {
	mu      sync.Mutex
	cfg     SimConfig
	sent    []Message
	pending CompletionFunc
	busy    bool
}

func NewSim(cfg SimConfig) *Sim { return &Sim{cfg: cfg} }

// Send implements Transport.
func (s *Sim) Send(msg Message, done CompletionFunc) error {
	s.mu.Lock()
	if s.cfg.Reject != nil {
		s.mu.Unlock()
		return s.cfg.Reject
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	cp := Message{Port: msg.Port, Payload: append([]byte(nil), msg.Payload...)}
	s.sent = append(s.sent, cp)
	s.busy = true
	fail := s.cfg.Fail
	switch {
	case s.cfg.Silent:
		// Keep busy forever; completion never fires.
		s.mu.Unlock()
		return nil
	case s.cfg.Manual:
		s.pending = done
		s.mu.Unlock()
		return nil
	case s.cfg.Latency > 0:
		s.mu.Unlock()
		time.AfterFunc(s.cfg.Latency, func() {
			s.finish(done, fail)
		})
		return nil
	default:
		s.mu.Unlock()
		s.finish(done, fail)
		return nil
	}
}

// Complete fires the held completion of a Manual sim.
func (s *Sim) Complete(err error) {
	s.mu.Lock()
	done := s.pending
	s.pending = nil
	s.mu.Unlock()
	if done != nil {
		s.finish(done, err)
	}
}

func (s *Sim) finish(done CompletionFunc, err error) {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
	done(err)
}

// Sent returns copies of all accepted messages (test hook).
func (s *Sim) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
