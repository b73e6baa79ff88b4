package measure

import "sync/atomic"

// Transmission state shared between the poll goroutine and the transport's
// completion callback. Everything packs into one atomic word: the low bits
// carry the outcome, the upper bits a generation counter. A completion is
// only recorded against the generation it was issued for, so a late callback
// for an abandoned transmission falls on the floor.
const (
	txPending  uint32 = 1 << iota // transmission handed to the transport
	txComplete                    // transport delivered an outcome
	txError                       // the outcome was a failure

	txGenShift = 8
	txGenMask  = 0xFFFFFF
)

type txState struct{ v atomic.Uint32 }

// begin opens a new transmission generation and returns it. Any prior
// outcome bits are discarded.
func (t *txState) begin() uint32 {
	for {
		old := t.v.Load()
		gen := (old>>txGenShift + 1) & txGenMask
		if t.v.CompareAndSwap(old, gen<<txGenShift|txPending) {
			return gen
		}
	}
}

// finish records the outcome for gen. Completions for a stale generation,
// or duplicates, are dropped.
func (t *txState) finish(gen uint32, ok bool) {
	for {
		old := t.v.Load()
		if old>>txGenShift != gen || old&txPending == 0 {
			return
		}
		bits := txComplete
		if !ok {
			bits |= txError
		}
		if t.v.CompareAndSwap(old, gen<<txGenShift|bits) {
			return
		}
	}
}

// reset clears any recorded outcome without disturbing the generation.
func (t *txState) reset() {
	for {
		old := t.v.Load()
		if t.v.CompareAndSwap(old, old&^(txPending|txComplete|txError)) {
			return
		}
	}
}

// pending reports an in-flight transmission with no outcome yet. It stays
// true for a transmission the loop timed out on and abandoned, which is what
// keeps deep sleep off until the radio settles.
func (t *txState) pending() bool { return t.v.Load()&txPending != 0 }

// complete reports that the transport delivered an outcome.
func (t *txState) complete() bool { return t.v.Load()&txComplete != 0 }

// errored reports that the delivered outcome was a failure.
func (t *txState) errored() bool { return t.v.Load()&txError != 0 }
