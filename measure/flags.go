package measure

import "sync/atomic"

// Runtime flags live in a single atomic word because RequestActive, End and
// the transport completion may run on goroutines other than the poller's.
const (
	flagRegistered uint32 = 1 << iota // registered with the scheduler
	flagRunning                       // Begin ran, Final's teardown has not
	flagExit                          // End requested a shutdown
	flagActive                        // measuring mode engaged
	flagRqActive                      // pending activate request
	flagRqInactive                    // pending deactivate request
	flagValid                         // current cycle produced a usable reading
	flagSensorOK                      // sensor answered the session probe
	flagSleepNoted                    // sleep notice already sent this session
)

type flags struct{ v atomic.Uint32 }

func (f *flags) set(mask uint32) {
	for {
		old := f.v.Load()
		if f.v.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func (f *flags) clear(mask uint32) {
	for {
		old := f.v.Load()
		if f.v.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// has reports whether any bit of mask is set.
func (f *flags) has(mask uint32) bool { return f.v.Load()&mask != 0 }

// take clears mask and reports whether any of its bits were set. Request
// flags are consumed this way so a request is acted on exactly once.
func (f *flags) take(mask uint32) bool {
	for {
		old := f.v.Load()
		if old&mask == 0 {
			return false
		}
		if f.v.CompareAndSwap(old, old&^mask) {
			return true
		}
	}
}

func (f *flags) load() uint32      { return f.v.Load() }
func (f *flags) store(mask uint32) { f.v.Store(mask) }
