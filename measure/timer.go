package measure

import "time"

// pollTimer is the loop's single timer slot. It is touched only from Poll,
// so plain fields suffice. Expiry is latched into fired by update (which
// runs once per poll, before dispatch) and observed read-and-clear by
// consume, so exactly one dispatch sees each expiry.
type pollTimer struct {
	active bool
	fired  bool
	start  time.Time
	delay  time.Duration
}

// arm starts the timer. Arming overwrites any previous deadline and drops an
// unconsumed expiry; there is deliberately only one slot.
func (t *pollTimer) arm(now time.Time, d time.Duration) {
	t.start = now
	t.delay = d
	t.active = true
	t.fired = false
}

// disarm cancels the timer without firing.
func (t *pollTimer) disarm() {
	t.active = false
	t.fired = false
}

// update latches an expiry. Called once per poll before dispatch.
func (t *pollTimer) update(now time.Time) {
	if t.active && now.Sub(t.start) >= t.delay {
		t.active = false
		t.fired = true
	}
}

// consume reports and clears the latched expiry.
func (t *pollTimer) consume() bool {
	fired := t.fired
	t.fired = false
	return fired
}

// remaining reports the time left before expiry; zero when idle or due.
func (t *pollTimer) remaining(now time.Time) time.Duration {
	if !t.active {
		return 0
	}
	left := t.delay - now.Sub(t.start)
	if left < 0 {
		left = 0
	}
	return left
}

// presumeFired latches an expiry regardless of the clock. Used after a deep
// sleep, where the elapsed time cannot be trusted.
func (t *pollTimer) presumeFired() {
	if t.active {
		t.active = false
		t.fired = true
	}
}
