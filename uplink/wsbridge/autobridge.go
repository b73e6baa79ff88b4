package wsbridge

import (
	"errors"
	"sync"
	"time"

	"scd30node-go/errcode"
	"scd30node-go/uplink"
)

const (
	redialMin = 250 * time.Millisecond
	redialMax = 30 * time.Second
)

// AutoBridge keeps a Bridge alive, redialing in the background with
// exponential backoff. Sends while disconnected fail fast with ErrClosed
// and kick the dialer; the caller's own cadence supplies the retry.
type AutoBridge struct {
	cfg Config

	mu      sync.Mutex
	cur     *Bridge
	dialing bool
	stopped bool
	stop    chan struct{}
}

// DialAuto starts the background dialer and returns immediately. Sends
// fail with ErrClosed until the first connection is up.
func DialAuto(cfg Config) *AutoBridge {
	a := &AutoBridge{cfg: cfg, stop: make(chan struct{})}
	a.mu.Lock()
	a.kick()
	a.mu.Unlock()
	return a
}

// Send implements uplink.Transport. A send that finds the bridge gone
// drops it and triggers a redial before reporting the failure.
func (a *AutoBridge) Send(msg uplink.Message, done uplink.CompletionFunc) error {
	a.mu.Lock()
	b := a.cur
	if b == nil {
		a.kick()
		a.mu.Unlock()
		return &errcode.E{C: errcode.LinkDown, Op: "wsbridge.send", Msg: "not connected", Err: uplink.ErrClosed}
	}
	a.mu.Unlock()

	err := b.Send(msg, done)
	if err != nil && errors.Is(err, uplink.ErrClosed) {
		a.mu.Lock()
		if a.cur == b {
			a.cur = nil
		}
		a.kick()
		a.mu.Unlock()
	}
	return err
}

// Close stops the dialer and tears down any live connection.
func (a *AutoBridge) Close() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	close(a.stop)
	b := a.cur
	a.cur = nil
	a.mu.Unlock()
	if b != nil {
		return b.Close()
	}
	return nil
}

// kick starts the dial goroutine unless one is already running. Callers
// hold a.mu.
func (a *AutoBridge) kick() {
	if a.dialing || a.stopped {
		return
	}
	a.dialing = true
	go a.redial()
}

// redial dials until it succeeds or the bridge is closed.
func (a *AutoBridge) redial() {
	backoff := backoffSeq(redialMin, redialMax)
	for {
		select {
		case <-a.stop:
			a.settleDial(nil)
			return
		default:
		}

		b, err := Dial(a.cfg)
		if err != nil {
			if !a.sleep(backoff()) {
				a.settleDial(nil)
				return
			}
			continue
		}
		if !a.settleDial(b) {
			_ = b.Close()
		}
		return
	}
}

// settleDial installs the fresh bridge, or reports false when the
// AutoBridge was closed while dialing.
func (a *AutoBridge) settleDial(b *Bridge) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dialing = false
	if a.stopped {
		return false
	}
	a.cur = b
	return b != nil
}

// sleep waits d, or returns false when the bridge closes first.
func (a *AutoBridge) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-a.stop:
		return false
	case <-t.C:
		return true
	}
}

// backoffSeq yields min, doubling per call, capped at max.
func backoffSeq(min, max time.Duration) func() time.Duration {
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}
