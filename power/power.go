// Package power models the node's power-management collaborator: whether the
// host may enter deep sleep between measurements, and the act of doing so.
package power

import (
	"sync"
	"time"
)

// Manager is the loop-facing power contract.
type Manager interface {
	// CanDeepSleep reports whether the platform can enter deep sleep now.
	CanDeepSleep() bool
	// DeepSleep models the processor being off for up to d. It may suspend
	// the calling goroutine and returns once the node is notionally awake.
	// The caller must assume volatile peripheral state was lost.
	DeepSleep(d time.Duration)
}

// Null never permits deep sleep. Used on platforms without a supported
// sleep mode and as the safe default.
type Null struct{}

func (Null) CanDeepSleep() bool      { return false }
func (Null) DeepSleep(time.Duration) {}

// Host simulates deep sleep on a hosted platform by suspending the calling
// goroutine, capped so simulations stay responsive.
type Host struct {
	// Cap bounds each simulated sleep. Default 2s.
	Cap time.Duration

	mu     sync.Mutex
	sleeps int
	total  time.Duration
}

func (h *Host) CanDeepSleep() bool { return true }

func (h *Host) DeepSleep(d time.Duration) {
	cap := h.Cap
	if cap <= 0 {
		cap = 2 * time.Second
	}
	if d > cap {
		d = cap
	}
	if d > 0 {
		time.Sleep(d)
	}
	h.mu.Lock()
	h.sleeps++
	h.total += d
	h.mu.Unlock()
}

// Stats reports how often and how long the host "slept" (test hook).
func (h *Host) Stats() (sleeps int, total time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sleeps, h.total
}
