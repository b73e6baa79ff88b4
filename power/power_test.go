package power

import (
	"testing"
	"time"
)

func TestNullRefusesDeepSleep(t *testing.T) {
	var m Manager = Null{}
	if m.CanDeepSleep() {
		t.Fatal("Null permits deep sleep")
	}
	done := make(chan struct{})
	go func() {
		m.DeepSleep(time.Hour) // must return immediately
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Null.DeepSleep blocked")
	}
}

func TestHostCapsSleep(t *testing.T) {
	h := &Host{Cap: 5 * time.Millisecond}
	start := time.Now()
	h.DeepSleep(time.Hour)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("capped sleep took %v", elapsed)
	}
	sleeps, total := h.Stats()
	if sleeps != 1 || total != 5*time.Millisecond {
		t.Fatalf("stats = %d, %v", sleeps, total)
	}
}
