package measure

import (
	"sync"
	"testing"
)

func TestTxStateLifecycle(t *testing.T) {
	var tx txState
	gen := tx.begin()
	if !tx.pending() || tx.complete() {
		t.Fatal("begin must leave exactly the pending bit set")
	}
	tx.finish(gen, true)
	if tx.pending() {
		t.Fatal("finish must clear pending")
	}
	if !tx.complete() || tx.errored() {
		t.Fatal("successful finish recorded the wrong outcome")
	}
}

func TestTxStateFailureOutcome(t *testing.T) {
	var tx txState
	gen := tx.begin()
	tx.finish(gen, false)
	if !tx.complete() || !tx.errored() {
		t.Fatal("failed finish recorded the wrong outcome")
	}
}

func TestTxStateStaleGenerationDropped(t *testing.T) {
	var tx txState
	stale := tx.begin()
	cur := tx.begin()

	tx.finish(stale, true)
	if tx.complete() {
		t.Fatal("completion for a stale generation must be dropped")
	}
	tx.finish(cur, true)
	if !tx.complete() {
		t.Fatal("completion for the current generation must land")
	}
	tx.finish(cur, false)
	if tx.errored() {
		t.Fatal("duplicate completion must be dropped")
	}
}

func TestTxStateReset(t *testing.T) {
	var tx txState
	tx.finish(tx.begin(), false)
	tx.reset()
	if tx.pending() || tx.complete() || tx.errored() {
		t.Fatal("reset must clear every outcome bit")
	}
}

func TestTxStateConcurrentCompletions(t *testing.T) {
	var tx txState
	gen := tx.begin()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		ok := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx.finish(gen, ok)
		}()
	}
	wg.Wait()
	if tx.pending() || !tx.complete() {
		t.Fatal("racing completions must settle on exactly one outcome")
	}
}
