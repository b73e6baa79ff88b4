package measure

import "testing"

func TestStateNamesComplete(t *testing.T) {
	for s := StateNoChange; s < stateCount; s++ {
		if stateNames[s] == "" {
			t.Errorf("state %d has no name", s)
		}
	}
}

func TestStateString(t *testing.T) {
	if got := StateWake.String(); got != "Wake" {
		t.Errorf("StateWake.String() = %q", got)
	}
	if got := State(238).String(); got != "State(238)" {
		t.Errorf("unknown state String() = %q", got)
	}
}

func TestStateValid(t *testing.T) {
	if StateNoChange.valid() {
		t.Error("NoChange must not count as a resident state")
	}
	if State(238).valid() {
		t.Error("out-of-range state must not be valid")
	}
	for s := StateInitial; s < stateCount; s++ {
		if !s.valid() {
			t.Errorf("%v should be valid", s)
		}
	}
}
