package measure

import "testing"

func TestFlagsSetClearHas(t *testing.T) {
	var f flags
	f.set(flagRunning | flagActive)
	if !f.has(flagRunning) || !f.has(flagActive) {
		t.Fatal("set bits not visible")
	}
	f.clear(flagActive)
	if f.has(flagActive) {
		t.Fatal("cleared bit still visible")
	}
	if !f.has(flagRunning) {
		t.Fatal("clear touched an unrelated bit")
	}
}

func TestFlagsTakeConsumes(t *testing.T) {
	var f flags
	f.set(flagRqActive | flagRqInactive)
	if !f.take(flagRqActive) {
		t.Fatal("take must observe a set bit")
	}
	if f.take(flagRqActive) {
		t.Fatal("take must clear the bit it observed")
	}
	if !f.has(flagRqInactive) {
		t.Fatal("take touched an unrelated bit")
	}
}
