package strconvx

import "testing"

func TestItoaAtoiRoundTrip(t *testing.T) {
	for _, v := range []int{0, 1, -1, 42, 255, -99999} {
		s := Itoa(v)
		got, err := Atoi(s)
		if err != nil {
			t.Fatalf("Atoi(%q): %v", s, err)
		}
		if got != v {
			t.Fatalf("Itoa/Atoi round trip: want %d, got %d", v, got)
		}
	}
}

func TestAtoiRejectsJunk(t *testing.T) {
	for _, s := range []string{"", "-", "+", "12x", "0x10", " 7"} {
		if _, err := Atoi(s); err == nil {
			t.Fatalf("Atoi(%q): expected error", s)
		}
	}
}
