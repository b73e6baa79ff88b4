// Command selftest exercises the bus on a live target where go test cannot
// run. It uses nothing beyond println, so the same source checks a host
// build and a flashed MCU alike: run it and read the PASS/FAIL lines.
package main

import (
	"os"
	"sort"
	"time"

	"scd30node-go/bus"
)

func expectPayload(sub *bus.Subscription, want string, timeout time.Duration) bool {
	select {
	case m := <-sub.Channel():
		s, ok := m.Payload.(string)
		return ok && s == want
	case <-time.After(timeout):
		return false
	}
}

func expectNothing(sub *bus.Subscription, timeout time.Duration) bool {
	select {
	case <-sub.Channel():
		return false
	case <-time.After(timeout):
		return true
	}
}

func drainPayloads(sub *bus.Subscription, n int, deadline time.Time) ([]string, bool) {
	var out []string
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	return out, len(out) == n
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	sort.Strings(got)
	sort.Strings(want)
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestExactPubSub() bool {
	b := bus.New(4)
	c := b.NewConnection("selftest")
	sub := c.Subscribe(bus.T("node", "state"))

	c.Publish(&bus.Message{Topic: bus.T("node", "state"), Payload: "hello"})
	return expectPayload(sub, "hello", 100*time.Millisecond)
}

func TestRetainedReplay() bool {
	b := bus.New(4)
	c := b.NewConnection("selftest")

	c.Publish(&bus.Message{Topic: bus.T("node", "state"), Payload: "persist", Retained: true})
	sub := c.Subscribe(bus.T("node", "state"))
	return expectPayload(sub, "persist", 100*time.Millisecond)
}

func TestSubtreeWildcard() bool {
	b := bus.New(8)
	c := b.NewConnection("selftest")
	all := c.Subscribe(bus.Parse("node/#"))
	link := c.Subscribe(bus.Parse("link/status"))

	c.Publish(&bus.Message{Topic: bus.Parse("node/state"), Payload: "s1"})
	if !expectPayload(all, "s1", 200*time.Millisecond) {
		println("  subtree: child topic missed")
		return false
	}
	c.Publish(&bus.Message{Topic: bus.Parse("node/power/state"), Payload: "s2"})
	if !expectPayload(all, "s2", 200*time.Millisecond) {
		println("  subtree: deep topic missed")
		return false
	}
	c.Publish(&bus.Message{Topic: bus.Parse("node"), Payload: "s3"})
	if !expectPayload(all, "s3", 200*time.Millisecond) {
		println("  subtree: anchor topic missed")
		return false
	}
	c.Publish(&bus.Message{Topic: bus.Parse("link/status"), Payload: "s4"})
	if !expectNothing(all, 60*time.Millisecond) {
		println("  subtree: got a topic outside the subtree")
		return false
	}
	return expectPayload(link, "s4", 200*time.Millisecond)
}

func TestSubtreeRetainedReplay() bool {
	b := bus.New(16)
	c := b.NewConnection("selftest")
	retain := func(path, payload string) {
		c.Publish(&bus.Message{Topic: bus.Parse(path), Payload: payload, Retained: true})
	}
	retain("node/state", "r0")
	retain("node/measurement", "r1")
	retain("node/power/state", "r2")
	retain("link/status", "r3")

	sub := c.Subscribe(bus.Parse("node/#"))
	got, ok := drainPayloads(sub, 3, time.Now().Add(300*time.Millisecond))
	if !ok || !sameSet(got, []string{"r0", "r1", "r2"}) {
		println("  replay: subtree set mismatch, got", len(got))
		return false
	}
	// The retained value outside the subtree must not leak in.
	return expectNothing(sub, 60*time.Millisecond)
}

func TestRetainedClear() bool {
	b := bus.New(8)
	c := b.NewConnection("selftest")

	c.Publish(&bus.Message{Topic: bus.Parse("node/state"), Payload: "stale", Retained: true})
	c.Publish(&bus.Message{Topic: bus.Parse("node/fault"), Payload: "keep", Retained: true})
	c.Publish(&bus.Message{Topic: bus.Parse("node/state"), Payload: nil, Retained: true})

	sub := c.Subscribe(bus.Parse("node/#"))
	got, ok := drainPayloads(sub, 1, time.Now().Add(200*time.Millisecond))
	if !ok || got[0] != "keep" {
		println("  clear: stale value survived")
		return false
	}
	return expectNothing(sub, 60*time.Millisecond)
}

func TestDropOldestWhenFull() bool {
	b := bus.New(2)
	c := b.NewConnection("selftest")
	sub := c.Subscribe(bus.T("node", "measurement"))

	for _, p := range []string{"m1", "m2", "m3", "m4"} {
		c.Publish(&bus.Message{Topic: bus.T("node", "measurement"), Payload: p})
	}
	got, ok := drainPayloads(sub, 2, time.Now().Add(200*time.Millisecond))
	if !ok {
		println("  overflow: drain came up short")
		return false
	}
	// Oldest messages fall out; the newest always land, in order.
	return got[0] == "m3" && got[1] == "m4"
}

func TestUnsubscribeClosesChannel() bool {
	b := bus.New(4)
	c := b.NewConnection("selftest")
	sub := c.Subscribe(bus.T("node", "state"))
	sub.Unsubscribe()

	c.Publish(&bus.Message{Topic: bus.T("node", "state"), Payload: "gone"})
	select {
	case m, ok := <-sub.Channel():
		return !ok && m == nil
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestDisconnectClosesAll() bool {
	b := bus.New(4)
	c := b.NewConnection("selftest")
	s1 := c.Subscribe(bus.T("node", "state"))
	s2 := c.Subscribe(bus.Parse("node/#"))
	c.Disconnect()

	for _, sub := range []*bus.Subscription{s1, s2} {
		select {
		case _, ok := <-sub.Channel():
			if ok {
				return false
			}
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}
	return true
}

type check struct {
	name string
	fn   func() bool
}

func main() {
	// Give a USB serial console time to attach before the first line.
	time.Sleep(250 * time.Millisecond)

	checks := []check{
		{"ExactPubSub", TestExactPubSub},
		{"RetainedReplay", TestRetainedReplay},
		{"SubtreeWildcard", TestSubtreeWildcard},
		{"SubtreeRetainedReplay", TestSubtreeRetainedReplay},
		{"RetainedClear", TestRetainedClear},
		{"DropOldestWhenFull", TestDropOldestWhenFull},
		{"UnsubscribeClosesChannel", TestUnsubscribeClosesChannel},
		{"DisconnectClosesAll", TestDisconnectClosesAll},
	}

	println("== bus self-test ==")
	failed := 0
	for _, tc := range checks {
		if tc.fn() {
			println("[PASS]", tc.name)
		} else {
			println("[FAIL]", tc.name)
			failed++
		}
		time.Sleep(10 * time.Millisecond)
	}
	if failed == 0 {
		println("== all", len(checks), "checks passed ==")
		return
	}
	println("==", failed, "of", len(checks), "checks failed ==")
	os.Exit(1)
}
