package bus

import (
	"testing"
	"time"
)

func expectMsg(t *testing.T, sub *Subscription, want any) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		if got.Payload != want {
			t.Fatalf("payload = %v, want %v", got.Payload, want)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for %v", want)
	}
}

func expectNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message %v on %v", got.Payload, got.Topic)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("node", "state"))
	conn.Publish(&Message{Topic: T("node", "state"), Payload: "Sleeping"})
	expectMsg(t, sub, "Sleeping")

	other := conn.Subscribe(T("node", "measurement"))
	conn.Publish(&Message{Topic: T("node", "state"), Payload: "Wake"})
	expectMsg(t, sub, "Wake")
	expectNone(t, other)
}

func TestRetainedReplay(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	conn.Publish(&Message{Topic: T("node", "state"), Payload: "Sleeping", Retained: true})

	late := conn.Subscribe(T("node", "state"))
	expectMsg(t, late, "Sleeping")
}

func TestRetainedClear(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	conn.Publish(&Message{Topic: T("link", "status"), Payload: "up", Retained: true})
	conn.Publish(&Message{Topic: T("link", "status"), Payload: nil, Retained: true})

	late := conn.Subscribe(T("link", "status"))
	expectNone(t, late)
}

func TestSubtreeWildcard(t *testing.T) {
	b := New(8)
	conn := b.NewConnection("test")

	all := conn.Subscribe(T(Wildcard))
	nodeOnly := conn.Subscribe(T("node", Wildcard))

	conn.Publish(&Message{Topic: T("node", "state"), Payload: "Wake"})
	conn.Publish(&Message{Topic: T("node", "uplink"), Payload: "ok"})
	conn.Publish(&Message{Topic: T("link", "status"), Payload: "up"})

	expectMsg(t, all, "Wake")
	expectMsg(t, all, "ok")
	expectMsg(t, all, "up")

	expectMsg(t, nodeOnly, "Wake")
	expectMsg(t, nodeOnly, "ok")
	expectNone(t, nodeOnly)
}

func TestSubtreeRetainedReplay(t *testing.T) {
	b := New(8)
	conn := b.NewConnection("test")

	conn.Publish(&Message{Topic: T("node", "state"), Payload: "Sleeping", Retained: true})
	conn.Publish(&Message{Topic: T("node", "boot"), Payload: 3, Retained: true})

	sub := conn.Subscribe(T("node", Wildcard))

	// Replay order over the subtree is not defined.
	got := map[any]bool{}
	for i := 0; i < 2; i++ {
		select {
		case m := <-sub.Channel():
			got[m.Payload] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout, replayed %d of 2 retained messages", i)
		}
	}
	if !got["Sleeping"] || !got[3] {
		t.Fatalf("replayed = %v, want both retained messages", got)
	}
}

func TestDropOldestWhenFull(t *testing.T) {
	b := New(2)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(T("node", "state"))

	for _, s := range []string{"one", "two", "three"} {
		conn.Publish(&Message{Topic: T("node", "state"), Payload: s})
	}
	expectMsg(t, sub, "two")
	expectMsg(t, sub, "three")
}

func TestUnsubscribePrunesTrie(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("a", "b", "c"))
	sub.Unsubscribe()

	if _, ok := <-sub.Channel(); ok {
		t.Fatal("channel still open after unsubscribe")
	}
	if len(b.root.children) != 0 {
		t.Fatalf("trie not pruned: %d root children", len(b.root.children))
	}
}

func TestRetainedNodeSurvivesPrune(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	conn.Publish(&Message{Topic: T("node", "state"), Payload: "Sleeping", Retained: true})
	sub := conn.Subscribe(T("node", "state"))
	expectMsg(t, sub, "Sleeping")
	sub.Unsubscribe()

	// The retained value still replays to the next subscriber.
	again := conn.Subscribe(T("node", "state"))
	expectMsg(t, again, "Sleeping")
}

func TestDisconnectClosesAll(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	s1 := conn.Subscribe(T("node", "state"))
	s2 := conn.Subscribe(T("node", Wildcard))
	conn.Disconnect()

	if _, ok := <-s1.Channel(); ok {
		t.Fatal("exact subscription open after disconnect")
	}
	if _, ok := <-s2.Channel(); ok {
		t.Fatal("subtree subscription open after disconnect")
	}
}

func TestParseAndString(t *testing.T) {
	top := Parse("node/uplink")
	if len(top) != 2 || top[0] != "node" || top[1] != "uplink" {
		t.Fatalf("Parse = %v", top)
	}
	if got := top.String(); got != "node/uplink" {
		t.Fatalf("String = %q", got)
	}
	if got := Parse(""); got != nil {
		t.Fatalf("Parse(empty) = %v, want nil", got)
	}
}
