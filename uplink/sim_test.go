package uplink

import (
	"errors"
	"testing"
	"time"
)

func TestSimInlineCompletion(t *testing.T) {
	s := NewSim(SimConfig{})
	var got error = errors.New("unset")
	err := s.Send(Message{Port: 1, Payload: []byte{0x1E}}, func(e error) { got = e })
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != nil {
		t.Fatalf("completion err = %v", got)
	}
	if n := len(s.Sent()); n != 1 {
		t.Fatalf("sent %d messages", n)
	}
}

func TestSimPayloadIsCopied(t *testing.T) {
	s := NewSim(SimConfig{})
	buf := []byte{0x1E, 0x01}
	_ = s.Send(Message{Port: 1, Payload: buf}, func(error) {})
	buf[0] = 0xFF
	if s.Sent()[0].Payload[0] != 0x1E {
		t.Fatal("sim aliased the caller's payload")
	}
}

func TestSimAsyncCompletion(t *testing.T) {
	s := NewSim(SimConfig{Latency: 5 * time.Millisecond, Fail: ErrDenied})
	done := make(chan error, 1)
	if err := s.Send(Message{Port: 1}, func(e error) { done <- e }); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case e := <-done:
		if !errors.Is(e, ErrDenied) {
			t.Fatalf("completion err = %v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

func TestSimSilentStaysBusy(t *testing.T) {
	s := NewSim(SimConfig{Silent: true})
	if err := s.Send(Message{Port: 1}, func(error) { t.Error("silent sim completed") }); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Send(Message{Port: 1}, func(error) {}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second send err = %v, want ErrBusy", err)
	}
}

func TestSimManualCompletion(t *testing.T) {
	s := NewSim(SimConfig{Manual: true})
	done := make(chan error, 1)
	if err := s.Send(Message{Port: 1}, func(e error) { done <- e }); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-done:
		t.Fatal("completed before Complete")
	case <-time.After(10 * time.Millisecond):
	}
	s.Complete(nil)
	select {
	case e := <-done:
		if e != nil {
			t.Fatalf("completion err = %v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}
