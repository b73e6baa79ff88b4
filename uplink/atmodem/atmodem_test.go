package atmodem

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"scd30node-go/errcode"
	"scd30node-go/uplink"
)

// lineRig wires a Modem to an in-memory pipe. The test side plays the modem
// firmware: it reads command lines off the wire and scripts response lines.
type lineRig struct {
	t     *testing.T
	m     *Modem
	conn  net.Conn
	lines chan string
}

func newLineRig(t *testing.T, cfg Config) *lineRig {
	t.Helper()
	a, b := net.Pipe()
	r := &lineRig{t: t, conn: b, lines: make(chan string, 8)}
	go func() {
		sc := bufio.NewScanner(b)
		for sc.Scan() {
			r.lines <- sc.Text()
		}
		close(r.lines)
	}()
	r.m = New(a, cfg)
	t.Cleanup(func() {
		_ = r.m.Close()
		_ = b.Close()
	})
	return r
}

// onCommand waits (on its own goroutine) for the next command line, checks
// it, and writes the scripted replies.
func (r *lineRig) onCommand(want string, replies ...string) {
	go func() {
		select {
		case got, ok := <-r.lines:
			if !ok {
				r.t.Error("command stream closed early")
				return
			}
			if want != "" && got != want {
				r.t.Errorf("command = %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			r.t.Errorf("no command within 1s, want %q", want)
			return
		}
		r.reply(replies...)
	}()
}

func (r *lineRig) reply(lines ...string) {
	for _, l := range lines {
		if _, err := r.conn.Write([]byte(l + "\r\n")); err != nil {
			r.t.Errorf("reply write: %v", err)
			return
		}
	}
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("no completion within 1s")
		return nil
	}
}

func TestUnconfirmedSendCompletes(t *testing.T) {
	r := newLineRig(t, Config{})
	r.onCommand("mac tx uncnf 1 1E0834CD", "ok", "mac_tx_ok")

	done := make(chan error, 1)
	msg := uplink.Message{Port: 1, Payload: []byte{0x1E, 0x08, 0x34, 0xCD}}
	if err := r.m.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("completion: %v", err)
	}
}

func TestBusyResponseReleasesModem(t *testing.T) {
	r := newLineRig(t, Config{})
	msg := uplink.Message{Port: 1, Payload: []byte{0x01}}

	r.onCommand("mac tx uncnf 1 01", "busy")
	err := r.m.Send(msg, func(error) { t.Error("done called for rejected send") })
	if !errors.Is(err, uplink.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if errcode.Of(err) != errcode.Busy {
		t.Fatalf("code = %v, want busy", errcode.Of(err))
	}

	// Rejection must release the slot for the next attempt.
	r.onCommand("mac tx uncnf 1 01", "ok", "mac_tx_ok")
	done := make(chan error, 1)
	if err := r.m.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("completion: %v", err)
	}
}

func TestSingleInFlight(t *testing.T) {
	r := newLineRig(t, Config{})
	msg := uplink.Message{Port: 1, Payload: []byte{0x02}}

	r.onCommand("mac tx uncnf 1 02", "ok")
	first := make(chan error, 1)
	if err := r.m.Send(msg, func(e error) { first <- e }); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	if err := r.m.Send(msg, nil); !errors.Is(err, uplink.ErrBusy) {
		t.Fatalf("overlapping Send = %v, want ErrBusy", err)
	}

	r.reply("mac_tx_ok")
	if err := waitDone(t, first); err != nil {
		t.Fatalf("completion: %v", err)
	}

	r.onCommand("mac tx uncnf 1 02", "ok", "mac_tx_ok")
	third := make(chan error, 1)
	if err := r.m.Send(msg, func(e error) { third <- e }); err != nil {
		t.Fatalf("Send after completion: %v", err)
	}
	if err := waitDone(t, third); err != nil {
		t.Fatalf("completion: %v", err)
	}
}

func TestMacErrFailsCompletion(t *testing.T) {
	r := newLineRig(t, Config{})
	r.onCommand("", "ok", "mac_err")

	done := make(chan error, 1)
	msg := uplink.Message{Port: 1, Payload: []byte{0x03}}
	if err := r.m.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	err := waitDone(t, done)
	if errcode.Of(err) != errcode.TxFailed {
		t.Fatalf("completion = %v, want tx_failed", err)
	}
}

func TestConfirmedDownlinkCompletes(t *testing.T) {
	type rx struct {
		port uint8
		data []byte
	}
	rxCh := make(chan rx, 1)
	r := newLineRig(t, Config{
		Confirmed: true,
		Downlink:  func(port uint8, data []byte) { rxCh <- rx{port, data} },
	})
	r.onCommand("mac tx cnf 2 0A", "ok", "mac_rx 2 BEEF")

	done := make(chan error, 1)
	msg := uplink.Message{Port: 2, Payload: []byte{0x0A}}
	if err := r.m.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("completion: %v", err)
	}
	select {
	case got := <-rxCh:
		if got.port != 2 || !bytes.Equal(got.data, []byte{0xBE, 0xEF}) {
			t.Fatalf("downlink = %d %x", got.port, got.data)
		}
	case <-time.After(time.Second):
		t.Fatal("downlink hook not called")
	}
}

func TestImmediateResponseTimeout(t *testing.T) {
	r := newLineRig(t, Config{ResponseTimeout: 50 * time.Millisecond})
	r.onCommand("mac tx uncnf 1 04") // command consumed, never answered

	msg := uplink.Message{Port: 1, Payload: []byte{0x04}}
	err := r.m.Send(msg, func(error) { t.Error("done called after timeout") })
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err = %v, want timeout", err)
	}

	// The slot is free again.
	r.onCommand("mac tx uncnf 1 04", "ok", "mac_tx_ok")
	done := make(chan error, 1)
	if err := r.m.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send after timeout: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("completion: %v", err)
	}
}

func TestNotJoinedMapsToLinkDown(t *testing.T) {
	r := newLineRig(t, Config{})
	r.onCommand("", "not_joined")

	msg := uplink.Message{Port: 1, Payload: []byte{0x05}}
	err := r.m.Send(msg, nil)
	if errcode.Of(err) != errcode.LinkDown {
		t.Fatalf("err = %v, want link_down", err)
	}
}

func TestLinkDropFailsInFlight(t *testing.T) {
	r := newLineRig(t, Config{})
	r.onCommand("", "ok")

	done := make(chan error, 1)
	msg := uplink.Message{Port: 1, Payload: []byte{0x06}}
	if err := r.m.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = r.conn.Close()
	if err := waitDone(t, done); err == nil {
		t.Fatal("in-flight send completed without error after link drop")
	}

	if err := r.m.Send(msg, nil); !errors.Is(err, uplink.ErrClosed) {
		t.Fatalf("Send on dead modem = %v, want ErrClosed", err)
	}
}

func TestVersionQuery(t *testing.T) {
	const banner = "RN2483 1.0.5 Oct 31 2018 15:06:52"
	r := newLineRig(t, Config{})
	r.onCommand("sys get ver", banner)

	got, err := r.m.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if got != banner {
		t.Fatalf("Version = %q, want %q", got, banner)
	}
}

func TestEmptyPayloadRejected(t *testing.T) {
	r := newLineRig(t, Config{})
	err := r.m.Send(uplink.Message{Port: 1}, nil)
	if errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("err = %v, want invalid_params", err)
	}
	select {
	case line := <-r.lines:
		t.Fatalf("unexpected command on the wire: %q", line)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBootChatterIgnored(t *testing.T) {
	r := newLineRig(t, Config{})
	r.reply("RN2483 1.0.5 Oct 31 2018 15:06:52") // boot banner, nobody waiting
	time.Sleep(10 * time.Millisecond)

	r.onCommand("mac tx uncnf 1 07", "ok", "mac_tx_ok")
	done := make(chan error, 1)
	msg := uplink.Message{Port: 1, Payload: []byte{0x07}}
	if err := r.m.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("completion: %v", err)
	}
}
