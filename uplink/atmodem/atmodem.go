// Package atmodem drives an RN2483-class LoRaWAN modem over its line-oriented
// command set. Commands are terminated with CRLF; each command gets one
// immediate response line, and an accepted transmission is followed later by
// an asynchronous result line ("mac_tx_ok", "mac_err" or "mac_rx" with a
// downlink). The Modem keeps one transmission in flight at a time and
// implements uplink.Transport over any byte stream: a host serial port
// (OpenSerial), an MCU UART, or a pipe in tests.
package atmodem

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"scd30node-go/errcode"
	"scd30node-go/uplink"
	"scd30node-go/x/conv"
	"scd30node-go/x/strconvx"
)

// DefaultBaud is the modem's rate after reset.
const DefaultBaud = 57600

// DefaultResponseTimeout bounds the wait for the immediate response line.
// The modem answers command parses within milliseconds; anything slower
// means the line or the modem is gone.
const DefaultResponseTimeout = 3 * time.Second

// Config adjusts modem behaviour. The zero value transmits unconfirmed
// frames with the default response timeout.
type Config struct {
	// Confirmed selects "mac tx cnf": the network must acknowledge each
	// uplink, and the ack (or its absence) decides the completion outcome.
	Confirmed bool

	// ResponseTimeout bounds the immediate command response.
	ResponseTimeout time.Duration

	// Downlink, when set, receives application downlinks carried on a
	// "mac_rx" line. It is called from the reader goroutine and must not
	// block.
	Downlink func(port uint8, data []byte)
}

// Modem is a transport over one modem serial line. New starts a reader
// goroutine that owns all reads from the stream; Close stops it when the
// stream is also an io.Closer.
type Modem struct {
	cfg Config
	rw  io.ReadWriter

	cmdMu sync.Mutex // serializes command/response exchanges

	mu        sync.Mutex
	resp      chan string // immediate responses, reader -> command waiter
	dead      chan struct{}
	waiting   int // command waiters expecting an immediate response
	busy      bool
	inflight  uplink.CompletionFunc
	earlyDone bool // tx result arrived before the completion was registered
	earlyErr  error
	closed    bool
	readErr   error
}

// New wraps an open byte stream and starts the reader goroutine.
func New(rw io.ReadWriter, cfg Config) *Modem {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	m := &Modem{
		cfg:  cfg,
		rw:   rw,
		resp: make(chan string, 1),
		dead: make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Send implements uplink.Transport. It writes the tx command, waits for the
// immediate response, and on "ok" registers done for the asynchronous result.
// Any other response releases the modem and is returned to the caller.
func (m *Modem) Send(msg uplink.Message, done uplink.CompletionFunc) error {
	if len(msg.Payload) == 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "atmodem.tx", Msg: "empty payload"}
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return uplink.ErrClosed
	}
	if m.busy {
		m.mu.Unlock()
		return uplink.ErrBusy
	}
	m.busy = true
	m.earlyDone, m.earlyErr = false, nil
	m.mu.Unlock()

	resp, err := m.command(txCommand(m.cfg.Confirmed, msg))
	if err != nil {
		m.release()
		return err
	}
	if resp != "ok" {
		m.release()
		return respError(resp)
	}
	m.accept(done)
	return nil
}

// Version queries the firmware banner ("sys get ver"). Usable while a
// transmission is in flight.
func (m *Modem) Version() (string, error) {
	return m.command([]byte("sys get ver\r\n"))
}

// Close closes the underlying stream when it supports closing and fails any
// in-flight transmission.
func (m *Modem) Close() error {
	var err error
	if c, ok := m.rw.(io.Closer); ok {
		err = c.Close()
	}
	m.shutdown(uplink.ErrClosed)
	return err
}

// command writes one line and waits for its immediate response. Exchanges
// are serialized so responses cannot be attributed to the wrong command.
func (m *Modem) command(line []byte) (string, error) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", uplink.ErrClosed
	}
	// Drop a stale response left behind by a timed-out exchange.
	select {
	case <-m.resp:
	default:
	}
	m.waiting++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.waiting--
		m.mu.Unlock()
	}()

	if _, err := m.rw.Write(line); err != nil {
		return "", err
	}

	t := time.NewTimer(m.cfg.ResponseTimeout)
	defer t.Stop()
	select {
	case r := <-m.resp:
		return r, nil
	case <-m.dead:
		// Lines are dispatched before the reader observes the stream end,
		// so a response that raced the shutdown is already queued.
		select {
		case r := <-m.resp:
			return r, nil
		default:
		}
		return "", uplink.ErrClosed
	case <-t.C:
		return "", &errcode.E{C: errcode.Timeout, Op: "atmodem.cmd", Msg: "no response"}
	}
}

// readLoop owns the stream's read side until it errors or closes.
func (m *Modem) readLoop() {
	sc := bufio.NewScanner(m.rw)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if m.asyncResult(line) {
			continue
		}
		m.deliverResponse(line)
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	m.shutdown(err)
}

// asyncResult consumes transmission results and downlinks. Reports whether
// the line was handled.
func (m *Modem) asyncResult(line string) bool {
	switch {
	case line == "mac_tx_ok":
		m.settle(nil)
		return true
	case line == "mac_err":
		m.settle(&errcode.E{C: errcode.TxFailed, Op: "atmodem.tx", Msg: line})
		return true
	case strings.HasPrefix(line, "mac_rx "):
		m.handleDownlink(line[len("mac_rx "):])
		m.settle(nil)
		return true
	case line == "invalid_data_len":
		// The command set uses this string both as an immediate response
		// and as an asynchronous tx result. A pending command waiter wins.
		m.mu.Lock()
		w := m.waiting > 0
		m.mu.Unlock()
		if w {
			return false
		}
		m.settle(&errcode.E{C: errcode.TxFailed, Op: "atmodem.tx", Msg: line})
		return true
	}
	return false
}

// settle resolves the in-flight transmission, or stashes the outcome when it
// arrives in the window between the "ok" response and accept.
func (m *Modem) settle(err error) {
	m.mu.Lock()
	done := m.inflight
	m.inflight = nil
	if done == nil {
		if m.busy {
			m.earlyDone, m.earlyErr = true, err
		}
		m.mu.Unlock()
		return
	}
	m.busy = false
	m.mu.Unlock()
	done(err)
}

// accept registers the completion after the modem said "ok".
func (m *Modem) accept(done uplink.CompletionFunc) {
	m.mu.Lock()
	if m.earlyDone {
		err := m.earlyErr
		m.earlyDone, m.earlyErr = false, nil
		m.busy = false
		m.mu.Unlock()
		done(err)
		return
	}
	if m.closed {
		err := m.readErr
		m.busy = false
		m.mu.Unlock()
		done(err)
		return
	}
	m.inflight = done
	m.mu.Unlock()
}

func (m *Modem) release() {
	m.mu.Lock()
	m.busy = false
	m.inflight = nil
	m.earlyDone, m.earlyErr = false, nil
	m.mu.Unlock()
}

func (m *Modem) deliverResponse(line string) {
	m.mu.Lock()
	w := m.waiting > 0
	m.mu.Unlock()
	if !w {
		return // unsolicited chatter (boot banner and the like)
	}
	select {
	case m.resp <- line:
	default:
	}
}

// shutdown marks the modem dead and fails whatever was outstanding. Safe to
// call more than once.
func (m *Modem) shutdown(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.readErr = err
	done := m.inflight
	m.inflight = nil
	if done == nil && m.busy {
		m.earlyDone, m.earlyErr = true, err
	} else {
		m.busy = false
	}
	close(m.dead)
	m.mu.Unlock()
	if done != nil {
		done(err)
	}
}

func (m *Modem) handleDownlink(rest string) {
	if m.cfg.Downlink == nil {
		return
	}
	port, data, ok := parseDownlink(rest)
	if ok {
		m.cfg.Downlink(port, data)
	}
}

// parseDownlink splits "<port> <hex>" from a mac_rx line.
func parseDownlink(s string) (uint8, []byte, bool) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return 0, nil, false
	}
	p, err := strconvx.Atoi(s[:i])
	if err != nil || p < 1 || p > 223 {
		return 0, nil, false
	}
	raw := s[i+1:]
	data, ok := conv.Unhex(make([]byte, len(raw)/2), raw)
	if !ok {
		return 0, nil, false
	}
	return uint8(p), data, true
}

// txCommand renders "mac tx uncnf <port> <hex>\r\n".
func txCommand(confirmed bool, msg uplink.Message) []byte {
	kind := "uncnf"
	if confirmed {
		kind = "cnf"
	}
	buf := make([]byte, 0, 16+2*len(msg.Payload))
	buf = append(buf, "mac tx "...)
	buf = append(buf, kind...)
	buf = append(buf, ' ')
	buf = append(buf, strconvx.Itoa(int(msg.Port))...)
	buf = append(buf, ' ')
	buf = append(buf, conv.Hex(make([]byte, 2*len(msg.Payload)), msg.Payload)...)
	buf = append(buf, '\r', '\n')
	return buf
}

// respError maps a non-ok immediate response onto the shared error codes.
func respError(resp string) error {
	switch resp {
	case "busy", "no_free_ch":
		return &errcode.E{C: errcode.Busy, Op: "atmodem.tx", Msg: resp, Err: uplink.ErrBusy}
	case "not_joined", "silent", "mac_paused", "frame_counter_err_rejoin_needed":
		return &errcode.E{C: errcode.LinkDown, Op: "atmodem.tx", Msg: resp}
	case "invalid_param", "invalid_data_len":
		return &errcode.E{C: errcode.InvalidParams, Op: "atmodem.tx", Msg: resp}
	}
	return &errcode.E{C: errcode.Error, Op: "atmodem.tx", Msg: resp}
}
