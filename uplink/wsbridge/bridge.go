// Package wsbridge uplinks over a websocket to a bridge gateway instead of a
// radio. Each uplink goes out as a compact integer-keyed CBOR frame carrying
// a sequence number; the gateway acknowledges by sequence, and the ack
// resolves the matching completion. Unlike a single-radio transport the
// bridge accepts overlapping sends, so it never returns ErrBusy.
package wsbridge

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scd30node-go/errcode"
	"scd30node-go/uplink"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

// Config describes the gateway endpoint.
type Config struct {
	URL      string // ws:// or wss://
	Username string // basic auth; empty disables the header
	Password string
	Node     string // announced in the hello frame when set

	InsecureSkipVerify bool // accept self-signed gateway certificates
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
}

// Bridge is a connected websocket uplink. One Bridge owns one connection;
// when the connection drops every pending send fails and the Bridge is done.
// Reconnect policy belongs to the caller.
type Bridge struct {
	cfg  Config
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla allows a single concurrent writer

	mu      sync.Mutex
	nextSeq uint32
	pending map[uint32]uplink.CompletionFunc
	closed  bool
}

// Dial connects, announces the node, and starts the reader.
func Dial(cfg Config) (*Bridge, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.dial", Msg: cfg.URL, Err: err}
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.dial", Msg: "scheme must be ws or wss"}
	}

	hst := cfg.HandshakeTimeout
	if hst <= 0 {
		hst = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: hst}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	}

	headers := http.Header{}
	if cfg.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+cred)
	}

	ctx, cancel := context.WithTimeout(context.Background(), hst)
	defer cancel()
	conn, _, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		return nil, &errcode.E{C: errcode.LinkDown, Op: "wsbridge.dial", Msg: cfg.URL, Err: err}
	}
	return start(conn, cfg)
}

// start finishes setup on an established connection.
func start(conn *websocket.Conn, cfg Config) (*Bridge, error) {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	b := &Bridge{
		cfg:     cfg,
		conn:    conn,
		pending: map[uint32]uplink.CompletionFunc{},
	}
	if cfg.Node != "" {
		hello, err := encodeHello(cfg.Node)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if err := b.write(hello); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	go b.readLoop()
	return b, nil
}

// Send implements uplink.Transport. The message is framed with a fresh
// sequence number; the gateway's ack for that sequence fires done.
func (b *Bridge) Send(msg uplink.Message, done uplink.CompletionFunc) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return uplink.ErrClosed
	}
	b.nextSeq++
	seq := b.nextSeq
	b.pending[seq] = done
	b.mu.Unlock()

	data, err := encodeUplink(seq, msg)
	if err != nil {
		b.forget(seq)
		return err
	}
	if err := b.write(data); err != nil {
		b.forget(seq)
		return &errcode.E{C: errcode.TxFailed, Op: "wsbridge.send", Err: err}
	}
	return nil
}

// Close tears the connection down and fails anything still pending.
func (b *Bridge) Close() error {
	b.fail(uplink.ErrClosed)
	return b.conn.Close()
}

func (b *Bridge) write(data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	return b.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (b *Bridge) readLoop() {
	for {
		mt, data, err := b.conn.ReadMessage()
		if err != nil {
			b.fail(&errcode.E{C: errcode.LinkDown, Op: "wsbridge.read", Err: err})
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		typ, fields, err := parseFrame(data)
		if err != nil {
			continue // unparseable frame; nothing to attribute it to
		}
		switch typ {
		case frameAck:
			b.ack(fields)
		case frameClose:
			b.fail(uplink.ErrClosed)
			_ = b.conn.Close()
			return
		}
	}
}

// ack resolves the pending send the gateway named. Unknown or repeated
// sequences are dropped.
func (b *Bridge) ack(fields map[int]any) {
	seq, ok := fieldUint(fields, fldAckSeq)
	if !ok {
		return
	}
	b.mu.Lock()
	done := b.pending[uint32(seq)]
	delete(b.pending, uint32(seq))
	b.mu.Unlock()
	if done == nil {
		return
	}
	if okFlag, _ := fieldBool(fields, fldAckOK); okFlag {
		done(nil)
		return
	}
	msg, _ := fieldString(fields, fldAckMsg)
	done(&errcode.E{C: errcode.TxFailed, Op: "wsbridge.ack", Msg: msg})
}

func (b *Bridge) forget(seq uint32) {
	b.mu.Lock()
	delete(b.pending, seq)
	b.mu.Unlock()
}

// fail marks the bridge closed and fails every pending completion once.
func (b *Bridge) fail(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	pending := b.pending
	b.pending = map[uint32]uplink.CompletionFunc{}
	b.mu.Unlock()
	for _, done := range pending {
		if done != nil {
			done(err)
		}
	}
}
