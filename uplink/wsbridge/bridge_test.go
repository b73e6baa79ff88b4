package wsbridge

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"scd30node-go/errcode"
	"scd30node-go/uplink"
)

// serveWS stands up a websocket endpoint whose connection is handed to the
// scripted handler. Returns the ws:// URL.
func serveWS(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTest(t *testing.T, cfg Config) *Bridge {
	t.Helper()
	b, err := Dial(cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
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

type frame struct {
	typ    byte
	fields map[int]any
}

func TestDialSendsHello(t *testing.T) {
	frames := make(chan frame, 1)
	url := serveWS(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		typ, fields, err := parseFrame(data)
		if err != nil {
			t.Errorf("parseFrame: %v", err)
			return
		}
		frames <- frame{typ, fields}
		_, _, _ = conn.ReadMessage() // hold the connection open
	})

	dialTest(t, Config{URL: url, Node: "bench-node"})

	select {
	case f := <-frames:
		if f.typ != frameHello {
			t.Fatalf("first frame type = %#x, want hello", f.typ)
		}
		if node, _ := fieldString(f.fields, fldNode); node != "bench-node" {
			t.Fatalf("hello node = %q", node)
		}
		if v, _ := fieldUint(f.fields, fldProto); v != protoVersion {
			t.Fatalf("hello proto = %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no hello frame")
	}
}

func TestAckCompletesSend(t *testing.T) {
	uplinks := make(chan frame, 1)
	url := serveWS(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			typ, fields, err := parseFrame(data)
			if err != nil || typ != frameUplink {
				continue
			}
			uplinks <- frame{typ, fields}
			seq, _ := fieldUint(fields, fldSeq)
			ack, _ := encodeAck(uint32(seq), true, "")
			_ = conn.WriteMessage(websocket.BinaryMessage, ack)
		}
	})

	b := dialTest(t, Config{URL: url})
	done := make(chan error, 1)
	msg := uplink.Message{Port: 1, Payload: []byte{0x1E, 0x08, 0x34, 0xCD}}
	if err := b.Send(msg, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("completion: %v", err)
	}

	f := <-uplinks
	if seq, _ := fieldUint(f.fields, fldSeq); seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}
	if port, _ := fieldUint(f.fields, fldPort); port != 1 {
		t.Fatalf("port = %d, want 1", port)
	}
	if p, _ := fieldBytes(f.fields, fldPayload); !bytes.Equal(p, msg.Payload) {
		t.Fatalf("payload = %x", p)
	}
}

func TestNakFailsSend(t *testing.T) {
	url := serveWS(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			typ, fields, err := parseFrame(data)
			if err != nil || typ != frameUplink {
				continue
			}
			seq, _ := fieldUint(fields, fldSeq)
			ack, _ := encodeAck(uint32(seq), false, "duty cycle")
			_ = conn.WriteMessage(websocket.BinaryMessage, ack)
		}
	})

	b := dialTest(t, Config{URL: url})
	done := make(chan error, 1)
	if err := b.Send(uplink.Message{Port: 1, Payload: []byte{0x01}}, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	err := waitDone(t, done)
	if errcode.Of(err) != errcode.TxFailed {
		t.Fatalf("completion = %v, want tx_failed", err)
	}
	if err == nil || !strings.Contains(err.Error(), "duty cycle") {
		t.Fatalf("completion %v does not carry the gateway reason", err)
	}
}

func TestOutOfOrderAcks(t *testing.T) {
	url := serveWS(t, func(conn *websocket.Conn) {
		var seqs []uint32
		for len(seqs) < 2 {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			typ, fields, err := parseFrame(data)
			if err != nil || typ != frameUplink {
				continue
			}
			seq, _ := fieldUint(fields, fldSeq)
			seqs = append(seqs, uint32(seq))
		}
		a2, _ := encodeAck(seqs[1], true, "")
		a1, _ := encodeAck(seqs[0], false, "rejected")
		_ = conn.WriteMessage(websocket.BinaryMessage, a2)
		_ = conn.WriteMessage(websocket.BinaryMessage, a1)
		_, _, _ = conn.ReadMessage()
	})

	b := dialTest(t, Config{URL: url})
	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	if err := b.Send(uplink.Message{Port: 1, Payload: []byte{0x01}}, func(e error) { done1 <- e }); err != nil {
		t.Fatalf("Send 1: %v", err)
	}
	if err := b.Send(uplink.Message{Port: 1, Payload: []byte{0x02}}, func(e error) { done2 <- e }); err != nil {
		t.Fatalf("Send 2: %v", err)
	}

	if err := waitDone(t, done2); err != nil {
		t.Fatalf("second send: %v, want success", err)
	}
	if err := waitDone(t, done1); errcode.Of(err) != errcode.TxFailed {
		t.Fatalf("first send: %v, want tx_failed", err)
	}
}

func TestConnectionDropFailsPending(t *testing.T) {
	url := serveWS(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage() // swallow the uplink, then drop the link
	})

	b := dialTest(t, Config{URL: url})
	done := make(chan error, 1)
	if err := b.Send(uplink.Message{Port: 1, Payload: []byte{0x01}}, func(e error) { done <- e }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := waitDone(t, done); err == nil {
		t.Fatal("pending send survived a dropped connection")
	}

	// The bridge is spent; later sends must say so. The read loop races the
	// drop, so poll briefly.
	deadline := time.Now().Add(time.Second)
	for {
		err := b.Send(uplink.Message{Port: 1, Payload: []byte{0x02}}, nil)
		if errors.Is(err, uplink.ErrClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Send after drop = %v, want ErrClosed", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBasicAuthForwarded(t *testing.T) {
	auth := make(chan string, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialTest(t, Config{URL: url, Username: "node", Password: "hunter2"})

	select {
	case got := <-auth:
		// base64("node:hunter2")
		if got != "Basic bm9kZTpodW50ZXIy" {
			t.Fatalf("Authorization = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no request seen")
	}
}

func TestDialRejectsBadScheme(t *testing.T) {
	_, err := Dial(Config{URL: "http://gateway.example/ws"})
	if errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("err = %v, want invalid_params", err)
	}
}

func TestFrameCodec(t *testing.T) {
	data, err := encodeUplink(7, uplink.Message{Port: 2, Payload: []byte{0xAA, 0xBB}})
	if err != nil {
		t.Fatalf("encodeUplink: %v", err)
	}
	typ, fields, err := parseFrame(data)
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if typ != frameUplink {
		t.Fatalf("type = %#x", typ)
	}
	if seq, ok := fieldUint(fields, fldSeq); !ok || seq != 7 {
		t.Fatalf("seq = %d", seq)
	}
	if port, ok := fieldUint(fields, fldPort); !ok || port != 2 {
		t.Fatalf("port = %d", port)
	}
	if p, ok := fieldBytes(fields, fldPayload); !ok || !bytes.Equal(p, []byte{0xAA, 0xBB}) {
		t.Fatalf("payload = %x", p)
	}

	data, err = encodeFrame(frameClose, nil)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	typ, fields, err = parseFrame(data)
	if err != nil || typ != frameClose || len(fields) != 0 {
		t.Fatalf("close frame = %#x %v %v", typ, fields, err)
	}

	if _, _, err := parseFrame([]byte{0x81, 0x01}); err == nil {
		t.Fatal("1-element array accepted")
	}
}
