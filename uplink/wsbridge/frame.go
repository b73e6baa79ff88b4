package wsbridge

import (
	"github.com/fxamacker/cbor/v2"

	"scd30node-go/errcode"
	"scd30node-go/uplink"
)

// Bridge frames are two-element CBOR arrays: [frame_type, field_map]. The
// field map uses small integer keys to keep frames compact on constrained
// links; nil stands in for an empty map.
const (
	frameHello  byte = 0x01
	frameUplink byte = 0x10
	frameAck    byte = 0x13
	frameClose  byte = 0x7F
)

// Uplink frame fields.
const (
	fldSeq     = 1
	fldPort    = 2
	fldPayload = 3
)

// Ack frame fields.
const (
	fldAckSeq = 1
	fldAckOK  = 2
	fldAckMsg = 3
)

// Hello frame fields.
const (
	fldNode  = 1
	fldProto = 2
)

// protoVersion is announced in the hello frame.
const protoVersion = 1

func encodeFrame(typ byte, fields map[int]any) ([]byte, error) {
	var body any
	if len(fields) > 0 {
		body = fields
	}
	return cbor.Marshal([]any{uint64(typ), body})
}

func encodeUplink(seq uint32, msg uplink.Message) ([]byte, error) {
	return encodeFrame(frameUplink, map[int]any{
		fldSeq:     uint64(seq),
		fldPort:    uint64(msg.Port),
		fldPayload: msg.Payload,
	})
}

func encodeHello(node string) ([]byte, error) {
	return encodeFrame(frameHello, map[int]any{
		fldNode:  node,
		fldProto: uint64(protoVersion),
	})
}

func encodeAck(seq uint32, ok bool, msg string) ([]byte, error) {
	fields := map[int]any{
		fldAckSeq: uint64(seq),
		fldAckOK:  ok,
	}
	if msg != "" {
		fields[fldAckMsg] = msg
	}
	return encodeFrame(frameAck, fields)
}

// parseFrame decodes [frame_type, field_map]. A nil body yields an empty map.
func parseFrame(data []byte) (byte, map[int]any, error) {
	if len(data) == 0 {
		return 0, nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.frame", Msg: "empty frame"}
	}
	var raw []any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return 0, nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.frame", Err: err}
	}
	if len(raw) != 2 {
		return 0, nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.frame", Msg: "not a 2-element array"}
	}
	t, ok := raw[0].(uint64)
	if !ok || t > 255 {
		return 0, nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.frame", Msg: "bad frame type"}
	}
	if raw[1] == nil {
		return byte(t), map[int]any{}, nil
	}
	m, ok := raw[1].(map[any]any)
	if !ok {
		return 0, nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.frame", Msg: "body is not a map"}
	}
	fields := make(map[int]any, len(m))
	for k, v := range m {
		switch key := k.(type) {
		case uint64:
			fields[int(key)] = v
		case int64:
			fields[int(key)] = v
		default:
			return 0, nil, &errcode.E{C: errcode.InvalidParams, Op: "wsbridge.frame", Msg: "non-integer field key"}
		}
	}
	return byte(t), fields, nil
}

func fieldUint(m map[int]any, key int) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

func fieldBool(m map[int]any, key int) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func fieldString(m map[int]any, key int) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func fieldBytes(m map[int]any, key int) ([]byte, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
