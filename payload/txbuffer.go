package payload

import (
	"math"

	"scd30node-go/x/mathx"
)

// TxBuffer is a fixed-capacity, append-only encoder for uplink payloads.
// Capacity overflow is a programming invariant, not a runtime condition:
// the largest format-0x1E payload is 13 bytes against a 36-byte buffer, so
// Put panics rather than truncating.
type TxBuffer struct {
	buf [BufferSize]byte
	n   int
}

// Reset empties the buffer.
func (b *TxBuffer) Reset() { b.n = 0 }

// Len returns the number of encoded bytes.
func (b *TxBuffer) Len() int { return b.n }

// Bytes returns the encoded payload. The slice aliases the buffer and is
// valid until the next Reset; callers who hand it to an asynchronous
// consumer must copy it first.
func (b *TxBuffer) Bytes() []byte { return b.buf[:b.n] }

// Put appends a single byte.
func (b *TxBuffer) Put(v byte) {
	if b.n >= len(b.buf) {
		panic("payload: tx buffer overflow")
	}
	b.buf[b.n] = v
	b.n++
}

// Put2 appends v big-endian.
func (b *TxBuffer) Put2(v uint16) {
	b.Put(byte(v >> 8))
	b.Put(byte(v))
}

// Put2i appends v big-endian (two's complement).
func (b *TxBuffer) Put2i(v int16) { b.Put2(uint16(v)) }

// PutVolts appends a voltage as a signed 16-bit fixed-point value at
// 1/4096 V per LSB, saturating at the int16 range (about ±8 V).
func (b *TxBuffer) PutVolts(v float32) {
	b.Put2i(roundI16(float64(v) * 4096))
}

// PutTemp appends a temperature in °C as a signed 16-bit value at
// 0.005 °C per LSB.
func (b *TxBuffer) PutTemp(degC float32) {
	b.Put2i(roundI16(float64(degC) * 200))
}

// PutRH appends a relative humidity percentage as an unsigned 16-bit value
// where 0xFFFF represents 100%. Inputs are clamped to [0, 100].
func (b *TxBuffer) PutRH(pct float32) {
	p := mathx.Clamp(float64(pct), 0, 100)
	b.Put2(uint16(math.Round(p * 65535 / 100)))
}

// PutUFlt16 appends f packed as uflt16. f must represent a value in [0, 1);
// out-of-range inputs saturate per F2UFlt16.
func (b *TxBuffer) PutUFlt16(f float32) {
	b.Put2(F2UFlt16(f))
}

func roundI16(v float64) int16 {
	return int16(mathx.Clamp(math.Round(v), math.MinInt16, math.MaxInt16))
}
