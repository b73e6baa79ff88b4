// Package payload implements the node's uplink wire format (format 0x1E).
//
// A payload is a fixed header followed by flag-gated fields:
//
//	byte 0  format tag (0x1E)
//	byte 1  Flags bitset
//	...     present fields, in ascending flag-bit order
//
// All multi-byte fields are big-endian. Encoding is sparse: a field is
// emitted only when its flag bit is set, and the order never depends on the
// order measurements were captured.
package payload

import "errors"

// Wire constants.
const (
	Format     = 0x1E // message format tag, byte 0 of every uplink
	UplinkPort = 1    // uplink port shared by all format-0x1E messages
	BufferSize = 36   // fixed transmit buffer capacity
)

// Flags marks which optional fields are present in an encoded payload.
type Flags uint8

const (
	FlagVbat   Flags = 1 << iota // battery voltage: int16, 1/4096 V
	FlagVcc                      // supply voltage: int16, 1/4096 V
	FlagBoot                     // boot count: uint8, wrapping
	FlagTH                       // temperature int16 (0.005 °C) + RH uint16 (0xFFFF = 100%)
	FlagCO2PPM                   // CO2 ppm/65536 as uflt16

	flagsKnown = FlagVbat | FlagVcc | FlagBoot | FlagTH | FlagCO2PPM
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

var flagNames = [...]struct {
	bit  Flags
	name string
}{
	{FlagVbat, "vbat"},
	{FlagVcc, "vcc"},
	{FlagBoot, "boot"},
	{FlagTH, "th"},
	{FlagCO2PPM, "co2"},
}

// String lists the set flags in ascending bit order, e.g. "vbat|th|co2".
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var s string
	for _, e := range flagNames {
		if f&e.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += e.name
	}
	if f&^flagsKnown != 0 {
		if s != "" {
			s += "|"
		}
		s += "unknown"
	}
	return s
}

// Decode errors.
var (
	ErrTruncated    = errors.New("payload: truncated")
	ErrBadFormat    = errors.New("payload: unknown format tag")
	ErrUnknownFlags = errors.New("payload: unknown flag bits")
	ErrTrailing     = errors.New("payload: trailing bytes")
)

// Record accumulates one measurement cycle. Only the fields whose flag is set
// are meaningful; Encode serializes exactly those.
type Record struct {
	Flags Flags

	Vbat  float32 // volts
	Vcc   float32 // volts
	Boot  uint8   // wrapping boot count
	TempC float32 // degrees Celsius
	RH    float32 // percent, 0..100
	CO2   float32 // ppm
}

// Reset clears the record for a new cycle.
func (r *Record) Reset() { *r = Record{} }

// Encode serializes the record into b in ascending flag-bit order.
// b is reset first; the result is available via b.Bytes().
func (r *Record) Encode(b *TxBuffer) {
	b.Reset()
	b.Put(Format)
	b.Put(byte(r.Flags))
	if r.Flags.Has(FlagVbat) {
		b.PutVolts(r.Vbat)
	}
	if r.Flags.Has(FlagVcc) {
		b.PutVolts(r.Vcc)
	}
	if r.Flags.Has(FlagBoot) {
		b.Put(r.Boot)
	}
	if r.Flags.Has(FlagTH) {
		b.PutTemp(r.TempC)
		b.PutRH(r.RH)
	}
	if r.Flags.Has(FlagCO2PPM) {
		b.PutUFlt16(r.CO2 / 65536)
	}
}

// Decode parses a format-0x1E payload. It is the exact inverse of Encode and
// rejects unknown format tags, unknown flag bits, truncation, and trailing
// bytes.
func Decode(p []byte) (Record, error) {
	var r Record
	if len(p) < 2 {
		return r, ErrTruncated
	}
	if p[0] != Format {
		return r, ErrBadFormat
	}
	f := Flags(p[1])
	if f&^flagsKnown != 0 {
		return r, ErrUnknownFlags
	}
	r.Flags = f
	p = p[2:]

	take := func(n int) ([]byte, bool) {
		if len(p) < n {
			return nil, false
		}
		b := p[:n]
		p = p[n:]
		return b, true
	}
	u16 := func(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

	if f.Has(FlagVbat) {
		b, ok := take(2)
		if !ok {
			return r, ErrTruncated
		}
		r.Vbat = float32(int16(u16(b))) / 4096
	}
	if f.Has(FlagVcc) {
		b, ok := take(2)
		if !ok {
			return r, ErrTruncated
		}
		r.Vcc = float32(int16(u16(b))) / 4096
	}
	if f.Has(FlagBoot) {
		b, ok := take(1)
		if !ok {
			return r, ErrTruncated
		}
		r.Boot = b[0]
	}
	if f.Has(FlagTH) {
		b, ok := take(4)
		if !ok {
			return r, ErrTruncated
		}
		r.TempC = float32(int16(u16(b[0:2]))) / 200
		r.RH = float32(u16(b[2:4])) * 100 / 65535
	}
	if f.Has(FlagCO2PPM) {
		b, ok := take(2)
		if !ok {
			return r, ErrTruncated
		}
		r.CO2 = UFlt16ToF32(u16(b)) * 65536
	}
	if len(p) != 0 {
		return r, ErrTrailing
	}
	return r, nil
}
