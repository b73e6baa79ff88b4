package conv

const hexd = "0123456789ABCDEF"

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 8; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// Hex writes uppercase hex of src into buf, 2 output bytes per input byte.
// buf too small returns buf[:0].
func Hex(buf, src []byte) []byte {
	if len(buf) < 2*len(src) {
		return buf[:0]
	}
	for i, b := range src {
		buf[2*i] = hexd[b>>4]
		buf[2*i+1] = hexd[b&0xF]
	}
	return buf[:2*len(src)]
}

// Unhex parses hex digits (either case) from s into buf.
// Odd length, a bad digit, or a too-small buf returns (buf[:0], false).
func Unhex(buf []byte, s string) ([]byte, bool) {
	if len(s)%2 != 0 || len(buf) < len(s)/2 {
		return buf[:0], false
	}
	for i := 0; i < len(s); i += 2 {
		hi, ok1 := unhexDigit(s[i])
		lo, ok2 := unhexDigit(s[i+1])
		if !ok1 || !ok2 {
			return buf[:0], false
		}
		buf[i/2] = hi<<4 | lo
	}
	return buf[:len(s)/2], true
}

func unhexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
