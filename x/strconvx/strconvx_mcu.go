//go:build rp2040

// Decimal-only Itoa and Atoi so the firmware image stays clear of strconv's
// table-driven formatters. Signatures match strconv; the modem protocol
// never needs more than these.
package strconvx

type parseError struct{}

func (parseError) Error() string { return "invalid syntax" }

const maxInt = int(^uint(0) >> 1)

func Itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	var u uint
	if neg {
		u = uint(-i) // wraps to the right magnitude for the minimum value
	} else {
		u = uint(i)
	}
	var buf [20]byte
	w := len(buf)
	for u > 0 {
		w--
		buf[w] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		w--
		buf[w] = '-'
	}
	return string(buf[w:])
}

func Atoi(s string) (int, error) {
	if s == "" {
		return 0, parseError{}
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
		if s == "" {
			return 0, parseError{}
		}
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, parseError{}
		}
		d := int(c - '0')
		if n > (maxInt-d)/10 {
			return 0, parseError{}
		}
		n = n*10 + d
	}
	if neg {
		n = -n
	}
	return n, nil
}
