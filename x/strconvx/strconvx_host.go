//go:build !rp2040

package strconvx

import "strconv"

// Host builds defer to the standard library; signatures match strconv.

func Itoa(i int) string          { return strconv.Itoa(i) }
func Atoi(s string) (int, error) { return strconv.Atoi(s) }
