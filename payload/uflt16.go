package payload

import "math"

// uflt16 packs an unsigned value in [0, 1) into 16 bits:
//
//	[15:12] exponent, biased by 15
//	[11:0]  fraction in [0.5, 1), scaled by 4096
//
// so that value = (fraction/4096) * 2^(exponent-15). Zero is all-zero bits;
// values >= 1 saturate to 0xFFFF. Values below 2^-16 underflow to zero. The
// format trades range for a constant ~3.5 significant digits, which suits a
// CO2 ppm reading scaled by 1/65536.

// F2UFlt16 packs f into uflt16, saturating out-of-range inputs.
func F2UFlt16(f float32) uint16 {
	if math.IsNaN(float64(f)) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return 0xFFFF
	}
	frac, exp := math.Frexp(float64(f)) // f = frac * 2^exp, frac in [0.5, 1)
	exp += 15
	if exp < 0 {
		return 0 // below the representable range
	}
	return uint16(exp)<<12 | uint16(frac*4096)&0x0FFF
}

// UFlt16ToF32 expands a uflt16 value.
func UFlt16ToF32(v uint16) float32 {
	if v == 0 {
		return 0
	}
	exp := int(v>>12) - 15
	frac := float64(v&0x0FFF) / 4096
	return float32(math.Ldexp(frac, exp))
}
