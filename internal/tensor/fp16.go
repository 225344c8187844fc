package tensor

import "math"

var fp16Table [1 << 16]float32

func init() {
	for i := range fp16Table {
		fp16Table[i] = fp16Decode(uint16(i))
	}
}

func fp16ToF32(u uint16) float32 {
	return fp16Table[u]
}

func fp16Decode(u uint16) float32 {
	sign := uint32(u>>15) & 1
	exp := uint32(u>>10) & 0x1f
	frac := uint32(u) & 0x3ff

	var bits uint32
	switch {
	case exp == 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// subnormal: normalize
			e := uint32(127 - 15 + 1)
			for frac&0x400 == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3ff
			bits = sign<<31 | e<<23 | frac<<13
		}
	case exp == 0x1f:
		bits = sign<<31 | 0xff<<23 | frac<<13
	default:
		bits = sign<<31 | (exp+127-15)<<23 | frac<<13
	}
	return math.Float32frombits(bits)
}

// F32ToF16 encodes a float32 as IEEE half precision with round-to-nearest.
func F32ToF16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	frac := bits & 0x7fffff

	switch {
	case exp >= 0x1f:
		// overflow or inf/nan
		if bits&0x7fffffff > 0x7f800000 {
			return sign | 0x7e00 // nan
		}
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		frac |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(frac >> shift)
		if frac>>(shift-1)&1 != 0 {
			half++
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(frac>>13)
		if frac&0x1000 != 0 {
			half++
		}
		return half
	}
}
