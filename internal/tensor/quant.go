package tensor

import "math"

// Legacy 4-bit block quantization as used by the weight-file format.
// Both variants pack 32 elements per block as low/high nibbles after the
// block header: q4_0 carries one f32 scale, q4_1 an f32 scale plus an f32
// minimum.

const (
	q4BlockLen     = 32
	q4_0BlockBytes = 4 + q4BlockLen/2  // scale + nibbles
	q4_1BlockBytes = 8 + q4BlockLen/2  // scale, min + nibbles
)

func dequantRow(t DType, raw []byte, dst []float32) {
	switch t {
	case DTypeQ4_0:
		dequantRowQ4_0(raw, dst)
	case DTypeQ4_1:
		dequantRowQ4_1(raw, dst)
	default:
		panic("tensor: dequantRow on non-quantized dtype")
	}
}

func dequantRowQ4_0(raw []byte, dst []float32) {
	blocks := len(dst) / q4BlockLen
	for b := 0; b < blocks; b++ {
		off := b * q4_0BlockBytes
		d := f32le(raw, off)
		qs := raw[off+4 : off+q4_0BlockBytes]
		out := dst[b*q4BlockLen:]
		for j := 0; j < q4BlockLen/2; j++ {
			q := qs[j]
			out[2*j] = (float32(q&0x0f) - 8) * d
			out[2*j+1] = (float32(q>>4) - 8) * d
		}
	}
}

func dequantRowQ4_1(raw []byte, dst []float32) {
	blocks := len(dst) / q4BlockLen
	for b := 0; b < blocks; b++ {
		off := b * q4_1BlockBytes
		d := f32le(raw, off)
		m := f32le(raw, off+4)
		qs := raw[off+8 : off+q4_1BlockBytes]
		out := dst[b*q4BlockLen:]
		for j := 0; j < q4BlockLen/2; j++ {
			q := qs[j]
			out[2*j] = float32(q&0x0f)*d + m
			out[2*j+1] = float32(q>>4)*d + m
		}
	}
}

// QuantizeRowQ4_0 encodes src (a whole number of 32-element blocks) into
// q4_0 bytes. Used by the toy weight writer and round-trip tests.
func QuantizeRowQ4_0(src []float32, dst []byte) {
	blocks := len(src) / q4BlockLen
	for b := 0; b < blocks; b++ {
		in := src[b*q4BlockLen : (b+1)*q4BlockLen]
		var amax float32
		for _, v := range in {
			a := v
			if a < 0 {
				a = -a
			}
			if a > amax {
				amax = a
			}
		}
		d := amax / 7
		var id float32
		if d != 0 {
			id = 1 / d
		}
		off := b * q4_0BlockBytes
		putF32le(dst, off, d)
		qs := dst[off+4 : off+q4_0BlockBytes]
		for j := 0; j < q4BlockLen/2; j++ {
			lo := quantNibble(in[2*j]*id + 8)
			hi := quantNibble(in[2*j+1]*id + 8)
			qs[j] = lo | hi<<4
		}
	}
}

func quantNibble(v float32) byte {
	n := int(v + 0.5)
	if n < 0 {
		n = 0
	}
	if n > 15 {
		n = 15
	}
	return byte(n)
}

func f32le(b []byte, off int) float32 {
	return math.Float32frombits(u32le(b, off))
}

func putF32le(b []byte, off int, v float32) {
	bits := math.Float32bits(v)
	b[off] = byte(bits)
	b[off+1] = byte(bits >> 8)
	b[off+2] = byte(bits >> 16)
	b[off+3] = byte(bits >> 24)
}
