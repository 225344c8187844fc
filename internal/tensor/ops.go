package tensor

import "math"

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalizes src to zero mean and unit variance and scales the
// result by weight.
func LayerNorm(dst, src, weight []float32, eps float32) {
	var sum float32
	for _, v := range src {
		sum += v
	}
	mean := sum / float32(len(src))
	var varsum float32
	for _, v := range src {
		d := v - mean
		varsum += d * d
	}
	scale := float32(1.0 / math.Sqrt(float64(varsum/float32(len(src))+eps)))
	for i := range src {
		dst[i] = (src[i] - mean) * scale * weight[i]
	}
}

// Softmax applies the softmax function to x in place.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Silu computes the Sigmoid Linear Unit activation.
func Silu(x float32) float32 {
	return x / float32(1.0+math.Exp(float64(-x)))
}

// ApplyRoPE rotates the first rotDim dimensions of each head of x in place
// for the given absolute position. invFreq holds rotDim/2 precomputed
// inverse frequencies.
func ApplyRoPE(x []float32, nHead, headDim, rotDim, pos int, invFreq []float64) {
	if rotDim%2 != 0 || rotDim > headDim {
		panic("tensor: invalid rotary dimension")
	}
	for h := 0; h < nHead; h++ {
		base := h * headDim
		for i := 0; i < rotDim/2; i++ {
			angle := float64(pos) * invFreq[i]
			c := float32(math.Cos(angle))
			s := float32(math.Sin(angle))
			i0 := base + 2*i
			i1 := i0 + 1
			x0 := x[i0]
			x1 := x[i1]
			x[i0] = x0*c - x1*s
			x[i1] = x0*s + x1*c
		}
	}
}

// RopeInvFreq precomputes the inverse frequency table for ApplyRoPE with
// the standard 10000 base.
func RopeInvFreq(rotDim int) []float64 {
	inv := make([]float64, rotDim/2)
	for i := range inv {
		inv[i] = 1.0 / math.Pow(10000, float64(2*i)/float64(rotDim))
	}
	return inv
}
