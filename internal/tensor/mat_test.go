package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func TestRowBytes(t *testing.T) {
	cases := []struct {
		dtype DType
		cols  int
		want  int
	}{
		{DTypeF32, 8, 32},
		{DTypeF16, 8, 16},
		{DTypeQ4_0, 32, 20},
		{DTypeQ4_0, 64, 40},
		{DTypeQ4_1, 32, 24},
	}
	for _, c := range cases {
		got, err := RowBytes(c.dtype, c.cols)
		if err != nil {
			t.Fatalf("RowBytes(%v, %d): %v", c.dtype, c.cols, err)
		}
		if got != c.want {
			t.Errorf("RowBytes(%v, %d) = %d, want %d", c.dtype, c.cols, got, c.want)
		}
	}
	if _, err := RowBytes(DTypeQ4_0, 33); err == nil {
		t.Error("expected error for columns not divisible by block size")
	}
}

func TestFP16RoundTrip(t *testing.T) {
	vals := []float32{0, 1, -1, 0.5, -0.099, 3.14159, 65504, 6e-5}
	for _, v := range vals {
		back := fp16ToF32(F32ToF16(v))
		rel := math.Abs(float64(back-v)) / math.Max(math.Abs(float64(v)), 1e-8)
		if v != 0 && rel > 1e-3 {
			t.Errorf("f16 round trip %g -> %g (rel err %g)", v, back, rel)
		}
		if v == 0 && back != 0 {
			t.Errorf("f16 round trip 0 -> %g", back)
		}
	}
}

func TestQ4_0RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	src := make([]float32, 64)
	var amax float64
	for i := range src {
		src[i] = (rng.Float32() - 0.5) * 2
		if a := math.Abs(float64(src[i])); a > amax {
			amax = a
		}
	}
	rb, err := RowBytes(DTypeQ4_0, len(src))
	if err != nil {
		t.Fatal(err)
	}
	raw := make([]byte, rb)
	QuantizeRowQ4_0(src, raw)

	dst := make([]float32, len(src))
	dequantRowQ4_0(raw, dst)

	// 4-bit quantization: error bounded by roughly one step.
	step := amax / 7
	for i := range src {
		if math.Abs(float64(src[i]-dst[i])) > step {
			t.Errorf("element %d: %g -> %g (step %g)", i, src[i], dst[i], step)
		}
	}
}

func TestMatRowDecode(t *testing.T) {
	m := NewMat(3, 4)
	FillRand(m, 42)

	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		for j := 0; j < m.C; j++ {
			if row[j] != m.Data[i*m.C+j] {
				t.Fatalf("row %d col %d: %g != %g", i, j, row[j], m.Data[i*m.C+j])
			}
		}
	}
}

func TestNewMatFromRawValidatesLength(t *testing.T) {
	if _, err := NewMatFromRaw(2, 4, DTypeF32, make([]byte, 31)); err == nil {
		t.Error("expected error for short raw buffer")
	}
	m, err := NewMatFromRaw(2, 4, DTypeF32, make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Data) != 8 {
		t.Errorf("data length = %d, want 8", len(m.Data))
	}
}

func TestFillRandDeterministic(t *testing.T) {
	a := NewMat(4, 4)
	b := NewMat(4, 4)
	FillRand(a, 9)
	FillRand(b, 9)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatal("same seed produced different matrices")
		}
	}
}
