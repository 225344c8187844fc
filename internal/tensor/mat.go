package tensor

import (
	"fmt"
	"math/rand"
	"unsafe"
)

// DType describes the element encoding of a weight matrix.
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeQ4_0
	DTypeQ4_1
)

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeQ4_0:
		return "q4_0"
	case DTypeQ4_1:
		return "q4_1"
	}
	return fmt.Sprintf("dtype(%d)", int(t))
}

// BlockSize returns the number of elements encoded per block.
func (t DType) BlockSize() int {
	switch t {
	case DTypeQ4_0, DTypeQ4_1:
		return q4BlockLen
	default:
		return 1
	}
}

// TypeSize returns the number of bytes per block.
func (t DType) TypeSize() int {
	switch t {
	case DTypeF32:
		return 4
	case DTypeF16:
		return 2
	case DTypeQ4_0:
		return q4_0BlockBytes
	case DTypeQ4_1:
		return q4_1BlockBytes
	}
	return 0
}

// RowBytes returns the encoded byte length of one row of cols elements.
// Quantized rows must be a whole number of blocks.
func RowBytes(t DType, cols int) (int, error) {
	bs := t.BlockSize()
	if bs == 0 || t.TypeSize() == 0 {
		return 0, fmt.Errorf("rowbytes: unsupported dtype %v", t)
	}
	if cols%bs != 0 {
		return 0, fmt.Errorf("rowbytes: %d columns not divisible by %v block size %d", cols, t, bs)
	}
	return cols / bs * t.TypeSize(), nil
}

// Mat is a dense row-major matrix. Raw always holds the encoded bytes;
// for f32 matrices Data additionally aliases the same memory so hot paths
// can skip decoding. Non-f32 rows are decoded on access.
type Mat struct {
	R, C  int
	DType DType
	Data  []float32
	Raw   []byte
}

// NewMat allocates a zeroed f32 matrix.
func NewMat(r, c int) *Mat {
	if r < 0 || c < 0 {
		panic("tensor: negative matrix dimension")
	}
	data := make([]float32, r*c)
	return &Mat{R: r, C: c, DType: DTypeF32, Data: data, Raw: f32Bytes(data)}
}

// NewMatFromRaw wraps encoded bytes as an r x c matrix of the given dtype.
// For f32 the raw slice must be 4-byte aligned (true for slices carved from
// a []float32-backed arena).
func NewMatFromRaw(r, c int, t DType, raw []byte) (*Mat, error) {
	rb, err := RowBytes(t, c)
	if err != nil {
		return nil, err
	}
	if len(raw) != r*rb {
		return nil, fmt.Errorf("raw length %d does not match %dx%d %v matrix (want %d)", len(raw), r, c, t, r*rb)
	}
	m := &Mat{R: r, C: c, DType: t, Raw: raw}
	if t == DTypeF32 {
		m.Data = f32View(raw)
	}
	return m, nil
}

// Row returns the i-th row, decoding if necessary. The returned slice
// aliases the matrix only for f32.
func (m *Mat) Row(i int) []float32 {
	if m.DType == DTypeF32 {
		return m.Data[i*m.C : (i+1)*m.C]
	}
	dst := make([]float32, m.C)
	m.RowTo(dst, i)
	return dst
}

// RowTo decodes the i-th row into dst, which must have length >= C.
func (m *Mat) RowTo(dst []float32, i int) {
	if i < 0 || i >= m.R {
		panic("tensor: row index out of range")
	}
	if len(dst) < m.C {
		panic("tensor: row buffer too small")
	}
	switch m.DType {
	case DTypeF32:
		copy(dst[:m.C], m.Data[i*m.C:(i+1)*m.C])
	case DTypeF16:
		off := i * m.C * 2
		for j := 0; j < m.C; j++ {
			dst[j] = fp16ToF32(u16le(m.Raw, off+j*2))
		}
	case DTypeQ4_0, DTypeQ4_1:
		rb, _ := RowBytes(m.DType, m.C)
		dequantRow(m.DType, m.Raw[i*rb:(i+1)*rb], dst[:m.C])
	default:
		panic("tensor: unsupported dtype for row decode")
	}
}

// FillRand fills an f32 matrix with reproducible pseudo-random values in a
// small range around zero. The same seed always yields the same matrix.
func FillRand(m *Mat, seed int64) {
	if m.DType != DTypeF32 {
		panic("tensor: FillRand only supports f32 matrices")
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * 0.2
	}
}

func u16le(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func u32le(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

// f32View reinterprets raw bytes as float32s. The caller guarantees the
// slice came from float32-backed memory, so alignment holds.
func f32View(raw []byte) []float32 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&raw[0])), len(raw)/4)
}

func f32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}
