package model

import (
	"fmt"

	"github.com/samcharles93/lantern/internal/tensor"
)

// Precision is the storage encoding code from the weight-file header.
type Precision int32

const (
	PrecisionF32 Precision = iota
	PrecisionF16
	PrecisionQ4_0
	PrecisionQ4_1
)

// DType maps the precision code to a tensor element encoding.
func (p Precision) DType() (tensor.DType, error) {
	switch p {
	case PrecisionF32:
		return tensor.DTypeF32, nil
	case PrecisionF16:
		return tensor.DTypeF16, nil
	case PrecisionQ4_0:
		return tensor.DTypeQ4_0, nil
	case PrecisionQ4_1:
		return tensor.DTypeQ4_1, nil
	}
	return 0, fmt.Errorf("code %d: %w", int32(p), ErrUnsupportedPrecision)
}

func (p Precision) String() string {
	dt, err := p.DType()
	if err != nil {
		return fmt.Sprintf("precision(%d)", int32(p))
	}
	return dt.String()
}

// Hyperparameters are the architecture dimensions read from the file
// header. ContextLength is supplied by the caller at load time and
// overrides the stored value.
type Hyperparameters struct {
	VocabSize     int
	ContextLength int
	EmbdDim       int
	Mult          int
	Heads         int
	Layers        int
	RotaryDim     int
	Precision     Precision
}

func (h Hyperparameters) HeadDim() int { return h.EmbdDim / h.Heads }

// FFNLength derives the hidden feed-forward width from the multiplier the
// same way the reference weights were produced:
// round 2/3 of 4*embd up to a multiple of mult.
func (h Hyperparameters) FFNLength() int {
	return ((2*(4*h.EmbdDim)/3 + h.Mult - 1) / h.Mult) * h.Mult
}

func (h Hyperparameters) validate() error {
	if h.VocabSize <= 0 || h.EmbdDim <= 0 || h.Heads <= 0 || h.Layers <= 0 || h.Mult <= 0 {
		return fmt.Errorf("non-positive header dimension: %w", ErrUnsupportedConfig)
	}
	if h.ContextLength <= 0 {
		return fmt.Errorf("context length %d: %w", h.ContextLength, ErrUnsupportedConfig)
	}
	if h.EmbdDim%h.Heads != 0 {
		return fmt.Errorf("embedding dim %d not divisible by head count %d: %w",
			h.EmbdDim, h.Heads, ErrUnsupportedConfig)
	}
	if h.RotaryDim <= 0 || h.RotaryDim%2 != 0 || h.RotaryDim > h.HeadDim() {
		return fmt.Errorf("rotary dim %d invalid for head dim %d: %w",
			h.RotaryDim, h.HeadDim(), ErrUnsupportedConfig)
	}
	if _, err := h.Precision.DType(); err != nil {
		return err
	}
	return nil
}

// partsByEmbd is the fixed partition-count table for multi-part weight
// files, keyed by embedding dimension.
var partsByEmbd = map[int]int{
	4096: 1,
	5120: 2,
	6656: 4,
	8192: 8,
}

// PartCount returns the number of part files for this model. Dimensions
// outside the table have no defined partitioning.
func (h Hyperparameters) PartCount() (int, error) {
	n, ok := partsByEmbd[h.EmbdDim]
	if !ok {
		return 0, fmt.Errorf("no part count known for embedding dim %d: %w",
			h.EmbdDim, ErrUnsupportedConfig)
	}
	return n, nil
}
