// Package toy writes small deterministic weight files so loaders, engines
// and sessions can be exercised without real model weights.
package toy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/samcharles93/lantern/internal/model"
	"github.com/samcharles93/lantern/internal/tensor"
)

// Params shape the generated model. Weights are pseudo-random but fully
// determined by Seed.
type Params struct {
	Vocab     []string
	EmbdDim   int
	Mult      int
	Heads     int
	Layers    int
	RotaryDim int
	Seed      int64
	Precision model.Precision
}

// DefaultParams returns a tiny model that loads and evaluates in
// milliseconds.
func DefaultParams() Params {
	return Params{
		Vocab:     DefaultVocab(),
		EmbdDim:   8,
		Mult:      4,
		Heads:     2,
		Layers:    2,
		RotaryDim: 4,
		Seed:      1,
		Precision: model.PrecisionF32,
	}
}

// DefaultVocab is built so greedy longest-prefix tokenization splits
// space-separated words of a..e exactly.
func DefaultVocab() []string {
	return []string{"a", " a", "b", " b", "c", " c", "d", " d", "e", " e"}
}

func (p Params) hparams() model.Hyperparameters {
	return model.Hyperparameters{
		VocabSize: len(p.Vocab),
		EmbdDim:   p.EmbdDim,
		Mult:      p.Mult,
		Heads:     p.Heads,
		Layers:    p.Layers,
		RotaryDim: p.RotaryDim,
		Precision: p.Precision,
	}
}

type toyTensor struct {
	name string
	rows int
	cols int
	f32  bool
}

func (p Params) tensors() []toyTensor {
	h := p.hparams()
	nEmbd, nFF, nVocab := h.EmbdDim, h.FFNLength(), h.VocabSize
	ts := []toyTensor{
		{"tok_embeddings.weight", nVocab, nEmbd, false},
		{"norm.weight", 1, nEmbd, true},
		{"output.weight", nVocab, nEmbd, false},
	}
	for i := 0; i < p.Layers; i++ {
		pre := fmt.Sprintf("layers.%d.", i)
		ts = append(ts,
			toyTensor{pre + "attention_norm.weight", 1, nEmbd, true},
			toyTensor{pre + "attention.wq.weight", nEmbd, nEmbd, false},
			toyTensor{pre + "attention.wk.weight", nEmbd, nEmbd, false},
			toyTensor{pre + "attention.wv.weight", nEmbd, nEmbd, false},
			toyTensor{pre + "attention.wo.weight", nEmbd, nEmbd, false},
			toyTensor{pre + "ffn_norm.weight", 1, nEmbd, true},
			toyTensor{pre + "feed_forward.w1.weight", nFF, nEmbd, false},
			toyTensor{pre + "feed_forward.w2.weight", nEmbd, nFF, false},
			toyTensor{pre + "feed_forward.w3.weight", nFF, nEmbd, false},
		)
	}
	return ts
}

// Write produces a weight file (plus numbered extra parts when parts > 1)
// at path. The same Params always produce byte-identical files.
func Write(path string, p Params, parts int) error {
	if parts < 1 {
		parts = 1
	}
	dt, err := p.Precision.DType()
	if err != nil {
		return err
	}
	if dt == tensor.DTypeQ4_1 {
		return fmt.Errorf("toy: q4_1 generation not supported")
	}

	specs := p.tensors()
	full := make([]*tensor.Mat, len(specs))
	for i, sp := range specs {
		m := tensor.NewMat(sp.rows, sp.cols)
		tensor.FillRand(m, p.Seed+int64(i))
		full[i] = m
	}

	for part := 0; part < parts; part++ {
		name := path
		if part > 0 {
			name = fmt.Sprintf("%s.%d", path, part)
		}
		if err := writePart(name, p, dt, specs, full, part, parts); err != nil {
			return err
		}
	}
	return nil
}

func writePart(path string, p Params, dt tensor.DType, specs []toyTensor, full []*tensor.Mat, part, parts int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	hdr := []int32{
		int32(len(p.Vocab)), int32(p.EmbdDim), int32(p.Mult), int32(p.Heads),
		int32(p.Layers), int32(p.RotaryDim), int32(p.Precision),
	}
	for _, v := range hdr {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, word := range p.Vocab {
		if err := binary.Write(w, binary.LittleEndian, int32(len(word))); err != nil {
			return err
		}
		if _, err := w.WriteString(word); err != nil {
			return err
		}
	}

	for i, sp := range specs {
		if err := writeRecord(w, sp, dt, full[i], part, parts); err != nil {
			return fmt.Errorf("tensor %s: %w", sp.name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeRecord(w *bufio.Writer, sp toyTensor, dt tensor.DType, m *tensor.Mat, part, parts int) error {
	recType := dt
	if sp.f32 {
		recType = tensor.DTypeF32
	}

	// Work out this part's slice of the full tensor.
	rows, cols := m.R, m.C
	rowStart, colStart := 0, 0
	nDims := int32(2)
	if sp.rows == 1 {
		nDims = 1
	} else if parts > 1 {
		if columnSplit(sp.name) {
			cols = m.C / parts
			colStart = part * cols
		} else {
			rows = m.R / parts
			rowStart = part * rows
		}
	}

	hdr := []int32{nDims, int32(len(sp.name)), int32(precisionCode(recType))}
	if nDims == 1 {
		hdr = append(hdr, int32(cols))
	} else {
		hdr = append(hdr, int32(cols), int32(rows))
	}
	for _, v := range hdr {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := w.WriteString(sp.name); err != nil {
		return err
	}

	rowBuf := make([]float32, cols)
	for r := rowStart; r < rowStart+rows; r++ {
		copy(rowBuf, m.Data[r*m.C+colStart:r*m.C+colStart+cols])
		if err := writeRow(w, recType, rowBuf); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w *bufio.Writer, dt tensor.DType, row []float32) error {
	switch dt {
	case tensor.DTypeF32:
		return binary.Write(w, binary.LittleEndian, row)
	case tensor.DTypeF16:
		enc := make([]uint16, len(row))
		for i, v := range row {
			enc[i] = tensor.F32ToF16(v)
		}
		return binary.Write(w, binary.LittleEndian, enc)
	case tensor.DTypeQ4_0:
		rb, err := tensor.RowBytes(dt, len(row))
		if err != nil {
			return err
		}
		buf := make([]byte, rb)
		tensor.QuantizeRowQ4_0(row, buf)
		_, err = w.Write(buf)
		return err
	}
	return fmt.Errorf("toy: unsupported dtype %v", dt)
}

func columnSplit(name string) bool {
	if strings.Contains(name, "tok_embeddings") {
		return true
	}
	return strings.Contains(name, "layers") &&
		(strings.Contains(name, "attention.wo.weight") ||
			strings.Contains(name, "feed_forward.w2.weight"))
}

func precisionCode(dt tensor.DType) int {
	switch dt {
	case tensor.DTypeF32:
		return 0
	case tensor.DTypeF16:
		return 1
	case tensor.DTypeQ4_0:
		return 2
	case tensor.DTypeQ4_1:
		return 3
	}
	return -1
}
