package model

import (
	"fmt"

	"github.com/samcharles93/lantern/internal/tensor"
)

// Layer holds the weights of one transformer block.
type Layer struct {
	AttnNorm *tensor.Mat
	Wq       *tensor.Mat
	Wk       *tensor.Mat
	Wv       *tensor.Mat
	Wo       *tensor.Mat
	FfnNorm  *tensor.Mat
	W1       *tensor.Mat
	W2       *tensor.Mat
	W3       *tensor.Mat
}

// Store holds a fully loaded model: hyperparameters, vocabulary, and all
// weight tensors backed by one contiguous allocation.
type Store struct {
	Hparams Hyperparameters
	Vocab   *Vocabulary

	TokEmb *tensor.Mat
	Norm   *tensor.Mat
	Output *tensor.Mat
	Layers []Layer

	byName      map[string]*tensor.Mat
	weightBytes int
}

// Tensor looks up a weight by its file name.
func (s *Store) Tensor(name string) (*tensor.Mat, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// WeightBytes returns the size of the weight allocation.
func (s *Store) WeightBytes() int { return s.weightBytes }

type tensorSpec struct {
	name  string
	rows  int
	cols  int
	dtype tensor.DType
}

// tensorSpecs lists every expected tensor in canonical order with its full
// (unsplit) shape. Norms are always f32; everything else uses the file
// precision.
func tensorSpecs(h Hyperparameters, wt tensor.DType) []tensorSpec {
	nEmbd, nFF, nVocab := h.EmbdDim, h.FFNLength(), h.VocabSize
	specs := make([]tensorSpec, 0, 3+9*h.Layers)
	specs = append(specs,
		tensorSpec{"tok_embeddings.weight", nVocab, nEmbd, wt},
		tensorSpec{"norm.weight", 1, nEmbd, tensor.DTypeF32},
		tensorSpec{"output.weight", nVocab, nEmbd, wt},
	)
	for i := 0; i < h.Layers; i++ {
		p := fmt.Sprintf("layers.%d.", i)
		specs = append(specs,
			tensorSpec{p + "attention_norm.weight", 1, nEmbd, tensor.DTypeF32},
			tensorSpec{p + "attention.wq.weight", nEmbd, nEmbd, wt},
			tensorSpec{p + "attention.wk.weight", nEmbd, nEmbd, wt},
			tensorSpec{p + "attention.wv.weight", nEmbd, nEmbd, wt},
			tensorSpec{p + "attention.wo.weight", nEmbd, nEmbd, wt},
			tensorSpec{p + "ffn_norm.weight", 1, nEmbd, tensor.DTypeF32},
			tensorSpec{p + "feed_forward.w1.weight", nFF, nEmbd, wt},
			tensorSpec{p + "feed_forward.w2.weight", nEmbd, nFF, wt},
			tensorSpec{p + "feed_forward.w3.weight", nFF, nEmbd, wt},
		)
	}
	return specs
}

const weightAlign = 4

func alignUp(n int) int { return (n + weightAlign - 1) &^ (weightAlign - 1) }

// newStore sizes every expected tensor analytically from the
// hyperparameters and carves all of them out of one backing buffer, so
// weight memory is a single allocation whose cost is paid once.
func newStore(h Hyperparameters, vocab *Vocabulary) (*Store, error) {
	wt, err := h.Precision.DType()
	if err != nil {
		return nil, err
	}
	specs := tensorSpecs(h, wt)

	total := 0
	for _, sp := range specs {
		rb, err := tensor.RowBytes(sp.dtype, sp.cols)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", sp.name, err)
		}
		total += alignUp(sp.rows * rb)
	}

	buf := make([]byte, total)
	s := &Store{
		Hparams:     h,
		Vocab:       vocab,
		Layers:      make([]Layer, h.Layers),
		byName:      make(map[string]*tensor.Mat, len(specs)),
		weightBytes: total,
	}

	off := 0
	for _, sp := range specs {
		rb, _ := tensor.RowBytes(sp.dtype, sp.cols)
		n := sp.rows * rb
		m, err := tensor.NewMatFromRaw(sp.rows, sp.cols, sp.dtype, buf[off:off+n])
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", sp.name, err)
		}
		s.byName[sp.name] = m
		off += alignUp(n)
	}

	s.TokEmb = s.byName["tok_embeddings.weight"]
	s.Norm = s.byName["norm.weight"]
	s.Output = s.byName["output.weight"]
	for i := range s.Layers {
		p := fmt.Sprintf("layers.%d.", i)
		s.Layers[i] = Layer{
			AttnNorm: s.byName[p+"attention_norm.weight"],
			Wq:       s.byName[p+"attention.wq.weight"],
			Wk:       s.byName[p+"attention.wk.weight"],
			Wv:       s.byName[p+"attention.wv.weight"],
			Wo:       s.byName[p+"attention.wo.weight"],
			FfnNorm:  s.byName[p+"ffn_norm.weight"],
			W1:       s.byName[p+"feed_forward.w1.weight"],
			W2:       s.byName[p+"feed_forward.w2.weight"],
			W3:       s.byName[p+"feed_forward.w3.weight"],
		}
	}
	return s, nil
}
