package model_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/lantern/internal/model"
	"github.com/samcharles93/lantern/internal/toy"
)

func writeToy(t *testing.T, p toy.Params, parts int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := toy.Write(path, p, parts); err != nil {
		t.Fatalf("write toy model: %v", err)
	}
	return path
}

func TestLoadToyModel(t *testing.T) {
	p := toy.DefaultParams()
	path := writeToy(t, p, 1)

	s, err := model.Load(path, model.LoadOptions{ContextLength: 64, Parts: 1})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	h := s.Hparams
	if h.VocabSize != len(p.Vocab) || h.EmbdDim != p.EmbdDim || h.Heads != p.Heads ||
		h.Layers != p.Layers || h.RotaryDim != p.RotaryDim {
		t.Errorf("hparams = %+v, want params %+v", h, p)
	}
	if h.ContextLength != 64 {
		t.Errorf("context length = %d, want 64", h.ContextLength)
	}
	if s.Vocab.Size() != len(p.Vocab) {
		t.Errorf("vocab size = %d, want %d", s.Vocab.Size(), len(p.Vocab))
	}

	if s.TokEmb.R != len(p.Vocab) || s.TokEmb.C != p.EmbdDim {
		t.Errorf("tok_embeddings shape %dx%d", s.TokEmb.R, s.TokEmb.C)
	}
	if len(s.Layers) != p.Layers {
		t.Fatalf("layers = %d, want %d", len(s.Layers), p.Layers)
	}
	nFF := h.FFNLength()
	l := s.Layers[0]
	if l.W1.R != nFF || l.W1.C != p.EmbdDim || l.W2.R != p.EmbdDim || l.W2.C != nFF {
		t.Errorf("ffn shapes w1 %dx%d w2 %dx%d", l.W1.R, l.W1.C, l.W2.R, l.W2.C)
	}
	if l.AttnNorm.R != 1 || l.AttnNorm.C != p.EmbdDim {
		t.Errorf("attention_norm shape %dx%d", l.AttnNorm.R, l.AttnNorm.C)
	}
}

func TestLoadMultiPartMatchesSinglePart(t *testing.T) {
	p := toy.DefaultParams()
	single := writeToy(t, p, 1)
	split := writeToy(t, p, 2)

	s1, err := model.Load(single, model.LoadOptions{Parts: 1})
	if err != nil {
		t.Fatalf("load single: %v", err)
	}
	s2, err := model.Load(split, model.LoadOptions{Parts: 2})
	if err != nil {
		t.Fatalf("load split: %v", err)
	}

	for _, name := range []string{
		"tok_embeddings.weight",
		"norm.weight",
		"output.weight",
		"layers.0.attention.wq.weight",
		"layers.0.attention.wo.weight",
		"layers.1.feed_forward.w1.weight",
		"layers.1.feed_forward.w2.weight",
	} {
		m1, ok := s1.Tensor(name)
		if !ok {
			t.Fatalf("tensor %s missing from single-part model", name)
		}
		m2, ok := s2.Tensor(name)
		if !ok {
			t.Fatalf("tensor %s missing from split model", name)
		}
		if !bytes.Equal(m1.Raw, m2.Raw) {
			t.Errorf("tensor %s differs between single and split load", name)
		}
	}
}

func TestLoadQuantizedModel(t *testing.T) {
	p := toy.DefaultParams()
	p.EmbdDim = 32
	p.Mult = 32 // keeps the ffn width a whole number of quant blocks
	p.RotaryDim = 8
	p.Precision = model.PrecisionQ4_0
	path := writeToy(t, p, 1)

	s, err := model.Load(path, model.LoadOptions{Parts: 1})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wq, _ := s.Tensor("layers.0.attention.wq.weight")
	if wq.DType.String() != "q4_0" {
		t.Errorf("wq dtype = %v, want q4_0", wq.DType)
	}
	// Norms stay f32 regardless of weight precision.
	if s.Norm.DType.String() != "f32" {
		t.Errorf("norm dtype = %v, want f32", s.Norm.DType)
	}
}

func TestLoadUnknownPartCount(t *testing.T) {
	path := writeToy(t, toy.DefaultParams(), 1)
	_, err := model.Load(path, model.LoadOptions{})
	if !errors.Is(err, model.ErrUnsupportedConfig) {
		t.Fatalf("err = %v, want ErrUnsupportedConfig", err)
	}
	var le *model.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %T, want *LoadError", err)
	}
}

func TestLoadMissingPartFile(t *testing.T) {
	path := writeToy(t, toy.DefaultParams(), 2)
	if err := os.Remove(path + ".1"); err != nil {
		t.Fatal(err)
	}
	_, err := model.Load(path, model.LoadOptions{Parts: 2})
	var le *model.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError for missing part", err)
	}
}

func TestLoadPartCountMismatch(t *testing.T) {
	// A whole-file layout read with a two-part override must fail shape
	// validation rather than load garbage.
	path := writeToy(t, toy.DefaultParams(), 1)
	_, err := model.Load(path, model.LoadOptions{Parts: 2})
	if !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
}

// rawFile builds a weight file byte by byte for malformed-input cases.
type rawFile struct {
	buf bytes.Buffer
}

func (f *rawFile) i32(v int32) { _ = binary.Write(&f.buf, binary.LittleEndian, v) }

func (f *rawFile) str(s string) { f.buf.WriteString(s) }

func (f *rawFile) header(vocab, embd, mult, heads, layers, rot, prec int32) {
	for _, v := range []int32{vocab, embd, mult, heads, layers, rot, prec} {
		f.i32(v)
	}
}

func (f *rawFile) write(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.bin")
	if err := os.WriteFile(path, f.buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBadPrecision(t *testing.T) {
	var f rawFile
	f.header(1, 8, 4, 2, 1, 4, 9)
	f.i32(1)
	f.str("a")
	_, err := model.Load(f.write(t), model.LoadOptions{Parts: 1})
	if !errors.Is(err, model.ErrUnsupportedPrecision) {
		t.Fatalf("err = %v, want ErrUnsupportedPrecision", err)
	}
}

func TestLoadTruncatedVocab(t *testing.T) {
	var f rawFile
	f.header(10, 8, 4, 2, 1, 4, 0)
	f.i32(1)
	f.str("a") // 9 entries short
	_, err := model.Load(f.write(t), model.LoadOptions{Parts: 1})
	if !errors.Is(err, model.ErrVocabSize) {
		t.Fatalf("err = %v, want ErrVocabSize", err)
	}
}

func TestLoadUnknownTensorName(t *testing.T) {
	var f rawFile
	f.header(1, 8, 4, 2, 1, 4, 0)
	f.i32(1)
	f.str("a")
	// One record with a name no model tensor uses.
	f.i32(1)          // n_dims
	f.i32(5)          // name length
	f.i32(0)          // ftype f32
	f.i32(8)          // ne[0]
	f.str("bogus")
	for i := 0; i < 8; i++ {
		f.i32(0)
	}
	_, err := model.Load(f.write(t), model.LoadOptions{Parts: 1})
	if !errors.Is(err, model.ErrUnknownTensor) {
		t.Fatalf("err = %v, want ErrUnknownTensor", err)
	}
}

func TestLoadShapeMismatch(t *testing.T) {
	var f rawFile
	f.header(1, 8, 4, 2, 1, 4, 0)
	f.i32(1)
	f.str("a")
	// norm.weight with the wrong width.
	f.i32(1)
	f.i32(11)
	f.i32(0)
	f.i32(4) // should be 8
	f.str("norm.weight")
	for i := 0; i < 4; i++ {
		f.i32(0)
	}
	_, err := model.Load(f.write(t), model.LoadOptions{Parts: 1})
	if !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestInspect(t *testing.T) {
	p := toy.DefaultParams()
	path := writeToy(t, p, 1)
	info, err := model.Inspect(path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Hparams.EmbdDim != p.EmbdDim || info.VocabSize != len(p.Vocab) {
		t.Errorf("header = %+v", info.Hparams)
	}
	want := 3 + 9*p.Layers
	if len(info.Tensors) != want {
		t.Errorf("tensor records = %d, want %d", len(info.Tensors), want)
	}
	if info.Tensors[0].Name != "tok_embeddings.weight" {
		t.Errorf("first record = %q", info.Tensors[0].Name)
	}
}
