package model

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/samcharles93/lantern/internal/logger"
	"github.com/samcharles93/lantern/internal/tensor"
)

const (
	// DefaultContextLength is the key/value cache length used when the
	// caller does not pick one.
	DefaultContextLength = 512

	headerBytes = 7 * 4
)

// LoadOptions configure a model load.
type LoadOptions struct {
	// ContextLength sets the attention window the model is prepared for.
	// Zero means DefaultContextLength.
	ContextLength int

	// Parts overrides the number of weight file parts. Zero derives the
	// count from the embedding dimension; models whose dimension is not in
	// the standard table must set this explicitly.
	Parts int

	Logger logger.Logger
}

// Load reads a multi-part weight file rooted at path and returns a fully
// populated model. Any failure returns a *LoadError and no model.
func Load(path string, opts LoadOptions) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	if opts.ContextLength == 0 {
		opts.ContextLength = DefaultContextLength
	}

	fd, err := openFileData(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer fd.Close()

	r := &byteReader{data: fd.data}
	h, err := parseHeader(r)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	h.ContextLength = opts.ContextLength
	if err := h.validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	words, err := parseVocab(r, h.VocabSize)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	vocabEnd := r.off

	parts := opts.Parts
	if parts == 0 {
		if parts, err = h.PartCount(); err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
	}

	log.Info("loading model",
		"path", path,
		"vocab", h.VocabSize,
		"embd", h.EmbdDim,
		"heads", h.Heads,
		"layers", h.Layers,
		"precision", h.Precision.String(),
		"parts", parts)

	store, err := newStore(h, newVocabulary(words))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	seen := make(map[string]int, len(store.byName))
	if err := loadPart(store, r, 0, parts, seen, log); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	header0 := fd.data[:vocabEnd]
	for p := 1; p < parts; p++ {
		partPath := fmt.Sprintf("%s.%d", path, p)
		if err := loadPartFile(store, partPath, header0, p, parts, seen, log); err != nil {
			return nil, &LoadError{Path: partPath, Err: err}
		}
	}

	for name := range store.byName {
		if seen[name] != parts {
			return nil, loadErr(path, "tensor %s present in %d of %d parts",
				name, seen[name], parts)
		}
	}

	log.Info("model loaded", "weight_bytes", store.weightBytes)
	return store, nil
}

func loadPartFile(s *Store, path string, header0 []byte, part, parts int, seen map[string]int, log logger.Logger) error {
	fd, err := openFileData(path)
	if err != nil {
		return err
	}
	defer fd.Close()

	if len(fd.data) < len(header0) || !bytes.Equal(fd.data[:len(header0)], header0) {
		return fmt.Errorf("part header differs from first part: %w", ErrUnsupportedConfig)
	}
	r := &byteReader{data: fd.data, off: len(header0)}
	return loadPart(s, r, part, parts, seen, log)
}

func parseHeader(r *byteReader) (Hyperparameters, error) {
	var vals [7]int32
	for i := range vals {
		v, err := r.i32()
		if err != nil {
			return Hyperparameters{}, fmt.Errorf("header: %w", err)
		}
		vals[i] = v
	}
	return Hyperparameters{
		VocabSize: int(vals[0]),
		EmbdDim:   int(vals[1]),
		Mult:      int(vals[2]),
		Heads:     int(vals[3]),
		Layers:    int(vals[4]),
		RotaryDim: int(vals[5]),
		Precision: Precision(vals[6]),
	}, nil
}

func parseVocab(r *byteReader, size int) ([]string, error) {
	words := make([]string, 0, size)
	for i := 0; i < size; i++ {
		n, err := r.i32()
		if err != nil {
			return nil, fmt.Errorf("vocab entry %d of %d: %w", i, size, ErrVocabSize)
		}
		if n < 0 {
			return nil, fmt.Errorf("vocab entry %d has negative length %d: %w", i, n, ErrVocabSize)
		}
		b, err := r.bytes(int(n))
		if err != nil {
			return nil, fmt.Errorf("vocab entry %d of %d: %w", i, size, ErrVocabSize)
		}
		words = append(words, string(b))
	}
	return words, nil
}

type splitKind int

const (
	splitColumn splitKind = iota
	splitRow
)

// splitFor decides how a two-dimensional tensor is partitioned across
// parts. First matching rule wins.
func splitFor(name string) splitKind {
	switch {
	case strings.Contains(name, "tok_embeddings"):
		return splitColumn
	case strings.Contains(name, "layers"):
		if strings.Contains(name, "attention.wo.weight") ||
			strings.Contains(name, "feed_forward.w2.weight") {
			return splitColumn
		}
		return splitRow
	default:
		return splitRow
	}
}

// loadPart streams tensor records from r until end of file, placing each
// payload into its slot of the destination tensor.
func loadPart(s *Store, r *byteReader, part, parts int, seen map[string]int, log logger.Logger) error {
	for r.remaining() > 0 {
		name, dtype, ne0, ne1, oneDim, err := readRecordHeader(r)
		if err != nil {
			return err
		}

		m, ok := s.byName[name]
		if !ok {
			return fmt.Errorf("tensor %q: %w", name, ErrUnknownTensor)
		}
		if dtype != m.DType {
			return fmt.Errorf("tensor %q stored as %v, expected %v: %w",
				name, dtype, m.DType, ErrShapeMismatch)
		}

		rowBytes, err := tensor.RowBytes(dtype, ne0)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, ErrShapeMismatch)
		}
		payload, err := r.bytes(ne1 * rowBytes)
		if err != nil {
			return fmt.Errorf("tensor %q payload: %w", name, err)
		}

		if err := placeTensor(m, name, payload, ne0, ne1, oneDim, part, parts); err != nil {
			return err
		}
		seen[name]++
		log.Debug("tensor loaded", "name", name, "ne0", ne0, "ne1", ne1, "dtype", dtype.String(), "part", part)
	}
	return nil
}

func readRecordHeader(r *byteReader) (name string, dtype tensor.DType, ne0, ne1 int, oneDim bool, err error) {
	nDims, err := r.i32()
	if err != nil {
		return "", 0, 0, 0, false, fmt.Errorf("record: %w", err)
	}
	if nDims != 1 && nDims != 2 {
		return "", 0, 0, 0, false, fmt.Errorf("record with %d dimensions: %w", nDims, ErrShapeMismatch)
	}
	nameLen, err := r.i32()
	if err != nil {
		return "", 0, 0, 0, false, fmt.Errorf("record: %w", err)
	}
	ftype, err := r.i32()
	if err != nil {
		return "", 0, 0, 0, false, fmt.Errorf("record: %w", err)
	}
	dtype, err = Precision(ftype).DType()
	if err != nil {
		return "", 0, 0, 0, false, err
	}

	ne := [2]int{1, 1}
	for i := 0; i < int(nDims); i++ {
		v, err := r.i32()
		if err != nil {
			return "", 0, 0, 0, false, fmt.Errorf("record shape: %w", err)
		}
		if v <= 0 {
			return "", 0, 0, 0, false, fmt.Errorf("record dimension %d: %w", v, ErrShapeMismatch)
		}
		ne[i] = int(v)
	}
	nb, err := r.bytes(int(nameLen))
	if err != nil {
		return "", 0, 0, 0, false, fmt.Errorf("record name: %w", err)
	}
	return string(nb), dtype, ne[0], ne[1], nDims == 1, nil
}

// placeTensor copies one part's payload into the destination matrix.
// One-dimensional tensors appear whole in every part; two-dimensional
// tensors carry a column or row slice of the full shape.
func placeTensor(m *tensor.Mat, name string, payload []byte, ne0, ne1 int, oneDim bool, part, parts int) error {
	fullRow, _ := tensor.RowBytes(m.DType, m.C)

	if oneDim {
		if m.R != 1 || ne0 != m.C || ne1 != 1 {
			return fmt.Errorf("tensor %q part shape %dx%d, expected 1x%d: %w",
				name, ne1, ne0, m.C, ErrShapeMismatch)
		}
		copy(m.Raw, payload)
		return nil
	}

	if parts == 1 {
		if ne0 != m.C || ne1 != m.R {
			return fmt.Errorf("tensor %q shape %dx%d, expected %dx%d: %w",
				name, ne1, ne0, m.R, m.C, ErrShapeMismatch)
		}
		copy(m.Raw, payload)
		return nil
	}

	switch splitFor(name) {
	case splitColumn:
		if m.C%parts != 0 || ne0 != m.C/parts || ne1 != m.R {
			return fmt.Errorf("tensor %q part shape %dx%d, expected %dx%d column slice of %dx%d: %w",
				name, ne1, ne0, m.R, m.C/parts, m.R, m.C, ErrShapeMismatch)
		}
		partRow, err := tensor.RowBytes(m.DType, ne0)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, ErrShapeMismatch)
		}
		for row := 0; row < m.R; row++ {
			dst := m.Raw[row*fullRow+part*partRow:]
			copy(dst[:partRow], payload[row*partRow:(row+1)*partRow])
		}
	case splitRow:
		if m.R%parts != 0 || ne0 != m.C || ne1 != m.R/parts {
			return fmt.Errorf("tensor %q part shape %dx%d, expected %dx%d row slice of %dx%d: %w",
				name, ne1, ne0, m.R/parts, m.C, m.R, m.C, ErrShapeMismatch)
		}
		off := part * ne1 * fullRow
		copy(m.Raw[off:off+len(payload)], payload)
	}
	return nil
}
