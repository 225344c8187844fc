package model

import (
	"fmt"

	"github.com/samcharles93/lantern/internal/tensor"
)

// TensorInfo describes one tensor record as stored in a weight file part.
type TensorInfo struct {
	Name string      `json:"name"`
	Rows int         `json:"rows"`
	Cols int         `json:"cols"`
	Type tensor.DType `json:"-"`

	TypeName string `json:"type"`
	Bytes    int    `json:"bytes"`
}

// FileInfo summarizes a weight file without materializing its tensors.
type FileInfo struct {
	Hparams   Hyperparameters `json:"hparams"`
	Parts     int             `json:"parts"`
	VocabSize int             `json:"vocab_size"`
	Tensors   []TensorInfo    `json:"tensors"`
}

// Inspect reads the first part of a weight file and reports its header and
// tensor records. Models outside the standard partition table report zero
// parts.
func Inspect(path string) (*FileInfo, error) {
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
	if _, err := parseVocab(r, h.VocabSize); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	info := &FileInfo{Hparams: h, VocabSize: h.VocabSize}
	if n, err := h.PartCount(); err == nil {
		info.Parts = n
	}

	for r.remaining() > 0 {
		name, dtype, ne0, ne1, _, err := readRecordHeader(r)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		rowBytes, err := tensor.RowBytes(dtype, ne0)
		if err != nil {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("tensor %q: %w", name, ErrShapeMismatch)}
		}
		if _, err := r.bytes(ne1 * rowBytes); err != nil {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("tensor %q payload: %w", name, err)}
		}
		info.Tensors = append(info.Tensors, TensorInfo{
			Name:     name,
			Rows:     ne1,
			Cols:     ne0,
			Type:     dtype,
			TypeName: dtype.String(),
			Bytes:    ne1 * rowBytes,
		})
	}
	return info, nil
}
