package model

import (
	"errors"
	"fmt"
)

// Load failure kinds. Every loader error wraps one of these (or an I/O
// error) inside a *LoadError, so callers can branch with errors.Is while
// still seeing the file and tensor context in the message.
var (
	ErrVocabSize            = errors.New("vocabulary size mismatch")
	ErrUnsupportedPrecision = errors.New("unsupported precision code")
	ErrUnknownTensor        = errors.New("unknown tensor name")
	ErrShapeMismatch        = errors.New("tensor shape mismatch")
	ErrUnsupportedConfig    = errors.New("unsupported configuration")
)

// LoadError is the terminal error for a failed model load. No partial model
// is ever returned alongside it.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadErr(path string, format string, args ...any) error {
	return &LoadError{Path: path, Err: fmt.Errorf(format, args...)}
}

// InferenceError reports a failed forward pass.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
