package model

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// fileData exposes a weight file as one byte slice. Files are mapped
// read-only when the platform allows it and read into memory otherwise.
type fileData struct {
	data   []byte
	mapped bool
}

func openFileData(path string) (*fileData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return &fileData{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return &fileData{data: data, mapped: true}, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &fileData{data: buf}, nil
}

func (fd *fileData) Close() error {
	if fd.mapped && fd.data != nil {
		err := unix.Munmap(fd.data)
		fd.data = nil
		return err
	}
	fd.data = nil
	return nil
}

// byteReader is a bounds-checked cursor over a file image. Every underflow
// surfaces as io.ErrUnexpectedEOF rather than a panic.
type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) remaining() int { return len(r.data) - r.off }

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("read %d bytes at offset %d of %d: %w",
			n, r.off, len(r.data), io.ErrUnexpectedEOF)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *byteReader) i32() (int32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24), nil
}
