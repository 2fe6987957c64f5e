// Package mmfile maps JSON input files into memory for zero-copy
// minification.
package mmfile

import (
	"os"
	"sync"
)

func noop() error { return nil }

func readAll(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, noop, nil
}

// File is a mapped input file. Bytes is valid until Close.
type File struct {
	data  []byte
	once  sync.Once
	unmap func() error
	err   error
}

// Open maps path.
func Open(path string) (*File, error) {
	data, unmap, err := Map(path)
	if err != nil {
		return nil, err
	}
	return &File{data: data, unmap: unmap}, nil
}

// Bytes returns the file contents. The slice must not be modified.
func (f *File) Bytes() []byte { return f.data }

// Len returns the file size.
func (f *File) Len() int { return len(f.data) }

// Close unmaps the file. Further calls return the first result.
func (f *File) Close() error {
	f.once.Do(func() {
		f.err = f.unmap()
		f.data = nil
	})
	return f.err
}
