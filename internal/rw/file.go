// Package rw provides the two RandomAccess backends exeedit can open its
// output file with: a plain *os.File, or an mmap'd view of it.
package rw

import (
	"fmt"
	"os"
)

// File is a pe.RandomAccess backed directly by *os.File.ReadAt/WriteAt.
type File struct {
	f *os.File
}

// OpenFile opens path for read-write random access.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{f: f}, nil
}

// ReadAt implements pe.Readable.
func (rf *File) ReadAt(pos int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := rf.f.ReadAt(buf, pos)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteAt implements pe.Writable.
func (rf *File) WriteAt(pos int64, data []byte) error {
	_, err := rf.f.WriteAt(data, pos)
	return err
}

// Close implements pe.Closeable.
func (rf *File) Close() error { return rf.f.Close() }

// Size returns the current file size.
func (rf *File) Size() (int64, error) {
	info, err := rf.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
