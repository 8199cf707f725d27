package rw

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MappedFile is a pe.RandomAccess backed by a read-write mmap of the
// output file, selected with exeedit's --mmap flag as an alternative to
// File for large executables.
type MappedFile struct {
	f   *os.File
	m   mmap.MMap
}

// OpenMapped opens path and maps its current full extent for read-write
// access. The mapping does not grow if the file grows after Open.
func OpenMapped(path string) (*MappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedFile{f: f, m: m}, nil
}

// ReadAt implements pe.Readable.
func (mf *MappedFile) ReadAt(pos int64, size int) ([]byte, error) {
	if pos < 0 || pos+int64(size) > int64(len(mf.m)) {
		return nil, fmt.Errorf("read %d bytes at %#x out of range (mapped %d bytes)", size, pos, len(mf.m))
	}
	out := make([]byte, size)
	copy(out, mf.m[pos:pos+int64(size)])
	return out, nil
}

// WriteAt implements pe.Writable.
func (mf *MappedFile) WriteAt(pos int64, data []byte) error {
	if pos < 0 || pos+int64(len(data)) > int64(len(mf.m)) {
		return fmt.Errorf("write %d bytes at %#x out of range (mapped %d bytes)", len(data), pos, len(mf.m))
	}
	copy(mf.m[pos:pos+int64(len(data))], data)
	return nil
}

// Close flushes the mapping and releases it, then closes the file.
func (mf *MappedFile) Close() error {
	if err := mf.m.Flush(); err != nil {
		mf.f.Close()
		return fmt.Errorf("flush mmap: %w", err)
	}
	if err := mf.m.Unmap(); err != nil {
		mf.f.Close()
		return fmt.Errorf("unmap: %w", err)
	}
	return mf.f.Close()
}
