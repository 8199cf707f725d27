package pe

import "fmt"

// Readable is the core's only way to pull bytes off disk. A short read must
// fail rather than silently return a partial slice.
type Readable interface {
	ReadAt(pos int64, size int) ([]byte, error)
}

// Writable is the core's only way to push bytes to disk.
type Writable interface {
	WriteAt(pos int64, data []byte) error
}

// Closeable releases whatever handle backs a Readable/Writable.
type Closeable interface {
	Close() error
}

// RandomAccess is the full boundary a Session needs: read, write, close.
type RandomAccess interface {
	Readable
	Writable
	Closeable
}

// readAtFull reads exactly size bytes at pos from r, wrapping a short read
// or any underlying error in ErrIO.
func readAtFull(r Readable, pos int64, size int) ([]byte, error) {
	data, err := r.ReadAt(pos, size)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at %#x: %w: %v", size, pos, ErrIO, err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("short read at %#x: wanted %d bytes, got %d: %w", pos, size, len(data), ErrIO)
	}
	return data, nil
}

// writeAtFull writes all of data at pos, wrapping any underlying error in
// ErrIO.
func writeAtFull(w Writable, pos int64, data []byte) error {
	if err := w.WriteAt(pos, data); err != nil {
		return fmt.Errorf("write %d bytes at %#x: %w: %v", len(data), pos, ErrIO, err)
	}
	return nil
}
