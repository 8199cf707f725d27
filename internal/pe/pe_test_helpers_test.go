package pe

import "fmt"

// memRW is an in-memory RandomAccess fake backed by a fixed-size byte slice,
// standing in for an *os.File/mmap.MMap in tests that need read-write
// round trips without touching disk.
type memRW struct {
	buf    []byte
	closed bool
}

func newMemRW(size int) *memRW {
	return &memRW{buf: make([]byte, size)}
}

func (m *memRW) ReadAt(pos int64, size int) ([]byte, error) {
	if pos < 0 || pos+int64(size) > int64(len(m.buf)) {
		return nil, fmt.Errorf("out of range: pos=%d size=%d len=%d", pos, size, len(m.buf))
	}
	out := make([]byte, size)
	copy(out, m.buf[pos:pos+int64(size)])
	return out, nil
}

func (m *memRW) WriteAt(pos int64, data []byte) error {
	if pos < 0 || pos+int64(len(data)) > int64(len(m.buf)) {
		return fmt.Errorf("out of range: pos=%d size=%d len=%d", pos, len(data), len(m.buf))
	}
	copy(m.buf[pos:], data)
	return nil
}

func (m *memRW) Close() error {
	m.closed = true
	return nil
}

// minimalPE describes the layout constants of a synthetic PE32 image built
// by buildMinimalPE, so tests can compute expected offsets without
// recomputing the arithmetic themselves.
type minimalPE struct {
	peOffset         int64
	sectionTableOff  int64
	dataDirResOffset int64
	sectionRawStart  uint32
	sectionRawSize   uint32
	sectionVirtStart uint32
	sizeOfHeaders    uint32
	totalSize        int64
}

// buildMinimalPE synthesizes the smallest PE32 image ReadHeader will
// accept: a DOS/PE/COFF/optional header with one data directory slot
// pointing at the resource section, and a single ".rsrc" section with
// resData as its raw contents (zero-padded to sectionRawSize).
func buildMinimalPE(resData []byte, sectionRawSize uint32) ([]byte, minimalPE) {
	const (
		peOffset         = 0x80
		fileAlignment    = 0x200
		sectionAlignment = 0x1000
		sizeOfOptHeader  = 224 // 96 (pre-data-dir fields) + 16*8 (data directories)
	)
	coffOffset := int64(peOffset) + 4
	optOffset := coffOffset + 20
	dataDirOffset := optOffset + ohDataDirPE32Off
	sectionTableOff := optOffset + sizeOfOptHeader
	endOfSectionTable := uint32(sectionTableOff) + sectionEntrySize
	sizeOfHeaders := Align(endOfSectionTable, fileAlignment)

	sectionRawStart := sizeOfHeaders
	sectionVirtStart := uint32(sectionAlignment)
	totalSize := int64(sectionRawStart + sectionRawSize)

	bufSize := totalSize
	if bufSize < headerPrefixSize {
		bufSize = headerPrefixSize
	}
	buf := make([]byte, bufSize)
	copy(buf[0:2], "MZ")
	putUint32(buf, dosPEOffsetOffset, uint32(peOffset))
	copy(buf[peOffset:peOffset+4], "PE\x00\x00")

	// COFF header.
	putUint16(buf, coffOffset+2, 1) // NumberOfSections
	putUint16(buf, coffOffset+16, sizeOfOptHeader)

	// Optional header.
	putUint16(buf, optOffset+ohMagicOff, magicPE32)
	putUint32(buf, optOffset+ohSectionAlignmentOff, sectionAlignment)
	putUint32(buf, optOffset+ohFileAlignmentOff, fileAlignment)
	putUint32(buf, optOffset+ohSizeOfHeadersOff, sizeOfHeaders)
	putUint16(buf, optOffset+ohSubsystemOff, 3) // console, a plausible default

	// Data directory slot 2 (resource), pointing at the section's start.
	dataDirResOffset := dataDirOffset + DirectoryResource*dataDirEntrySize
	putUint32(buf, dataDirResOffset, sectionVirtStart)
	putUint32(buf, dataDirResOffset+4, uint32(len(resData)))

	// Section table: one ".rsrc" entry.
	sec := buf[sectionTableOff : sectionTableOff+sectionEntrySize]
	copy(sec[0:8], ".rsrc")
	putUint32(sec, 8, sectionRawSize)    // VirtualSize
	putUint32(sec, 12, sectionVirtStart) // VirtualAddress
	putUint32(sec, 16, sectionRawSize)   // SizeOfRawData
	putUint32(sec, 20, sectionRawStart)  // PointerToRawData

	copy(buf[sectionRawStart:], resData)

	return buf, minimalPE{
		peOffset:         peOffset,
		sectionTableOff:  sectionTableOff,
		dataDirResOffset: dataDirResOffset,
		sectionRawStart:  sectionRawStart,
		sectionRawSize:   sectionRawSize,
		sectionVirtStart: sectionVirtStart,
		sizeOfHeaders:    sizeOfHeaders,
		totalSize:        int64(len(buf)),
	}
}

func putUint32(buf []byte, off int64, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func putUint16(buf []byte, off int64, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}
