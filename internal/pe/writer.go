package pe

import (
	"encoding/binary"
	"fmt"
)

// WriteResourceSection serializes table and writes it into the section at
// sectionIndex, then updates that section's VirtualSize and the
// IMAGE_DIRECTORY_ENTRY_RESOURCE data-directory entry to match. It refuses
// to grow past the section's existing raw (on-disk) allocation: reflowing
// the section table to make room for a bigger .rsrc is out of scope.
func WriteResourceSection(h *ExeHeader, w Writable, sectionIndex int, table *ResTable) error {
	if sectionIndex < 0 || sectionIndex >= len(h.SectionTable) {
		return fmt.Errorf("section index %d out of range: %w", sectionIndex, ErrInvalidFormat)
	}
	section := &h.SectionTable[sectionIndex]

	if table.Count() == 0 {
		return fmt.Errorf("edit leaves section %q's resource directory empty: %w", section.Name, ErrUnsupported)
	}

	buf, patchOffsets, err := table.Serialize()
	if err != nil {
		return fmt.Errorf("serialize resource table: %w", err)
	}
	if uint32(len(buf)) > section.File.Size || uint32(len(buf)) > section.Virtual.Size {
		return fmt.Errorf("resource table (%d bytes) exceeds section %q's allocation (raw %d, virtual %d bytes): %w",
			len(buf), section.Name, section.File.Size, section.Virtual.Size, ErrUnsupported)
	}

	for _, off := range patchOffsets {
		rva := binary.LittleEndian.Uint32(buf[off : off+4])
		binary.LittleEndian.PutUint32(buf[off:off+4], rva+section.Virtual.Start)
	}

	padded := make([]byte, section.File.Size)
	copy(padded, buf)
	if err := writeAtFull(w, int64(section.File.Start), padded); err != nil {
		return err
	}

	h.setSectionSizes(sectionIndex, uint32(len(buf)), section.File.Size)
	h.setDataDirectorySize(DirectoryResource, uint32(len(buf)))
	return nil
}
