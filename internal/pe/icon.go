package pe

import (
	"encoding/binary"
	"fmt"
)

const (
	icoHeaderSize      = 6
	icoDirEntrySize     = 16
	grpIconHeaderSize  = 6
	grpIconEntrySize   = 14
)

// IconImage is one image inside an .ico file: its ICONDIRENTRY metadata
// plus the raw image bytes (BMP or PNG) that follow the directory.
type IconImage struct {
	Width, Height  uint8
	ColorCount     uint8
	Planes         uint16
	BitCount       uint16
	BytesInRes     uint32
	Data           []byte
}

// ParseIcon decodes a Windows .ico file into its component images.
func ParseIcon(data []byte) ([]IconImage, error) {
	if len(data) < icoHeaderSize {
		return nil, fmt.Errorf("icon file too small: %w", ErrInvalidFormat)
	}
	reserved := binary.LittleEndian.Uint16(data[0:2])
	kind := binary.LittleEndian.Uint16(data[2:4])
	count := binary.LittleEndian.Uint16(data[4:6])
	if reserved != 0 || kind != 1 {
		return nil, fmt.Errorf("not an icon file (reserved=%d type=%d): %w", reserved, kind, ErrInvalidFormat)
	}
	if count == 0 {
		return nil, fmt.Errorf("icon file has no images: %w", ErrInvalidFormat)
	}

	images := make([]IconImage, 0, count)
	for i := 0; i < int(count); i++ {
		off := icoHeaderSize + i*icoDirEntrySize
		if off+icoDirEntrySize > len(data) {
			return nil, fmt.Errorf("icon directory entry %d out of range: %w", i, ErrInvalidFormat)
		}
		e := data[off : off+icoDirEntrySize]
		img := IconImage{
			Width:      e[0],
			Height:     e[1],
			ColorCount: e[2],
			Planes:     binary.LittleEndian.Uint16(e[4:6]),
			BitCount:   binary.LittleEndian.Uint16(e[6:8]),
			BytesInRes: binary.LittleEndian.Uint32(e[8:12]),
		}
		dataOff := binary.LittleEndian.Uint32(e[12:16])
		end := int64(dataOff) + int64(img.BytesInRes)
		if end > int64(len(data)) {
			return nil, fmt.Errorf("icon image %d data out of range: %w", i, ErrInvalidFormat)
		}
		img.Data = append([]byte(nil), data[dataOff:end]...)
		images = append(images, img)
	}
	return images, nil
}

// groupIconPayload builds the RT_GROUP_ICON resource bytes: a 6-byte
// header identical to the .ico header followed by one 14-byte
// GRPICONDIRENTRY per image (the ICONDIRENTRY's first 12 bytes plus the
// RT_ICON resource id this image was assigned, in place of the file
// offset).
func groupIconPayload(images []IconImage, ids []uint16) []byte {
	buf := make([]byte, grpIconHeaderSize+len(images)*grpIconEntrySize)
	binary.LittleEndian.PutUint16(buf[2:4], 1)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(images)))

	for i, img := range images {
		off := grpIconHeaderSize + i*grpIconEntrySize
		e := buf[off : off+grpIconEntrySize]
		e[0] = img.Width
		e[1] = img.Height
		e[2] = img.ColorCount
		e[3] = 0
		binary.LittleEndian.PutUint16(e[4:6], img.Planes)
		binary.LittleEndian.PutUint16(e[6:8], img.BitCount)
		binary.LittleEndian.PutUint32(e[8:12], img.BytesInRes)
		binary.LittleEndian.PutUint16(e[12:14], ids[i])
	}
	return buf
}

// ReplaceIcon removes every existing RT_GROUP_ICON/RT_ICON resource and
// installs images as the new (single) icon group, each under language
// 0x0409 (US English), with fresh sequential resource ids so they never
// collide with anything left in the table.
func ReplaceIcon(table *ResTable, images []IconImage) {
	table.DeleteType(ResInt(ResTypeGroupIcon))
	table.DeleteType(ResInt(ResTypeIcon))

	nextIconID := table.NextID(ResInt(ResTypeIcon))
	ids := make([]uint16, len(images))
	for i := range images {
		ids[i] = nextIconID
		nextIconID++
	}

	for i, img := range images {
		table.Set(ResInt(ResTypeIcon), ResInt(ids[i]), ResInt(0x0409), img.Data)
	}

	groupID := table.NextID(ResInt(ResTypeGroupIcon))
	table.Set(ResInt(ResTypeGroupIcon), ResInt(groupID), ResInt(0x0409), groupIconPayload(images, ids))
}

func idPtr(id ResId) *ResId { return &id }
