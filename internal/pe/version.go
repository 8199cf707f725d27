package pe

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

const (
	fixedFileInfoSignature = 0xFEEF04BD
	fixedFileInfoSize      = 52
	defaultLangCodepage    = "040904b0"
	defaultTranslationLang = 0x0409
	defaultTranslationCP   = 0x04B0
)

// VersionBlock is one node of the VS_VERSIONINFO tree: VS_VERSIONINFO
// itself, StringFileInfo, a string table, VarFileInfo, or a leaf key/value
// pair. Value holds the raw bytes of a binary value (wType==0, e.g.
// FIXEDFILEINFO); String holds a text value (wType==1) already decoded from
// UTF-16 to a Go string; Children holds any nested blocks.
type VersionBlock struct {
	Key      string
	WType    uint16
	Value    []byte
	String   string
	Children []*VersionBlock
}

// FixedFileInfo is the decoded 52-byte VS_FIXEDFILEINFO record.
type FixedFileInfo struct {
	Signature        uint32
	StrucVersion     uint32
	FileVersionMS    uint32
	FileVersionLS    uint32
	ProductVersionMS uint32
	ProductVersionLS uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateMS       uint32
	FileDateLS       uint32
}

// FileVersion packs (major, minor, patch, build) into the MS/LS word pairs
// FIXEDFILEINFO uses: MS = major<<16|minor, LS = patch<<16|build.
func FileVersion(major, minor, patch, build uint16) (ms, ls uint32) {
	return uint32(major)<<16 | uint32(minor), uint32(patch)<<16 | uint32(build)
}

// ParseVersionInfo decodes a VS_VERSIONINFO resource leaf.
func ParseVersionInfo(data []byte) (*VersionBlock, error) {
	block, _, err := parseVersionBlock(data, 0)
	if err != nil {
		return nil, err
	}
	return block, nil
}

// parseVersionBlock decodes one variable-length block starting at off,
// returning the block and the offset just past its declared length (no
// trailing padding; callers align the next offset themselves).
func parseVersionBlock(data []byte, off int) (*VersionBlock, int, error) {
	start := off
	if off+6 > len(data) {
		return nil, 0, fmt.Errorf("version block header out of range: %w", ErrInvalidFormat)
	}
	length := int(binary.LittleEndian.Uint16(data[off : off+2]))
	valueLength := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
	wType := binary.LittleEndian.Uint16(data[off+4 : off+6])
	if length < 6 || start+length > len(data) {
		return nil, 0, fmt.Errorf("version block length %d out of range: %w", length, ErrInvalidFormat)
	}
	end := start + length

	off += 6
	key, next, err := readVersionKey(data, off, end)
	if err != nil {
		return nil, 0, err
	}
	off = alignTo4(next, start)

	block := &VersionBlock{Key: key, WType: wType}

	switch {
	case wType == 0 && valueLength > 0:
		if off+valueLength > end && off+valueLength > len(data) {
			return nil, 0, fmt.Errorf("version value out of range: %w", ErrInvalidFormat)
		}
		valEnd := off + valueLength
		if valEnd > len(data) {
			return nil, 0, fmt.Errorf("version value out of range: %w", ErrInvalidFormat)
		}
		block.Value = append([]byte(nil), data[off:valEnd]...)
		off = valEnd
	case wType == 1 && valueLength > 0:
		valEnd := off + valueLength*2
		if valEnd > len(data) {
			return nil, 0, fmt.Errorf("version string value out of range: %w", ErrInvalidFormat)
		}
		block.String = decodeUTF16LE(data[off:valEnd])
		off = valEnd
	}
	off = alignTo4(off, start)

	for off < end {
		child, next, err := parseVersionBlock(data, off)
		if err != nil {
			return nil, 0, err
		}
		block.Children = append(block.Children, child)
		off = alignTo4(next, start)
	}

	return block, end, nil
}

// alignTo4 rounds off up to the next 4-byte boundary measured from base.
func alignTo4(off, base int) int {
	rel := off - base
	rel = int(Align(uint32(rel), 4))
	return base + rel
}

// readVersionKey reads a NUL-terminated UTF-16LE string starting at off (up
// to limit) and returns the decoded key plus the offset just past the NUL.
func readVersionKey(data []byte, off, limit int) (string, int, error) {
	var units []uint16
	i := off
	for {
		if i+2 > limit {
			return "", 0, fmt.Errorf("version key not NUL-terminated: %w", ErrInvalidFormat)
		}
		u := binary.LittleEndian.Uint16(data[i : i+2])
		i += 2
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), i, nil
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	// trim a trailing NUL terminator often included in valueLength.
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}

// FixedFileInfo decodes the block's Value as a VS_FIXEDFILEINFO record. It
// returns false if the block isn't a well-formed FIXEDFILEINFO leaf.
func (b *VersionBlock) FixedFileInfo() (FixedFileInfo, bool) {
	var f FixedFileInfo
	if len(b.Value) < fixedFileInfoSize {
		return f, false
	}
	v := b.Value
	f.Signature = binary.LittleEndian.Uint32(v[0:4])
	if f.Signature != fixedFileInfoSignature {
		return f, false
	}
	f.StrucVersion = binary.LittleEndian.Uint32(v[4:8])
	f.FileVersionMS = binary.LittleEndian.Uint32(v[8:12])
	f.FileVersionLS = binary.LittleEndian.Uint32(v[12:16])
	f.ProductVersionMS = binary.LittleEndian.Uint32(v[16:20])
	f.ProductVersionLS = binary.LittleEndian.Uint32(v[20:24])
	f.FileFlagsMask = binary.LittleEndian.Uint32(v[24:28])
	f.FileFlags = binary.LittleEndian.Uint32(v[28:32])
	f.FileOS = binary.LittleEndian.Uint32(v[32:36])
	f.FileType = binary.LittleEndian.Uint32(v[36:40])
	f.FileSubtype = binary.LittleEndian.Uint32(v[40:44])
	f.FileDateMS = binary.LittleEndian.Uint32(v[44:48])
	f.FileDateLS = binary.LittleEndian.Uint32(v[48:52])
	return f, true
}

// setFixedFileInfo overwrites just the file/product version words of an
// existing FIXEDFILEINFO block in place.
func (b *VersionBlock) setFixedFileInfo(f FixedFileInfo) {
	if len(b.Value) < fixedFileInfoSize {
		b.Value = make([]byte, fixedFileInfoSize)
		binary.LittleEndian.PutUint32(b.Value[0:4], fixedFileInfoSignature)
		binary.LittleEndian.PutUint32(b.Value[4:8], 0x00010000)
	}
	v := b.Value
	binary.LittleEndian.PutUint32(v[8:12], f.FileVersionMS)
	binary.LittleEndian.PutUint32(v[12:16], f.FileVersionLS)
	binary.LittleEndian.PutUint32(v[16:20], f.ProductVersionMS)
	binary.LittleEndian.PutUint32(v[20:24], f.ProductVersionLS)
}

// child finds the first direct child with the given key.
func (b *VersionBlock) child(key string) *VersionBlock {
	for _, c := range b.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// ensureChild finds or appends a direct child with the given key.
func (b *VersionBlock) ensureChild(key string, wType uint16) *VersionBlock {
	if c := b.child(key); c != nil {
		return c
	}
	c := &VersionBlock{Key: key, WType: wType}
	b.Children = append(b.Children, c)
	return c
}

// GetString reads a string-table value under StringFileInfo -> (first
// table) -> name.
func (b *VersionBlock) GetString(name string) (string, bool) {
	sfi := b.child("StringFileInfo")
	if sfi == nil || len(sfi.Children) == 0 {
		return "", false
	}
	table := sfi.Children[0]
	entry := table.child(name)
	if entry == nil {
		return "", false
	}
	return entry.String, true
}

// GetFixed returns the decoded VS_FIXEDFILEINFO record for this
// VS_VERSIONINFO block.
func (b *VersionBlock) GetFixed() (FixedFileInfo, bool) {
	return b.FixedFileInfo()
}

// SetString upserts a string-table value under StringFileInfo -> (first
// table, created with the default language/codepage if absent) -> name.
func (b *VersionBlock) SetString(name, value string) {
	sfi := b.ensureChild("StringFileInfo", 1)
	var table *VersionBlock
	if len(sfi.Children) == 0 {
		table = &VersionBlock{Key: defaultLangCodepage, WType: 1}
		sfi.Children = append(sfi.Children, table)
	} else {
		table = sfi.Children[0]
	}
	entry := table.child(name)
	if entry == nil {
		entry = &VersionBlock{Key: name, WType: 1}
		table.Children = append(table.Children, entry)
	}
	entry.String = value
}

// DeleteString removes a string-table value if present.
func (b *VersionBlock) DeleteString(name string) {
	sfi := b.child("StringFileInfo")
	if sfi == nil {
		return
	}
	for _, table := range sfi.Children {
		out := table.Children[:0]
		for _, e := range table.Children {
			if e.Key != name {
				out = append(out, e)
			}
		}
		table.Children = out
	}
}

// EnsureTranslation makes sure a VarFileInfo -> Translation block exists,
// defaulting to US English / Unicode codepage.
func (b *VersionBlock) EnsureTranslation() {
	vfi := b.ensureChild("VarFileInfo", 1)
	if vfi.child("Translation") != nil {
		return
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], defaultTranslationLang)
	binary.LittleEndian.PutUint16(buf[2:4], defaultTranslationCP)
	vfi.Children = append(vfi.Children, &VersionBlock{Key: "Translation", WType: 0, Value: buf})
}

// NewVersionInfo synthesizes a VS_VERSIONINFO block whose FIXEDFILEINFO
// record holds only its signature and structure version (all other fields
// zero), with a default VarFileInfo -> Translation entry and no strings,
// ready for SetString/setFixedFileInfo calls.
func NewVersionInfo() *VersionBlock {
	fixed := make([]byte, fixedFileInfoSize)
	binary.LittleEndian.PutUint32(fixed[0:4], fixedFileInfoSignature)
	binary.LittleEndian.PutUint32(fixed[4:8], 0x00010000)
	root := &VersionBlock{Key: "VS_VERSION_INFO", WType: 0, Value: fixed}
	root.EnsureTranslation()
	return root
}

// Serialize re-encodes the block tree to VS_VERSIONINFO wire format.
func (b *VersionBlock) Serialize() []byte {
	return serializeVersionBlock(b)
}

func serializeVersionBlock(b *VersionBlock) []byte {
	keyBytes := encodeVersionKey(b.Key)
	valueLength := 0
	var valueBytes []byte
	switch {
	case b.WType == 1 && b.String != "":
		units := utf16.Encode([]rune(b.String))
		units = append(units, 0)
		valueBytes = make([]byte, len(units)*2)
		for i, u := range units {
			binary.LittleEndian.PutUint16(valueBytes[i*2:i*2+2], u)
		}
		valueLength = len(units)
	case b.WType == 0 && len(b.Value) > 0:
		valueBytes = append([]byte(nil), b.Value...)
		valueLength = len(valueBytes)
	}

	// Padding is measured from the start of the block (header included),
	// which is how parseVersionBlock locates the value and children.
	out := make([]byte, 6)
	out = append(out, keyBytes...)
	out = padTo4(out)
	out = append(out, valueBytes...)
	out = padTo4(out)

	for _, c := range b.Children {
		out = append(out, serializeVersionBlock(c)...)
	}

	binary.LittleEndian.PutUint16(out[0:2], uint16(len(out)))
	binary.LittleEndian.PutUint16(out[2:4], uint16(valueLength))
	binary.LittleEndian.PutUint16(out[4:6], b.WType)
	return padTo4(out)
}

func encodeVersionKey(key string) []byte {
	units := utf16.Encode([]rune(key))
	units = append(units, 0)
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}

func padTo4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
