package pe

import (
	"encoding/binary"
	"fmt"
	"iter"
	"unicode/utf16"
)

// Well-known resource type IDs (a subset of the Windows RT_* constants).
const (
	ResTypeIcon      = 3
	ResTypeGroupIcon = 14
	ResTypeVersion   = 16
)

// ResId is either an integer resource id or a Unicode name. All integer ids
// sort before all string ids; within a kind, by natural order.
type ResId struct {
	isName bool
	id     uint16
	name   string
}

// ResInt builds an integer ResId.
func ResInt(id uint16) ResId { return ResId{id: id} }

// ResName builds a string ResId.
func ResName(name string) ResId { return ResId{isName: true, name: name} }

// IsName reports whether this id is a string name rather than an integer.
func (r ResId) IsName() bool { return r.isName }

// Int returns the integer value (only meaningful if !IsName()).
func (r ResId) Int() uint16 { return r.id }

// Name returns the string value (only meaningful if IsName()).
func (r ResId) Name() string { return r.name }

func (r ResId) String() string {
	if r.isName {
		return r.name
	}
	return fmt.Sprintf("#%d", r.id)
}

// resIdLess implements the canonical emit ordering: integers ascending,
// then strings ascending by UTF-16 code unit.
func resIdLess(a, b ResId) bool {
	if a.isName != b.isName {
		return !a.isName
	}
	if !a.isName {
		return a.id < b.id
	}
	au, bu := utf16.Encode([]rune(a.name)), utf16.Encode([]rune(b.name))
	for i := 0; i < len(au) && i < len(bu); i++ {
		if au[i] != bu[i] {
			return au[i] < bu[i]
		}
	}
	return len(au) < len(bu)
}

// ResTableHeader is the 16-byte IMAGE_RESOURCE_DIRECTORY prefix, minus the
// entry counts (which are derived from the entries themselves).
type ResTableHeader struct {
	Characteristics uint32
	Timestamp       uint32
	MajorVersion    uint16
	MinorVersion    uint16
}

// ResTableData is a resource leaf: the payload bytes plus the metadata
// carried alongside it on the wire.
type ResTableData struct {
	Data     []byte
	Codepage uint32
}

// NameEntry is a name-level node: an optional header for its lang-level
// directory, plus the langs themselves in insertion order.
type NameEntry struct {
	Header *ResTableHeader
	order  []ResId
	langs  map[ResId]*ResTableData
}

// TypeEntry is a type-level node: an optional header for its name-level
// directory, plus the names themselves in insertion order.
type TypeEntry struct {
	Header *ResTableHeader
	order  []ResId
	names  map[ResId]*NameEntry
}

// ResTable is the parsed (or under-construction) three-level resource tree:
// type -> name -> lang -> data.
type ResTable struct {
	Header *ResTableHeader
	order  []ResId
	types  map[ResId]*TypeEntry
}

// NewResTable returns an empty resource tree.
func NewResTable() *ResTable {
	return &ResTable{types: make(map[ResId]*TypeEntry)}
}

// ResLeaf is one (type, name, lang) -> data leaf, as produced by Iterate.
type ResLeaf struct {
	Type, Name, Lang ResId
	Data             []byte
	Codepage         uint32
}

// --- high-level operations -------------------------------------------------

// Get returns the data at (typeID, nameID, langID). A nil nameID or langID
// means "the first inserted child at that level".
func (t *ResTable) Get(typeID ResId, nameID, langID *ResId) ([]byte, bool) {
	te := t.types[typeID]
	if te == nil {
		return nil, false
	}

	var ne *NameEntry
	if nameID == nil {
		if len(te.order) == 0 {
			return nil, false
		}
		ne = te.names[te.order[0]]
	} else {
		ne = te.names[*nameID]
	}
	if ne == nil {
		return nil, false
	}

	var data *ResTableData
	if langID == nil {
		if len(ne.order) == 0 {
			return nil, false
		}
		data = ne.langs[ne.order[0]]
	} else {
		data = ne.langs[*langID]
	}
	if data == nil {
		return nil, false
	}
	return data.Data, true
}

// Find returns the key triple of the first leaf under typeID (and, if
// nameID is given, under that name).
func (t *ResTable) Find(typeID ResId, nameID *ResId) (foundName, foundLang ResId, ok bool) {
	te := t.types[typeID]
	if te == nil {
		return ResId{}, ResId{}, false
	}

	tryName := func(ne *NameEntry, nameKey ResId) (ResId, ResId, bool) {
		if len(ne.order) == 0 {
			return ResId{}, ResId{}, false
		}
		return nameKey, ne.order[0], true
	}

	if nameID != nil {
		ne := te.names[*nameID]
		if ne == nil {
			return ResId{}, ResId{}, false
		}
		return tryName(ne, *nameID)
	}

	for _, nameKey := range te.order {
		if n, l, ok := tryName(te.names[nameKey], nameKey); ok {
			return n, l, true
		}
	}
	return ResId{}, ResId{}, false
}

// Set upserts data at (typeID, nameID, langID), creating intermediate
// directories as needed.
func (t *ResTable) Set(typeID, nameID, langID ResId, data []byte) {
	te := t.types[typeID]
	if te == nil {
		te = &TypeEntry{names: make(map[ResId]*NameEntry)}
		t.types[typeID] = te
		t.order = append(t.order, typeID)
	}

	ne := te.names[nameID]
	if ne == nil {
		ne = &NameEntry{langs: make(map[ResId]*ResTableData)}
		te.names[nameID] = ne
		te.order = append(te.order, nameID)
	}

	if _, exists := ne.langs[langID]; !exists {
		ne.order = append(ne.order, langID)
	}
	ne.langs[langID] = &ResTableData{Data: data}
}

// DeleteType removes every resource of the given type.
func (t *ResTable) DeleteType(typeID ResId) {
	if _, ok := t.types[typeID]; !ok {
		return
	}
	delete(t.types, typeID)
	t.order = removeID(t.order, typeID)
}

// DeleteName removes every language of (typeID, nameID).
func (t *ResTable) DeleteName(typeID, nameID ResId) {
	te := t.types[typeID]
	if te == nil {
		return
	}
	if _, ok := te.names[nameID]; !ok {
		return
	}
	delete(te.names, nameID)
	te.order = removeID(te.order, nameID)
	if len(te.names) == 0 {
		t.DeleteType(typeID)
	}
}

// DeleteLang removes a single (typeID, nameID, langID) leaf.
func (t *ResTable) DeleteLang(typeID, nameID, langID ResId) {
	te := t.types[typeID]
	if te == nil {
		return
	}
	ne := te.names[nameID]
	if ne == nil {
		return
	}
	if _, ok := ne.langs[langID]; !ok {
		return
	}
	delete(ne.langs, langID)
	ne.order = removeID(ne.order, langID)
	if len(ne.langs) == 0 {
		t.DeleteName(typeID, nameID)
	}
}

// NextID returns one past the largest integer name under typeID (0 if the
// type has no integer names).
func (t *ResTable) NextID(typeID ResId) uint16 {
	te := t.types[typeID]
	if te == nil {
		return 0
	}
	var max uint16
	seen := false
	for id := range te.names {
		if !id.isName {
			if !seen || id.id > max {
				max = id.id
				seen = true
			}
		}
	}
	if !seen {
		return 0
	}
	return max + 1
}

// Count returns the total number of leaves in the tree.
func (t *ResTable) Count() int {
	n := 0
	for _, te := range t.types {
		for _, ne := range te.names {
			n += len(ne.langs)
		}
	}
	return n
}

// Iterate lazily walks every leaf in store (insertion) order.
func (t *ResTable) Iterate() iter.Seq[ResLeaf] {
	return func(yield func(ResLeaf) bool) {
		for _, typeID := range t.order {
			te := t.types[typeID]
			for _, nameID := range te.order {
				ne := te.names[nameID]
				for _, langID := range ne.order {
					d := ne.langs[langID]
					leaf := ResLeaf{Type: typeID, Name: nameID, Lang: langID, Data: d.Data, Codepage: d.Codepage}
					if !yield(leaf) {
						return
					}
				}
			}
		}
	}
}

func removeID(ids []ResId, target ResId) []ResId {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// --- wire format -------------------------------------------------------

const (
	resDirHeaderSize  = 16
	resDirEntrySize   = 8
	resDataEntrySize  = 16
	highBit           = uint32(1) << 31
)

// ParseResourceTable parses the .rsrc section bytes rooted at section offset
// 0, given the section's virtual (RVA) base address so data entries'
// absolute RVAs can be converted back to section-relative offsets.
func ParseResourceTable(section []byte, virtualBase uint32) (*ResTable, error) {
	t := NewResTable()

	header, entries, err := readDir(section, 0)
	if err != nil {
		return nil, err
	}
	t.Header = header

	for _, e := range entries {
		if !e.isDir {
			return nil, fmt.Errorf("type-level entry is not a directory: %w", ErrInvalidFormat)
		}
		te := &TypeEntry{names: make(map[ResId]*NameEntry)}
		t.types[e.id] = te
		t.order = append(t.order, e.id)

		nameHeader, nameEntries, err := readDir(section, e.offset)
		if err != nil {
			return nil, err
		}
		te.Header = nameHeader

		for _, ne2 := range nameEntries {
			if !ne2.isDir {
				return nil, fmt.Errorf("name-level entry is not a directory: %w", ErrInvalidFormat)
			}
			ne := &NameEntry{langs: make(map[ResId]*ResTableData)}
			te.names[ne2.id] = ne
			te.order = append(te.order, ne2.id)

			langHeader, langEntries, err := readDir(section, ne2.offset)
			if err != nil {
				return nil, err
			}
			ne.Header = langHeader

			for _, le := range langEntries {
				if le.isDir {
					return nil, fmt.Errorf("language-level entry is a directory: %w", ErrInvalidFormat)
				}
				if int(le.offset)+resDataEntrySize > len(section) {
					return nil, fmt.Errorf("data entry out of range: %w", ErrInvalidFormat)
				}
				rec := section[le.offset : le.offset+resDataEntrySize]
				dataRVA := binary.LittleEndian.Uint32(rec[0:4])
				dataSize := binary.LittleEndian.Uint32(rec[4:8])
				codepage := binary.LittleEndian.Uint32(rec[8:12])

				dataOff := dataRVA - virtualBase
				if int64(dataOff)+int64(dataSize) > int64(len(section)) {
					return nil, fmt.Errorf("leaf payload out of range: %w", ErrInvalidFormat)
				}

				ne.langs[le.id] = &ResTableData{
					Data:     section[dataOff : dataOff+dataSize],
					Codepage: codepage,
				}
				ne.order = append(ne.order, le.id)
			}
		}
	}

	return t, nil
}

type dirEntry struct {
	id     ResId
	isDir  bool
	offset uint32
}

// readDir reads one IMAGE_RESOURCE_DIRECTORY table at section-relative
// offset off and returns its header and decoded entries.
func readDir(section []byte, off uint32) (*ResTableHeader, []dirEntry, error) {
	if int64(off)+resDirHeaderSize > int64(len(section)) {
		return nil, nil, fmt.Errorf("directory header out of range at %#x: %w", off, ErrInvalidFormat)
	}
	raw := section[off : off+resDirHeaderSize]
	header := &ResTableHeader{
		Characteristics: binary.LittleEndian.Uint32(raw[0:4]),
		Timestamp:       binary.LittleEndian.Uint32(raw[4:8]),
		MajorVersion:    binary.LittleEndian.Uint16(raw[8:10]),
		MinorVersion:    binary.LittleEndian.Uint16(raw[10:12]),
	}
	numNamed := binary.LittleEndian.Uint16(raw[12:14])
	numID := binary.LittleEndian.Uint16(raw[14:16])
	total := int(numNamed) + int(numID)

	entries := make([]dirEntry, 0, total)
	entriesStart := off + resDirHeaderSize
	for i := 0; i < total; i++ {
		eoff := entriesStart + uint32(i)*resDirEntrySize
		if int64(eoff)+resDirEntrySize > int64(len(section)) {
			return nil, nil, fmt.Errorf("directory entry out of range at %#x: %w", eoff, ErrInvalidFormat)
		}
		raw := section[eoff : eoff+resDirEntrySize]
		rawID := binary.LittleEndian.Uint32(raw[0:4])
		rawPtr := binary.LittleEndian.Uint32(raw[4:8])

		var id ResId
		if rawID&highBit != 0 {
			nameOff := rawID &^ highBit
			name, err := readResourceName(section, nameOff)
			if err != nil {
				return nil, nil, err
			}
			id = ResName(name)
		} else {
			id = ResInt(uint16(rawID))
		}

		entries = append(entries, dirEntry{
			id:     id,
			isDir:  rawPtr&highBit != 0,
			offset: rawPtr &^ highBit,
		})
	}

	return header, entries, nil
}

// readResourceName reads a length-prefixed UTF-16LE name at section-relative
// offset off: a 2-byte code-unit count followed by that many code units.
func readResourceName(section []byte, off uint32) (string, error) {
	if int64(off)+2 > int64(len(section)) {
		return "", fmt.Errorf("resource name length out of range: %w", ErrInvalidFormat)
	}
	n := binary.LittleEndian.Uint16(section[off : off+2])
	start := off + 2
	end := int64(start) + int64(n)*2
	if end > int64(len(section)) {
		return "", fmt.Errorf("resource name data out of range: %w", ErrInvalidFormat)
	}
	units := make([]uint16, n)
	for i := 0; i < int(n); i++ {
		units[i] = binary.LittleEndian.Uint16(section[int(start)+i*2 : int(start)+i*2+2])
	}
	return string(utf16.Decode(units)), nil
}


// --- serialization -------------------------------------------------------

// placedDir is one directory table (type, name, or lang level) with its
// region-A offset and, once known, either its child directories (type/name
// levels) or its leaf data (lang level).
type placedDir struct {
	level    int // 0 = type, 1 = name, 2 = lang
	header   *ResTableHeader
	keys     []ResId
	children []*placedDir    // len(keys); level 0 and 1 only
	leaves   []*ResTableData // len(keys); level 2 only
	offset   uint32
	size     uint32
}

func canonicalKeys(order []ResId) []ResId {
	out := append([]ResId(nil), order...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && resIdLess(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Serialize emits the three-level tree as a contiguous section buffer: all
// directory tables first, then name strings, then data-entry records, then
// payload bytes, each region padded to 16 bytes and each payload padded to
// 8. The dataRVA field of every data-entry record is written as a
// section-relative offset; patchOffsets lists where those fields live so
// the caller can add the section's eventual virtual base once it is known.
func (t *ResTable) Serialize() (buf []byte, patchOffsets []int, err error) {
	root := &placedDir{level: 0, header: t.Header, keys: canonicalKeys(t.order)}
	dirs := []*placedDir{root}
	queue := []*placedDir{root}
	childTypeOf := map[*placedDir]ResId{}
	childNameOf := map[*placedDir][2]ResId{}

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		switch d.level {
		case 0:
			d.children = make([]*placedDir, len(d.keys))
			for i, k := range d.keys {
				te := t.types[k]
				child := &placedDir{level: 1, header: te.Header, keys: canonicalKeys(te.order)}
				d.children[i] = child
				dirs = append(dirs, child)
				queue = append(queue, child)
				childTypeOf[child] = k
			}
		case 1:
			typeKey := childTypeOf[d]
			te := t.types[typeKey]
			d.children = make([]*placedDir, len(d.keys))
			for i, k := range d.keys {
				ne := te.names[k]
				child := &placedDir{level: 2, header: ne.Header, keys: canonicalKeys(ne.order)}
				d.children[i] = child
				dirs = append(dirs, child)
				queue = append(queue, child)
				childNameOf[child] = [2]ResId{typeKey, k}
			}
		case 2:
			typeName := childNameOf[d]
			ne := t.types[typeName[0]].names[typeName[1]]
			d.leaves = make([]*ResTableData, len(d.keys))
			for i, k := range d.keys {
				d.leaves[i] = ne.langs[k]
			}
		}
	}

	// Pass 1: region-A sizes and offsets, in BFS placement order.
	for _, d := range dirs {
		d.size = resDirHeaderSize + uint32(len(d.keys))*resDirEntrySize
	}
	var cursor uint32
	for _, d := range dirs {
		d.offset = cursor
		cursor += d.size
	}
	regionAStart := uint32(0)
	regionASize := cursor
	regionBStart := Align(regionAStart+regionASize, 16)

	// Pass 2: region B (names), region C (data-entry records) and region D
	// (payloads), walked in the same order so placement is deterministic.
	var namesBuf, dataBuf, payloadBuf []byte
	type entrySpec struct {
		dir       *placedDir
		index     int
		key       ResId
		nameLocal uint32 // valid if key.IsName()
		isChild   bool
		childOff  uint32 // valid if isChild
		dataLocal uint32 // valid if !isChild (offset within region C)
	}
	var specs []entrySpec

	for _, d := range dirs {
		for i, k := range d.keys {
			spec := entrySpec{dir: d, index: i, key: k}

			if k.IsName() {
				units := utf16.Encode([]rune(k.Name()))
				spec.nameLocal = uint32(len(namesBuf))
				lenBytes := make([]byte, 2)
				binary.LittleEndian.PutUint16(lenBytes, uint16(len(units)))
				namesBuf = append(namesBuf, lenBytes...)
				for _, u := range units {
					b := make([]byte, 2)
					binary.LittleEndian.PutUint16(b, u)
					namesBuf = append(namesBuf, b...)
				}
			}

			if d.level == 2 {
				data := d.leaves[i]
				spec.isChild = false
				spec.dataLocal = uint32(len(dataBuf))

				rec := make([]byte, resDataEntrySize)
				binary.LittleEndian.PutUint32(rec[4:8], uint32(len(data.Data)))
				binary.LittleEndian.PutUint32(rec[8:12], data.Codepage)
				dataBuf = append(dataBuf, rec...)

				if pad := Align(uint32(len(payloadBuf)), 8) - uint32(len(payloadBuf)); pad > 0 {
					payloadBuf = append(payloadBuf, make([]byte, pad)...)
				}
				payloadLocal := uint32(len(payloadBuf))
				payloadBuf = append(payloadBuf, data.Data...)

				binary.LittleEndian.PutUint32(dataBuf[spec.dataLocal:spec.dataLocal+4], payloadLocal)
			} else {
				spec.isChild = true
				spec.childOff = d.children[i].offset
			}

			specs = append(specs, spec)
		}
	}

	regionCStart := Align(regionBStart+uint32(len(namesBuf)), 16)
	regionDStart := Align(regionCStart+uint32(len(dataBuf)), 16)

	total := regionDStart + uint32(len(payloadBuf))
	buf = make([]byte, total)

	for _, d := range dirs {
		raw := buf[d.offset : d.offset+resDirHeaderSize]
		if d.header != nil {
			binary.LittleEndian.PutUint32(raw[0:4], d.header.Characteristics)
			binary.LittleEndian.PutUint32(raw[4:8], d.header.Timestamp)
			binary.LittleEndian.PutUint16(raw[8:10], d.header.MajorVersion)
			binary.LittleEndian.PutUint16(raw[10:12], d.header.MinorVersion)
		}
		var numNamed, numID uint16
		for _, k := range d.keys {
			if k.IsName() {
				numNamed++
			} else {
				numID++
			}
		}
		binary.LittleEndian.PutUint16(raw[12:14], numNamed)
		binary.LittleEndian.PutUint16(raw[14:16], numID)
	}

	for _, s := range specs {
		entryOff := s.dir.offset + resDirHeaderSize + uint32(s.index)*resDirEntrySize
		entry := buf[entryOff : entryOff+resDirEntrySize]

		var idField uint32
		if s.key.IsName() {
			idField = highBit | (regionBStart + s.nameLocal)
		} else {
			idField = uint32(s.key.Int())
		}
		binary.LittleEndian.PutUint32(entry[0:4], idField)

		if s.isChild {
			binary.LittleEndian.PutUint32(entry[4:8], highBit|s.childOff)
		} else {
			binary.LittleEndian.PutUint32(entry[4:8], regionCStart+s.dataLocal)
		}
	}

	copy(buf[regionBStart:], namesBuf)
	copy(buf[regionCStart:], dataBuf)
	copy(buf[regionDStart:], payloadBuf)

	// Patch each data-entry record's dataRVA field (currently holding an
	// offset within the payload region) to be relative to the whole buffer.
	for _, s := range specs {
		if s.isChild {
			continue
		}
		off := regionCStart + s.dataLocal
		payloadLocal := binary.LittleEndian.Uint32(buf[off : off+4])
		binary.LittleEndian.PutUint32(buf[off:off+4], regionDStart+payloadLocal)
		patchOffsets = append(patchOffsets, int(off))
	}

	return buf, patchOffsets, nil
}
