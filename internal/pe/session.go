package pe

import "fmt"

// VersionEdit is one --set-version NAME VALUE assignment, kept in the
// order the caller supplied them so later flags win over earlier ones.
type VersionEdit struct {
	Name  string
	Value string
}

// EditOptions is the full set of mutations a Session can apply in one pass.
// Zero values mean "leave alone": empty strings and nil slices are no-ops.
type EditOptions struct {
	IconData      []byte // raw .ico file bytes, parsed by Apply; nil leaves icons alone
	RemoveIcon    bool
	FileVersion    string // "1.2.3.4", 1-4 dotted components
	ProductVersion string
	SetVersions    []VersionEdit
	DeleteVersions []string
	Subsystem      *uint16
}

// touchesResources reports whether opts needs the .rsrc section loaded.
func (o EditOptions) touchesResources() bool {
	return o.IconData != nil || o.RemoveIcon || o.FileVersion != "" ||
		o.ProductVersion != "" || len(o.SetVersions) > 0 || len(o.DeleteVersions) > 0
}

// Session drives one header-read, resource-mutate, write cycle over a
// single RandomAccess-backed executable.
type Session struct {
	rw         RandomAccess
	Header     *ExeHeader
	resSection int // index into Header.SectionTable holding .rsrc, or -1
	table      *ResTable
}

// Open reads and validates rw's PE header, locating (but not yet parsing)
// the resource section.
func Open(rw RandomAccess) (*Session, error) {
	h, err := ReadHeader(rw)
	if err != nil {
		return nil, err
	}

	s := &Session{rw: rw, Header: h, resSection: -1}
	resolved, err := h.ResolveRVA(DirectoryResource)
	if err != nil {
		return nil, err
	}
	if resolved != nil {
		s.resSection = resolved.Section.Index
	}
	return s, nil
}

func (s *Session) loadResourceTable() error {
	if s.table != nil {
		return nil
	}
	if s.resSection < 0 {
		return fmt.Errorf("executable has no resource section: %w", ErrUnsupported)
	}

	section := s.Header.SectionTable[s.resSection]
	buf, err := readAtFull(s.rw, int64(section.File.Start), int(section.File.Size))
	if err != nil {
		return err
	}

	table, err := ParseResourceTable(buf, section.Virtual.Start)
	if err != nil {
		return fmt.Errorf("parse .rsrc: %w", err)
	}
	s.table = table
	return nil
}

// Apply performs every requested mutation. Header-only edits (subsystem)
// happen even if the resource table is never touched; resource edits load
// the table lazily and leave it staged in memory until Finish writes it
// back.
func (s *Session) Apply(opts EditOptions) error {
	if opts.Subsystem != nil {
		s.Header.SetSubsystem(*opts.Subsystem)
	}

	if !opts.touchesResources() {
		return nil
	}
	if err := s.loadResourceTable(); err != nil {
		return err
	}

	if opts.RemoveIcon {
		s.table.DeleteType(ResInt(ResTypeGroupIcon))
		s.table.DeleteType(ResInt(ResTypeIcon))
	}
	if opts.IconData != nil {
		images, err := ParseIcon(opts.IconData)
		if err != nil {
			return fmt.Errorf("parse icon: %w", err)
		}
		ReplaceIcon(s.table, images)
	}

	if opts.FileVersion != "" || opts.ProductVersion != "" || len(opts.SetVersions) > 0 || len(opts.DeleteVersions) > 0 {
		if err := s.applyVersionEdits(opts); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) applyVersionEdits(opts EditOptions) error {
	nameID, langID, ok := s.table.Find(ResInt(ResTypeVersion), nil)
	var block *VersionBlock
	var existed bool

	if ok {
		data, _ := s.table.Get(ResInt(ResTypeVersion), &nameID, &langID)
		parsed, err := ParseVersionInfo(data)
		if err != nil {
			return fmt.Errorf("parse VS_VERSIONINFO: %w", err)
		}
		block = parsed
		existed = true
	} else {
		block = NewVersionInfo()
		nameID, langID = ResInt(1), ResInt(defaultTranslationLang)
	}

	if opts.FileVersion != "" {
		major, minor, patch, build, err := parseVersionString(opts.FileVersion)
		if err != nil {
			return fmt.Errorf("--file-version: %w", err)
		}
		fixed, _ := block.GetFixed()
		fixed.FileVersionMS, fixed.FileVersionLS = FileVersion(major, minor, patch, build)
		block.setFixedFileInfo(fixed)
		block.SetString("FileVersion", fmt.Sprintf("%d.%d.%d.%d", major, minor, patch, build))
	}
	if opts.ProductVersion != "" {
		major, minor, patch, build, err := parseVersionString(opts.ProductVersion)
		if err != nil {
			return fmt.Errorf("--product-version: %w", err)
		}
		fixed, _ := block.GetFixed()
		fixed.ProductVersionMS, fixed.ProductVersionLS = FileVersion(major, minor, patch, build)
		block.setFixedFileInfo(fixed)
		block.SetString("ProductVersion", fmt.Sprintf("%d.%d.%d.%d", major, minor, patch, build))
	}
	for _, kv := range opts.SetVersions {
		block.SetString(kv.Name, kv.Value)
	}
	for _, name := range opts.DeleteVersions {
		block.DeleteString(name)
	}
	if !existed {
		block.EnsureTranslation()
	}

	s.table.Set(ResInt(ResTypeVersion), nameID, langID, block.Serialize())
	return nil
}

// parseVersionString parses 1-4 dot-separated components, defaulting any
// missing trailing component to zero.
func parseVersionString(v string) (major, minor, patch, build uint16, err error) {
	var parts [4]uint16
	n := 0
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == '.' {
			if n >= 4 {
				return 0, 0, 0, 0, fmt.Errorf("too many components in %q: %w", v, ErrUsage)
			}
			field := v[start:i]
			if field == "" {
				return 0, 0, 0, 0, fmt.Errorf("empty component in %q: %w", v, ErrUsage)
			}
			var num uint32
			for _, c := range field {
				if c < '0' || c > '9' {
					return 0, 0, 0, 0, fmt.Errorf("non-numeric component %q in %q: %w", field, v, ErrUsage)
				}
				num = num*10 + uint32(c-'0')
			}
			if num > 0xFFFF {
				return 0, 0, 0, 0, fmt.Errorf("component %q out of range in %q: %w", field, v, ErrUsage)
			}
			parts[n] = uint16(num)
			n++
			start = i + 1
		}
	}
	if n == 0 {
		return 0, 0, 0, 0, fmt.Errorf("empty version string: %w", ErrUsage)
	}
	return parts[0], parts[1], parts[2], parts[3], nil
}

// Finish writes the (possibly re-serialized) resource section and the
// mutated header back through rw. It is a no-op past the header flush if
// the resource table was never loaded. The stored checksum is always
// zeroed before the flush: this editor never recomputes a valid one, and a
// stale checksum left in place would be worse than an absent one.
func (s *Session) Finish() error {
	if s.table != nil {
		if err := WriteResourceSection(s.Header, s.rw, s.resSection, s.table); err != nil {
			return err
		}
	}
	s.Header.ZeroChecksum()
	return s.Header.Flush(s.rw)
}
