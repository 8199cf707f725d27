package pe

import "fmt"

// SectionSummary is one row of a header describe report.
type SectionSummary struct {
	Name       string
	Virtual    Range
	File       Range
	Entropy    float64
}

// HeaderSummary is the pre-mutation report the CLI prints under --describe
// or --verbose before touching anything.
type HeaderSummary struct {
	Is64             bool
	Subsystem        uint16
	Checksum         ChecksumInfo
	Signature        SignatureInfo
	ResourceSections []SectionSummary
	Sections         []SectionSummary
	IconCount        int
	HasVersionInfo   bool
}

// Describe builds a HeaderSummary from a session's header and (if present)
// its resource table, computing entropy per section over the session's
// backing file.
func (s *Session) Describe(fileSize int64) (*HeaderSummary, error) {
	sum := &HeaderSummary{
		Is64:      s.Header.Is64(),
		Subsystem: s.Header.Subsystem(),
	}

	checksum, err := VerifyChecksum(s.Header, s.rw, fileSize)
	if err != nil {
		return nil, fmt.Errorf("verify checksum: %w", err)
	}
	sum.Checksum = *checksum

	// Best-effort: an unparsable certificate blob shouldn't block the rest
	// of the report.
	if sigInfo, _ := DetectSignature(s.Header, s.rw); sigInfo != nil {
		sum.Signature = *sigInfo
	}

	for _, section := range s.Header.SectionTable {
		entropy, err := SectionEntropy(s.rw, section)
		if err != nil {
			return nil, fmt.Errorf("entropy for section %q: %w", section.Name, err)
		}
		row := SectionSummary{Name: section.Name, Virtual: section.Virtual, File: section.File, Entropy: entropy}
		sum.Sections = append(sum.Sections, row)
		if section.Index == s.resSection {
			sum.ResourceSections = append(sum.ResourceSections, row)
		}
	}

	if s.resSection >= 0 {
		if err := s.loadResourceTable(); err != nil {
			return nil, err
		}
		sum.IconCount = countByType(s.table, ResTypeIcon)
		_, _, ok := s.table.Find(ResInt(ResTypeVersion), nil)
		sum.HasVersionInfo = ok
	}

	return sum, nil
}

func countByType(t *ResTable, typeID uint16) int {
	n := 0
	for leaf := range t.Iterate() {
		if !leaf.Type.IsName() && leaf.Type.Int() == typeID {
			n++
		}
	}
	return n
}
