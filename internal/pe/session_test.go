package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildSessionFixture(t *testing.T) (*memRW, minimalPE) {
	t.Helper()
	table := buildSampleTable()
	serialized, patchOffsets, err := table.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	raw, layout := buildMinimalPE(serialized, uint32(len(serialized))+0x200)
	// Turn the section-relative data offsets into absolute RVAs, as the
	// section writer does, so the embedded table parses.
	for _, off := range patchOffsets {
		pos := int64(layout.sectionRawStart) + int64(off)
		putUint32(raw, pos, binary.LittleEndian.Uint32(raw[pos:pos+4])+layout.sectionVirtStart)
	}
	return &memRW{buf: raw}, layout
}

func TestSessionOpenApplyFinishSetsSubsystem(t *testing.T) {
	rw, _ := buildSessionFixture(t)

	session, err := Open(rw)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	subsystem := uint16(2)
	if err := session.Apply(EditOptions{Subsystem: &subsystem}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := session.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	reopened, err := Open(rw)
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	if got := reopened.Header.Subsystem(); got != 2 {
		t.Errorf("Subsystem() = %d, want 2", got)
	}
}

func TestSessionFinishZeroesChecksum(t *testing.T) {
	rw, layout := buildSessionFixture(t)
	checksumOff := layout.peOffset + 4 + 20 + ohCheckSumOff
	putUint32(rw.buf, checksumOff, 0xDEADBEEF)

	session, err := Open(rw)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := session.Header.Checksum(); got != 0xDEADBEEF {
		t.Fatalf("fixture checksum = %#x, want 0xdeadbeef", got)
	}

	subsystem := uint16(2)
	if err := session.Apply(EditOptions{Subsystem: &subsystem}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := session.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	reopened, err := Open(rw)
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	if got := reopened.Header.Checksum(); got != 0 {
		t.Errorf("Checksum() after Finish() = %#x, want 0", got)
	}
}

func TestSessionApplyReplacesIcon(t *testing.T) {
	rw, _ := buildSessionFixture(t)
	session, err := Open(rw)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	icoBytes := buildIco([][]byte{[]byte("new-icon-payload")})
	if err := session.Apply(EditOptions{IconData: icoBytes}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := session.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	reopened, err := Open(rw)
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	if reopened.resSection < 0 {
		t.Fatal("expected resource section to still be present")
	}
	if err := reopened.loadResourceTable(); err != nil {
		t.Fatalf("loadResourceTable() error = %v", err)
	}
	data, ok := reopened.table.Get(ResInt(ResTypeIcon), idPtr(ResInt(0)), nil)
	if !ok || !bytes.Equal(data, []byte("new-icon-payload")) {
		t.Errorf("icon data = %q, ok=%v, want %q", data, ok, "new-icon-payload")
	}
	if _, ok := reopened.table.Get(ResInt(ResTypeIcon), idPtr(ResInt(1)), nil); ok {
		t.Error("expected the old RT_ICON #1 image to be gone")
	}
}

func TestSessionApplyRemovesIcon(t *testing.T) {
	rw, _ := buildSessionFixture(t)
	session, err := Open(rw)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := session.Apply(EditOptions{RemoveIcon: true}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := session.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	reopened, _ := Open(rw)
	if err := reopened.loadResourceTable(); err != nil {
		t.Fatalf("loadResourceTable() error = %v", err)
	}
	if _, ok := reopened.table.Get(ResInt(ResTypeIcon), nil, nil); ok {
		t.Error("expected all RT_ICON entries to be gone")
	}
	if _, ok := reopened.table.Get(ResInt(ResTypeGroupIcon), nil, nil); ok {
		t.Error("expected RT_GROUP_ICON to be gone")
	}
	// Unrelated resources should survive untouched.
	if _, ok := reopened.table.Get(ResInt(ResTypeVersion), nil, nil); !ok {
		t.Error("expected RT_VERSION to survive icon removal")
	}
}

func TestSessionApplySetsFileAndProductVersion(t *testing.T) {
	rw, _ := buildSessionFixture(t)
	session, err := Open(rw)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := session.loadResourceTable(); err != nil {
		t.Fatalf("loadResourceTable() error = %v", err)
	}
	// The fixture's RT_VERSION entry isn't a real VS_VERSIONINFO blob, so
	// replace it with one before exercising the version-edit path.
	block := NewVersionInfo()
	session.table.Set(ResInt(ResTypeVersion), ResInt(1), ResInt(0x0409), block.Serialize())

	opts := EditOptions{
		FileVersion:    "1.2.3.4",
		ProductVersion: "5.6.7.8",
		SetVersions:    []VersionEdit{{Name: "CompanyName", Value: "Example Co"}},
	}
	if err := session.Apply(opts); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := session.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	reopened, _ := Open(rw)
	if err := reopened.loadResourceTable(); err != nil {
		t.Fatalf("loadResourceTable() error = %v", err)
	}
	data, found := reopened.table.Get(ResInt(ResTypeVersion), idPtr(ResInt(1)), idPtr(ResInt(0x0409)))
	if !found {
		t.Fatal("expected RT_VERSION to still be present")
	}
	parsed, err := ParseVersionInfo(data)
	if err != nil {
		t.Fatalf("ParseVersionInfo() error = %v", err)
	}
	fixed, ok := parsed.GetFixed()
	if !ok {
		t.Fatal("expected FIXEDFILEINFO to be present")
	}
	wantMS, wantLS := FileVersion(1, 2, 3, 4)
	if fixed.FileVersionMS != wantMS || fixed.FileVersionLS != wantLS {
		t.Errorf("FileVersion = (%#x,%#x), want (%#x,%#x)", fixed.FileVersionMS, fixed.FileVersionLS, wantMS, wantLS)
	}
	if got, _ := parsed.GetString("CompanyName"); got != "Example Co" {
		t.Errorf("GetString(CompanyName) = %q, want %q", got, "Example Co")
	}
}

func TestSessionOpenNoResourceDirectory(t *testing.T) {
	raw, layout := buildMinimalPE(nil, 0x100)
	// Clear the resource data-directory slot so the image looks like it has
	// no .rsrc at all.
	putUint32(raw, layout.dataDirResOffset, 0)
	putUint32(raw, layout.dataDirResOffset+4, 0)
	rw := &memRW{buf: raw}

	session, err := Open(rw)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if session.resSection != -1 {
		t.Fatalf("resSection = %d, want -1", session.resSection)
	}

	if err := session.Apply(EditOptions{IconData: buildIco([][]byte{[]byte("x")})}); err == nil {
		t.Error("expected Apply() with icon edits to fail without a resource section")
	}

	// Header-only edits still succeed.
	subsystem := uint16(3)
	if err := session.Apply(EditOptions{Subsystem: &subsystem}); err != nil {
		t.Errorf("Apply() with only a subsystem edit failed: %v", err)
	}
	if err := session.Finish(); err != nil {
		t.Errorf("Finish() error = %v", err)
	}
}
