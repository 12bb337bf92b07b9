package scp_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"example.com/scpgate/internal/samples"
	"example.com/scpgate/internal/scp"
)

func TestParseSampleRecord(t *testing.T) {
	buf := samples.BuildSCP()

	f, err := scp.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.SizeMismatch {
		t.Fatalf("unexpected size mismatch: header %d, buffer %d", f.Header.Size, len(buf))
	}
	if len(f.Pointers) != 4 {
		t.Fatalf("expected 4 pointer entries, got %d", len(f.Pointers))
	}
	if f.Sections[0].ID != scp.SectionPointerTable || f.Sections[0].Offset != 6 {
		t.Fatalf("section 0 misplaced: %+v", f.Sections[0])
	}

	sec, ok := f.SectionByID(scp.SectionPatient)
	if !ok {
		t.Fatal("patient section missing")
	}
	if sec.PayloadOffset != sec.Offset+16 {
		t.Fatalf("payload offset %d, want header offset %d + 16", sec.PayloadOffset, sec.Offset)
	}
	if sec.PayloadLength != int64(sec.DeclaredLength)-16 {
		t.Fatalf("payload length %d inconsistent with declared length %d", sec.PayloadLength, sec.DeclaredLength)
	}
	if int64(len(f.SectionBytes(sec))) != int64(sec.DeclaredLength) {
		t.Fatalf("SectionBytes returned %d bytes, want %d", len(f.SectionBytes(sec)), sec.DeclaredLength)
	}
}

func TestParseTooShort(t *testing.T) {
	if _, err := scp.Parse([]byte{0x01, 0x02, 0x03}); !errors.Is(err, scp.ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestParseMissingPointerTable(t *testing.T) {
	buf := samples.BuildSCP()
	// Overwrite the section identifier at offset 8 so the first section no
	// longer announces itself as the pointer table.
	binary.LittleEndian.PutUint16(buf[8:10], scp.SectionPatient)
	if _, err := scp.Parse(buf); !errors.Is(err, scp.ErrNoPointerTable) {
		t.Fatalf("expected ErrNoPointerTable, got %v", err)
	}
}

func TestParsePointerIndexZero(t *testing.T) {
	buf := samples.BuildSCP()
	// Second pointer entry (section 1) starts at 6+16+10; its 1-based index
	// occupies the final four bytes of the record.
	entry := 6 + 16 + 10
	binary.LittleEndian.PutUint32(buf[entry+6:entry+10], 0)

	var perr *scp.ParseError
	if _, err := scp.Parse(buf); !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParsePointerLengthDisagreesWithHeader(t *testing.T) {
	buf := samples.BuildSCP()
	entry := 6 + 16 + 10
	length := binary.LittleEndian.Uint32(buf[entry+2 : entry+6])
	binary.LittleEndian.PutUint32(buf[entry+2:entry+6], length-1)

	var perr *scp.ParseError
	if _, err := scp.Parse(buf); !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.SectionID != scp.SectionPatient {
		t.Fatalf("error names section %d, want %d", perr.SectionID, scp.SectionPatient)
	}
}

func TestParseTruncatedBuffer(t *testing.T) {
	buf := samples.BuildSCP()
	var perr *scp.ParseError
	if _, err := scp.Parse(buf[:len(buf)-20]); !errors.As(err, &perr) {
		t.Fatalf("expected ParseError for truncated buffer, got %v", err)
	}
}

func TestParseSizeMismatchTolerated(t *testing.T) {
	buf := samples.BuildSCP()
	binary.LittleEndian.PutUint32(buf[2:6], uint32(len(buf))+4)

	f, err := scp.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.SizeMismatch {
		t.Fatal("expected SizeMismatch to be set")
	}
}
