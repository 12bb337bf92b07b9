package scp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

var (
	ErrTooShort       = errors.New("buffer shorter than file header")
	ErrNoPointerTable = errors.New("section 0 pointer table not found at offset 6")
)

// ParseError reports a structural defect that makes the file unsafe to
// process. The parser fails closed: it never substitutes placeholder content
// for sections it cannot read.
type ParseError struct {
	Offset    int64
	SectionID uint16
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scp parse error at offset %d (section %d): %s", e.Offset, e.SectionID, e.Reason)
}

func parseErrorf(offset int64, sectionID uint16, format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: offset, SectionID: sectionID, Reason: fmt.Sprintf(format, args...)}
}

// Parse interprets buf as an SCP-ECG file: the 6-byte file header, the
// section 0 pointer table, then one 16-byte section header per pointer entry.
//
// Inside a section header the first two bytes hold the section CRC; the
// identifier lives at bytes 2-4 and the declared length at bytes 4-8. The
// payload begins 16 bytes into the section. Reading the CRC as the identifier,
// or skipping only 8 header bytes, silently misidentifies every section.
func Parse(buf []byte) (*File, error) {
	if len(buf) < fileHeaderSize {
		return nil, ErrTooShort
	}
	f := &File{Data: buf}
	f.Header.CRC = binary.LittleEndian.Uint16(buf[0:2])
	f.Header.Size = binary.LittleEndian.Uint32(buf[2:6])
	// A wrong size field is reported by verification, not fatal here; only
	// pointer inconsistencies and short sections abort the parse.
	f.SizeMismatch = int64(f.Header.Size) != int64(len(buf))

	table, err := parseSectionHeader(buf, fileHeaderSize)
	if err != nil {
		return nil, err
	}
	if table.ID != SectionPointerTable {
		return nil, ErrNoPointerTable
	}
	f.Sections = append(f.Sections, *table)

	pointers, err := parsePointerTable(buf, table)
	if err != nil {
		return nil, err
	}
	f.Pointers = pointers

	for _, ptr := range pointers {
		if ptr.ID == SectionPointerTable {
			continue
		}
		sec, err := parseSectionHeader(buf, ptr.Offset)
		if err != nil {
			return nil, err
		}
		if sec.ID != ptr.ID {
			return nil, parseErrorf(ptr.Offset, ptr.ID,
				"pointer names section %d but header declares %d", ptr.ID, sec.ID)
		}
		if sec.DeclaredLength != ptr.Length {
			return nil, parseErrorf(ptr.Offset, ptr.ID,
				"pointer length %d disagrees with declared length %d", ptr.Length, sec.DeclaredLength)
		}
		f.Sections = append(f.Sections, *sec)
	}
	return f, nil
}

// ParseFile reads path entirely into memory and parses it.
func ParseFile(path string) (*File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(buf)
}

func parseSectionHeader(buf []byte, offset int64) (*Section, error) {
	if offset < 0 || offset+sectionHeaderSize > int64(len(buf)) {
		return nil, parseErrorf(offset, 0, "section header extends past end of buffer (%d bytes)", len(buf))
	}
	hdr := buf[offset : offset+sectionHeaderSize]
	sec := &Section{
		CRC:            binary.LittleEndian.Uint16(hdr[0:2]),
		ID:             binary.LittleEndian.Uint16(hdr[2:4]),
		DeclaredLength: binary.LittleEndian.Uint32(hdr[4:8]),
		Version:        hdr[8],
		Protocol:       hdr[9],
		Offset:         offset,
	}
	copy(sec.Reserved[:], hdr[10:16])
	if sec.DeclaredLength < sectionHeaderSize {
		return nil, parseErrorf(offset, sec.ID, "declared length %d shorter than section header", sec.DeclaredLength)
	}
	if offset+int64(sec.DeclaredLength) > int64(len(buf)) {
		return nil, parseErrorf(offset, sec.ID,
			"declared length %d exceeds buffer bounds (%d bytes)", sec.DeclaredLength, len(buf))
	}
	sec.PayloadOffset = offset + sectionHeaderSize
	sec.PayloadLength = int64(sec.DeclaredLength) - sectionHeaderSize
	return sec, nil
}

func parsePointerTable(buf []byte, table *Section) ([]PointerEntry, error) {
	payload := buf[table.PayloadOffset : table.PayloadOffset+table.PayloadLength]
	if len(payload)%pointerEntrySize != 0 {
		return nil, parseErrorf(table.Offset, SectionPointerTable,
			"pointer table payload %d bytes is not a multiple of %d", len(payload), pointerEntrySize)
	}
	var entries []PointerEntry
	for cursor := 0; cursor < len(payload); cursor += pointerEntrySize {
		rec := payload[cursor : cursor+pointerEntrySize]
		entry := PointerEntry{
			ID:     binary.LittleEndian.Uint16(rec[0:2]),
			Length: binary.LittleEndian.Uint32(rec[2:6]),
		}
		index := binary.LittleEndian.Uint32(rec[6:10])
		if entry.Length == 0 {
			// Absent section; the slot stays in the table but points nowhere.
			continue
		}
		if index == 0 {
			return nil, parseErrorf(table.Offset, entry.ID, "pointer index is zero for a non-empty section")
		}
		entry.Offset = int64(index) - 1
		if entry.Offset+int64(entry.Length) > int64(len(buf)) {
			return nil, parseErrorf(entry.Offset, entry.ID,
				"pointer offset %d + length %d exceeds buffer bounds (%d bytes)",
				entry.Offset, entry.Length, len(buf))
		}
		if entry.Length < sectionHeaderSize {
			return nil, parseErrorf(entry.Offset, entry.ID,
				"pointer length %d shorter than section header", entry.Length)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
