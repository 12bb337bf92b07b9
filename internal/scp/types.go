package scp

const (
	fileHeaderSize    = 6
	sectionHeaderSize = 16
	pointerEntrySize  = 10

	// Tag 255 with zero length terminates the section 1 field sequence.
	terminatorTag = 0xFF
)

// Well-known section identifiers.
const (
	SectionPointerTable uint16 = 0
	SectionPatient      uint16 = 1
	SectionHuffman      uint16 = 2
	SectionLeadDefs     uint16 = 3
	SectionQRSLocations uint16 = 4
	SectionReference    uint16 = 5
	SectionRhythm       uint16 = 6
)

// SignalSections lists the sections that carry ECG waveform bytes and must
// survive anonymization byte-identical.
var SignalSections = []uint16{SectionLeadDefs, SectionRhythm}

// FileHeader is the 6-byte prefix of an SCP-ECG file.
type FileHeader struct {
	CRC  uint16
	Size uint32
}

// PointerEntry is one section 0 directory record. Offset is the 0-based byte
// position of the section header; the on-disk form stores a 1-based index.
type PointerEntry struct {
	ID     uint16
	Length uint32
	Offset int64
}

// Section is the parsed 16-byte section header plus the derived payload range.
type Section struct {
	ID             uint16
	CRC            uint16
	DeclaredLength uint32
	Version        uint8
	Protocol       uint8
	Reserved       [6]byte

	Offset        int64
	PayloadOffset int64
	PayloadLength int64
}

// TaggedField is one (tag, length, value) record inside the patient/device
// section. ValueOffset is the value's absolute position in the file buffer so
// mutation writes inside the existing byte range and never reflows neighbors.
type TaggedField struct {
	Tag         uint8
	Length      uint16
	Value       []byte
	ValueOffset int64
}

// File is the parsed model of one SCP-ECG buffer. Sections appear in pointer
// table order. SizeMismatch is set when the header size field disagrees with
// the buffer length; the parser tolerates it so verification can report it.
type File struct {
	Header       FileHeader
	Pointers     []PointerEntry
	Sections     []Section
	Data         []byte
	SizeMismatch bool
}

// SectionByID returns the first section with the given identifier.
func (f *File) SectionByID(id uint16) (*Section, bool) {
	for i := range f.Sections {
		if f.Sections[i].ID == id {
			return &f.Sections[i], true
		}
	}
	return nil, false
}

// SectionBytes returns the full byte range of a section, header included.
func (f *File) SectionBytes(s *Section) []byte {
	return f.Data[s.Offset : s.Offset+int64(s.DeclaredLength)]
}

// Payload returns the section's payload bytes.
func (f *File) Payload(s *Section) []byte {
	return f.Data[s.PayloadOffset : s.PayloadOffset+s.PayloadLength]
}
