package samples

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"example.com/scpgate/internal/scp"
)

const (
	fileHeaderSize    = 6
	sectionHeaderSize = 16
	pointerEntrySize  = 10

	// File name exposed for generator consumers.
	SCPFileName = "sample.scp"
)

// Identifying values embedded in the sample record. Tests reference them when
// asserting that anonymization removed every one.
const (
	LastName      = "Svensson"
	FirstName     = "Ingrid"
	PatientID     = "PAT0001234"
	PhysicianName = "Dr. Lindqvist"
	FreeText      = "Chest pain workup"
	DeviceID      = "ECG-07"

	BirthYear  uint16 = 1968
	BirthMonth uint8  = 4
	BirthDay   uint8  = 17

	AcqYear   uint16 = 2024
	AcqMonth  uint8  = 3
	AcqDay    uint8  = 15
	AcqHour   uint8  = 14
	AcqMinute uint8  = 32
	AcqSecond uint8  = 5
)

// BuildSCP constructs a deterministic SCP-ECG record carrying a full set of
// identifying patient fields plus waveform sections, with every CRC valid.
func BuildSCP() []byte {
	sections := []struct {
		id      uint16
		payload []byte
	}{
		{scp.SectionPatient, patientPayload()},
		{scp.SectionLeadDefs, leadDefsPayload()},
		{scp.SectionRhythm, rhythmPayload()},
	}

	// Section 0 lists itself ahead of the data sections.
	pointerCount := len(sections) + 1
	table0Len := sectionHeaderSize + pointerCount*pointerEntrySize

	offsets := make([]int64, len(sections))
	cursor := int64(fileHeaderSize + table0Len)
	for i, s := range sections {
		offsets[i] = cursor
		cursor += int64(sectionHeaderSize + len(s.payload))
	}
	total := cursor

	buf := make([]byte, total)

	// Pointer table payload: id, length, 1-based index per entry.
	table := make([]byte, 0, pointerCount*pointerEntrySize)
	table = appendPointer(table, scp.SectionPointerTable, uint32(table0Len), fileHeaderSize)
	for i, s := range sections {
		table = appendPointer(table, s.id, uint32(sectionHeaderSize+len(s.payload)), offsets[i])
	}
	writeSection(buf, fileHeaderSize, scp.SectionPointerTable, table)
	for i, s := range sections {
		writeSection(buf, offsets[i], s.id, s.payload)
	}

	binary.LittleEndian.PutUint32(buf[2:6], uint32(total))
	binary.LittleEndian.PutUint16(buf[0:2], scp.CRC16(buf[2:]))
	return buf
}

func appendPointer(table []byte, id uint16, length uint32, offset int64) []byte {
	var rec [pointerEntrySize]byte
	binary.LittleEndian.PutUint16(rec[0:2], id)
	binary.LittleEndian.PutUint32(rec[2:6], length)
	binary.LittleEndian.PutUint32(rec[6:10], uint32(offset)+1)
	return append(table, rec[:]...)
}

func writeSection(buf []byte, offset int64, id uint16, payload []byte) {
	length := uint32(sectionHeaderSize + len(payload))
	binary.LittleEndian.PutUint16(buf[offset+2:offset+4], id)
	binary.LittleEndian.PutUint32(buf[offset+4:offset+8], length)
	buf[offset+8] = 20 // section version
	buf[offset+9] = 20 // protocol version
	copy(buf[offset+sectionHeaderSize:], payload)
	crc := scp.CRC16(buf[offset+2 : offset+int64(length)])
	binary.LittleEndian.PutUint16(buf[offset:offset+2], crc)
}

func patientPayload() []byte {
	var p []byte
	p = appendTextField(p, 0, LastName)
	p = appendTextField(p, 1, FirstName)
	p = appendTextField(p, 2, PatientID)
	p = appendDateField(p, 5, BirthYear, BirthMonth, BirthDay)
	p = appendTextField(p, 14, DeviceID)
	p = appendTextField(p, 21, PhysicianName)
	p = appendDateField(p, 25, AcqYear, AcqMonth, AcqDay)
	p = appendField(p, 26, []byte{AcqHour, AcqMinute, AcqSecond})
	p = appendTextField(p, 30, FreeText)
	p = appendField(p, 255, nil)
	return p
}

func appendField(p []byte, tag uint8, value []byte) []byte {
	p = append(p, tag)
	var lenBytes [2]byte
	binary.LittleEndian.PutUint16(lenBytes[:], uint16(len(value)))
	p = append(p, lenBytes[:]...)
	return append(p, value...)
}

func appendTextField(p []byte, tag uint8, text string) []byte {
	return appendField(p, tag, []byte(text))
}

func appendDateField(p []byte, tag uint8, year uint16, month, day uint8) []byte {
	var v [4]byte
	scp.EncodeDate(v[:], year, month, day)
	return appendField(p, tag, v[:])
}

func leadDefsPayload() []byte {
	// Two leads, start/end sample numbers plus lead ids.
	p := make([]byte, 0, 19)
	p = append(p, 2, 0) // lead count, flags
	for lead := uint8(1); lead <= 2; lead++ {
		var rec [9]byte
		binary.LittleEndian.PutUint32(rec[0:4], 1)
		binary.LittleEndian.PutUint32(rec[4:8], 500)
		rec[8] = lead
		p = append(p, rec[:]...)
	}
	return p
}

func rhythmPayload() []byte {
	p := make([]byte, 64)
	for i := range p {
		p[i] = byte((i*37 + 11) % 251)
	}
	return p
}

// WriteFiles materializes the generated sample under dir.
func WriteFiles(dir string) error {
	return writeFileIfChanged(filepath.Join(dir, SCPFileName), BuildSCP())
}

func writeFileIfChanged(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
