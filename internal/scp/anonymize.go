package scp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNoPatientSection is returned when the file carries no section 1 to
// anonymize.
var ErrNoPatientSection = errors.New("patient/device section (section 1) not found")

// Config selects the anonymization policy knobs. The tag categorization
// itself is fixed; only the datetime and free-text groups are configurable.
type Config struct {
	AnonymousID       string `yaml:"anonymousId"`
	AnonymizeDatetime bool   `yaml:"anonymizeDatetime"`
	AnonymizeFreetext bool   `yaml:"anonymizeFreetext"`
}

// DefaultConfig returns the policy defaults: both optional groups enabled.
func DefaultConfig() Config {
	return Config{
		AnonymousID:       "ANON000000",
		AnonymizeDatetime: true,
		AnonymizeFreetext: true,
	}
}

// Field categories as they appear in change records and findings.
const (
	CategoryName            = "name"
	CategoryPatientID       = "patient identifier"
	CategoryBirthDate       = "date of birth"
	CategoryStaffName       = "physician/technician name"
	CategoryAcquisitionDate = "acquisition date"
	CategoryAcquisitionTime = "acquisition time"
	CategoryFreeText        = "free text"
)

// Sentinel values written over removed identifiers.
const (
	removedLiteral = "REMOVED"

	sentinelBirthYear  uint16 = 1900
	sentinelAcqYear    uint16 = 2000
	sentinelMonth      uint8  = 1
	sentinelDay        uint8  = 1
	dateEncodingLength        = 4
	timeEncodingLength        = 3
)

// nameTags, staffTags and freetextTags mirror the fixed policy table.
var (
	nameTags     = map[uint8]bool{0: true, 1: true, 6: true, 7: true, 8: true, 9: true}
	birthTags    = map[uint8]bool{5: true, 10: true}
	staffTags    = map[uint8]bool{21: true, 22: true}
	freetextTags = map[uint8]bool{30: true, 31: true}
)

const (
	tagPatientID uint8 = 2
	tagAcqDate   uint8 = 25
	tagAcqTime   uint8 = 26
)

// Change is one audit entry describing a field mutation. Detail summarizes
// the rewrite in byte terms and never carries the original value.
type Change struct {
	Tag      uint8  `json:"tag"`
	Category string `json:"category"`
	Offset   int64  `json:"offset"`
	Detail   string `json:"detail"`
}

// Mapping links the original patient identifier to the anonymous one. The
// core emits it; persisting and protecting it is the caller's responsibility.
type Mapping struct {
	OriginalID  string `json:"originalId"`
	AnonymousID string `json:"anonymousId"`
}

// Result collects the outputs of one anonymization pass.
type Result struct {
	Fields  []TaggedField
	Changes []Change
	Mapping Mapping
}

// IntegrityViolation reports that a completed transform would change the
// file's total size. It aborts the operation before any output is written.
type IntegrityViolation struct {
	Expected int64
	Actual   int64
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("anonymization changed buffer size from %d to %d bytes", e.Expected, e.Actual)
}

// Anonymize rewrites the identifying tagged fields of buf's patient/device
// section in place, then recomputes the section CRC, re-establishes the
// file-size header field, and finally recomputes the file CRC. The buffer
// never grows or shrinks; every mutation stays inside a field's existing
// value range.
func Anonymize(buf []byte, cfg Config) (*Result, error) {
	if cfg.AnonymousID == "" {
		cfg.AnonymousID = DefaultConfig().AnonymousID
	}
	startLen := int64(len(buf))

	f, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	sec, ok := f.SectionByID(SectionPatient)
	if !ok {
		return nil, ErrNoPatientSection
	}
	payload := f.Payload(sec)
	fields, err := DecodeFields(payload, sec.PayloadOffset)
	if err != nil {
		return nil, err
	}
	if consumed := fieldBytes(fields); consumed != len(payload) {
		return nil, &DecodeError{Offset: sec.PayloadOffset + int64(consumed), Tag: terminatorTag,
			Reason: fmt.Sprintf("fields consume %d of %d payload bytes", consumed, len(payload))}
	}

	res := &Result{Fields: fields, Mapping: Mapping{AnonymousID: cfg.AnonymousID}}
	for i := range fields {
		applyPolicy(&fields[i], cfg, res)
	}

	// The mutated section is finalized before anything else is touched.
	updateSectionCRC(buf, sec)

	if int64(len(buf)) != startLen {
		return nil, &IntegrityViolation{Expected: startLen, Actual: int64(len(buf))}
	}
	binary.LittleEndian.PutUint32(buf[2:6], uint32(len(buf)))

	// File CRC last, once every section CRC and the size field are final.
	binary.LittleEndian.PutUint16(buf[0:2], CRC16(buf[2:]))
	return res, nil
}

func fieldBytes(fields []TaggedField) int {
	total := 0
	for _, f := range fields {
		total += 3 + int(f.Length)
	}
	return total
}

func applyPolicy(f *TaggedField, cfg Config, res *Result) {
	switch {
	case nameTags[f.Tag]:
		EncodeText(f.Value, removedLiteral)
		res.record(f, CategoryName, fmt.Sprintf("%d value bytes replaced with %q", f.Length, removedLiteral))

	case f.Tag == tagPatientID:
		res.Mapping.OriginalID = TrimText(f.Value)
		EncodeText(f.Value, cfg.AnonymousID)
		res.record(f, CategoryPatientID, fmt.Sprintf("%d value bytes replaced with anonymous id", f.Length))

	case birthTags[f.Tag]:
		res.record(f, CategoryBirthDate, writeSentinelDate(f.Value, sentinelBirthYear))

	case staffTags[f.Tag]:
		zeroFill(f.Value)
		res.record(f, CategoryStaffName, fmt.Sprintf("%d value bytes zeroed", f.Length))

	case f.Tag == tagAcqDate:
		if !cfg.AnonymizeDatetime {
			return
		}
		res.record(f, CategoryAcquisitionDate, writeSentinelDate(f.Value, sentinelAcqYear))

	case f.Tag == tagAcqTime:
		if !cfg.AnonymizeDatetime {
			return
		}
		// The sentinel 00:00:00 is all zero bytes, as is any padding.
		zeroFill(f.Value)
		res.record(f, CategoryAcquisitionTime, "time set to 00:00:00")

	case freetextTags[f.Tag]:
		if !cfg.AnonymizeFreetext {
			return
		}
		zeroFill(f.Value)
		res.record(f, CategoryFreeText, fmt.Sprintf("%d value bytes zeroed", f.Length))
	}
	// Every other tag, the terminator included, passes through verbatim.
}

// writeSentinelDate overwrites a binary date value with year-01-01. A field
// too short to hold the 4-byte encoding is zero-filled instead; its length is
// never altered.
func writeSentinelDate(value []byte, year uint16) string {
	if len(value) < dateEncodingLength {
		zeroFill(value)
		return fmt.Sprintf("%d value bytes zeroed (too short for date encoding)", len(value))
	}
	EncodeDate(value, year, sentinelMonth, sentinelDay)
	zeroFill(value[dateEncodingLength:])
	return fmt.Sprintf("date set to %04d-01-01", year)
}

func zeroFill(value []byte) {
	for i := range value {
		value[i] = 0
	}
}

func (r *Result) record(f *TaggedField, category, detail string) {
	r.Changes = append(r.Changes, Change{
		Tag:      f.Tag,
		Category: category,
		Offset:   f.ValueOffset,
		Detail:   detail,
	})
}

// updateSectionCRC recomputes the CRC of one section over everything from the
// identifier field through the end of the payload and stores it in the header.
func updateSectionCRC(buf []byte, sec *Section) {
	start := sec.Offset
	end := sec.Offset + int64(sec.DeclaredLength)
	crc := CRC16(buf[start+2 : end])
	binary.LittleEndian.PutUint16(buf[start:start+2], crc)
	sec.CRC = crc
}
