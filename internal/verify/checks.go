package verify

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"

	"example.com/scpgate/internal/scp"
)

// RegisterBuiltins installs the standard check set. Registry names double as
// the Check field of emitted findings.
func RegisterBuiltins(e *Engine) {
	e.Register("patient-tags", CheckPatientTags)
	e.Register("scan-names", ScanNames)
	e.Register("scan-dates", ScanDates)
	e.Register("scan-ssn", ScanSSN)
	e.Register("scan-phones", ScanPhones)
	e.Register("scan-emails", ScanEmails)
	e.Register("scan-numeric-ids", ScanNumericIDs)
	e.Register("signal-integrity", CheckSignalIntegrity)
	e.Register("structure", CheckStructure)
}

// Pattern scans cap their findings so a pathological file cannot flood the
// report. The summary counters still see every finding that is emitted.
const maxScanFindings = 10

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)John|Jane|Smith|Johnson|Williams|Brown|Jones|Garcia|Miller|Davis|Rodriguez|Martinez|Hernandez|Lopez`),
		regexp.MustCompile(`Dr\.?\s+[A-Z][a-z]+`),
		regexp.MustCompile(`[A-Z][a-z]+,\s*[A-Z][a-z]+`),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{2}-\d{2}-\d{4}`),
	}
	ssnPattern    = regexp.MustCompile(`\d{3}-\d{2}-\d{4}`)
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\(\d{3}\)\s*\d{3}-\d{4}`),
		regexp.MustCompile(`\d{3}-\d{3}-\d{4}`),
		regexp.MustCompile(`\d{10}`),
	}
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	idPattern    = regexp.MustCompile(`\d{8,}`)
)

// CheckPatientTags re-decodes the patient/device section and checks every
// sensitive tag against the anonymization policy.
func CheckPatientTags(ctx *Context) ([]Finding, bool, error) {
	f := ctx.parsed
	sec, ok := f.SectionByID(scp.SectionPatient)
	if !ok {
		return []Finding{{Status: FAIL, Detail: "patient/device section (section 1) not found"}}, true, nil
	}
	fields, err := scp.DecodeFields(f.Payload(sec), sec.PayloadOffset)
	if err != nil {
		return []Finding{{Status: FAIL, Offset: sec.PayloadOffset,
			Detail: fmt.Sprintf("section 1 fields do not decode: %v", err)}}, true, nil
	}

	var out []Finding
	checked := 0
	for i := range fields {
		if fd := verifyTag(&fields[i], ctx.Config); fd != nil {
			out = append(out, *fd)
		}
		checked++
	}
	if len(out) == 0 {
		out = []Finding{{Status: PASS, Detail: fmt.Sprintf("%d tags conform to policy", checked)}}
	}
	return out, true, nil
}

func verifyTag(f *scp.TaggedField, cfg scp.Config) *Finding {
	tag := f.Tag
	fd := &Finding{Tag: &tag, Offset: f.ValueOffset}

	switch {
	case tag == 0 || tag == 1 || tag == 6 || tag == 7 || tag == 8 || tag == 9:
		text := scp.TrimText(f.Value)
		if text == "" || text == "REMOVED" {
			return nil
		}
		fd.Status = FAIL
		fd.Detail = fmt.Sprintf("name tag %d still carries %d bytes of text", tag, len(text))

	case tag == 2:
		id := scp.TrimText(f.Value)
		if id == "" || len(id) >= 4 && id[:4] == "ANON" {
			return nil
		}
		fd.Status = FAIL
		fd.Detail = "patient identifier is not an anonymous id"

	case tag == 5 || tag == 10:
		if isSentinelDate(f.Value, 1900) || allZero(f.Value) {
			return nil
		}
		fd.Status = FAIL
		fd.Detail = fmt.Sprintf("date of birth tag %d is not the 1900-01-01 sentinel", tag)

	case tag == 21 || tag == 22:
		if allZero(f.Value) {
			return nil
		}
		fd.Status = FAIL
		fd.Detail = fmt.Sprintf("staff name tag %d is not zeroed", tag)

	case tag == 25:
		if !cfg.AnonymizeDatetime || isSentinelDate(f.Value, 2000) {
			return nil
		}
		fd.Status = WARN
		fd.Detail = "acquisition date is not the 2000-01-01 sentinel"

	case tag == 26:
		if !cfg.AnonymizeDatetime || allZero(f.Value) {
			return nil
		}
		fd.Status = WARN
		fd.Detail = "acquisition time is not 00:00:00"

	case tag == 30 || tag == 31:
		if !cfg.AnonymizeFreetext || allZero(f.Value) {
			return nil
		}
		fd.Status = WARN
		fd.Detail = fmt.Sprintf("free text tag %d carries %d bytes", tag, len(f.Value))

	default:
		return nil
	}
	return fd
}

func isSentinelDate(value []byte, year uint16) bool {
	if len(value) < 4 {
		return false
	}
	y, m, d := scp.DecodeDate(value)
	return y == year && m == 1 && d == 1
}

func allZero(value []byte) bool {
	for _, b := range value {
		if b != 0 {
			return false
		}
	}
	return true
}

func scanPatterns(data []byte, patterns []*regexp.Regexp, detail string, skip func(match []byte, start int) bool) []Finding {
	var out []Finding
	for _, re := range patterns {
		for _, loc := range re.FindAllIndex(data, -1) {
			if skip != nil && skip(data[loc[0]:loc[1]], loc[0]) {
				continue
			}
			out = append(out, Finding{
				Status: WARN,
				Offset: int64(loc[0]),
				Detail: fmt.Sprintf("%s: %q", detail, data[loc[0]:loc[1]]),
			})
			if len(out) >= maxScanFindings {
				return out
			}
		}
	}
	return out
}

// ScanNames sweeps the whole buffer for common name spellings and
// title/surname shapes.
func ScanNames(ctx *Context) ([]Finding, bool, error) {
	skip := func(match []byte, _ int) bool {
		return bytes.Equal(match, []byte("REMOVED"))
	}
	return scanPatterns(ctx.Output, namePatterns, "possible name", skip), true, nil
}

// ScanDates sweeps for textual date shapes. Binary date encodings are covered
// by the tag check; this catches dates leaked into free text.
func ScanDates(ctx *Context) ([]Finding, bool, error) {
	return scanPatterns(ctx.Output, datePatterns, "date-like text", nil), true, nil
}

func ScanSSN(ctx *Context) ([]Finding, bool, error) {
	return scanPatterns(ctx.Output, []*regexp.Regexp{ssnPattern}, "SSN-like text", nil), true, nil
}

func ScanPhones(ctx *Context) ([]Finding, bool, error) {
	return scanPatterns(ctx.Output, phonePatterns, "phone-like text", nil), true, nil
}

func ScanEmails(ctx *Context) ([]Finding, bool, error) {
	return scanPatterns(ctx.Output, []*regexp.Regexp{emailPattern}, "email-like text", nil), true, nil
}

// ScanNumericIDs flags digit runs of eight or more that could be a medical
// record number. Runs that are all zeros or that continue an anonymous id are
// skipped.
func ScanNumericIDs(ctx *Context) ([]Finding, bool, error) {
	skip := func(match []byte, start int) bool {
		if allASCIIZero(match) {
			return true
		}
		if start >= 4 && bytes.Equal(ctx.Output[start-4:start], []byte("ANON")) {
			return true
		}
		return false
	}
	return scanPatterns(ctx.Output, []*regexp.Regexp{idPattern}, "long digit run", skip), true, nil
}

func allASCIIZero(b []byte) bool {
	for _, c := range b {
		if c != '0' {
			return false
		}
	}
	return true
}

// CheckSignalIntegrity byte-compares the waveform sections against the
// original file. Skipped when no original is supplied.
func CheckSignalIntegrity(ctx *Context) ([]Finding, bool, error) {
	if len(ctx.Original) == 0 {
		return nil, false, nil
	}
	orig, err := scp.Parse(ctx.Original)
	if err != nil {
		return nil, true, fmt.Errorf("original does not parse: %w", err)
	}

	var out []Finding
	for _, id := range scp.SignalSections {
		oSec, oOK := orig.SectionByID(id)
		aSec, aOK := ctx.parsed.SectionByID(id)
		if !oOK || !aOK {
			out = append(out, Finding{
				Status: WARN,
				Detail: fmt.Sprintf("section %d missing from %s", id, missingSide(oOK, aOK)),
			})
			continue
		}
		if !bytes.Equal(orig.SectionBytes(oSec), ctx.parsed.SectionBytes(aSec)) {
			out = append(out, Finding{
				Status: FAIL,
				Offset: aSec.Offset,
				Detail: fmt.Sprintf("section %d waveform bytes differ from original", id),
			})
		}
	}
	return out, true, nil
}

func missingSide(inOriginal, inOutput bool) string {
	switch {
	case !inOriginal && !inOutput:
		return "both files"
	case !inOriginal:
		return "original"
	default:
		return "output"
	}
}

// CheckStructure re-validates the size field, every section CRC, and the
// file CRC against freshly computed values.
func CheckStructure(ctx *Context) ([]Finding, bool, error) {
	buf := ctx.Output
	f := ctx.parsed

	var out []Finding
	if f.SizeMismatch {
		out = append(out, Finding{
			Status: FAIL,
			Detail: fmt.Sprintf("header size field says %d bytes, buffer holds %d", f.Header.Size, len(buf)),
		})
	}
	for i := range f.Sections {
		sec := &f.Sections[i]
		got := scp.CRC16(buf[sec.Offset+2 : sec.Offset+int64(sec.DeclaredLength)])
		if got != sec.CRC {
			out = append(out, Finding{
				Status: FAIL,
				Offset: sec.Offset,
				Detail: fmt.Sprintf("section %d CRC 0x%04X does not match computed 0x%04X", sec.ID, sec.CRC, got),
			})
		}
	}
	if got := scp.CRC16(buf[2:]); got != binary.LittleEndian.Uint16(buf[0:2]) {
		out = append(out, Finding{
			Status: FAIL,
			Detail: fmt.Sprintf("file CRC 0x%04X does not match computed 0x%04X", binary.LittleEndian.Uint16(buf[0:2]), got),
		})
	}
	return out, true, nil
}
