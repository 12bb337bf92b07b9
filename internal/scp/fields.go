package scp

import (
	"encoding/binary"
	"fmt"
)

// DecodeError reports a malformed tagged-field sequence. Anonymization cannot
// proceed past one: guessing field boundaries risks writing into the wrong
// bytes.
type DecodeError struct {
	Offset int64
	Tag    uint8
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("scp field decode error at offset %d (tag %d): %s", e.Offset, e.Tag, e.Reason)
}

// DecodeFields walks the patient/device section payload as a sequence of
// (tag, length, value) records terminated by tag 255 with zero length. The
// base offset positions each value inside the file buffer so the transform
// can mutate in place.
func DecodeFields(payload []byte, base int64) ([]TaggedField, error) {
	var fields []TaggedField
	cursor := 0
	for {
		if cursor >= len(payload) {
			return nil, &DecodeError{Offset: base + int64(cursor),
				Reason: "payload exhausted before terminator tag"}
		}
		if cursor+3 > len(payload) {
			return nil, &DecodeError{Offset: base + int64(cursor), Tag: payload[cursor],
				Reason: "truncated field header"}
		}
		tag := payload[cursor]
		length := binary.LittleEndian.Uint16(payload[cursor+1 : cursor+3])
		valueStart := cursor + 3
		if valueStart+int(length) > len(payload) {
			return nil, &DecodeError{Offset: base + int64(cursor), Tag: tag,
				Reason: fmt.Sprintf("value length %d exceeds remaining payload %d", length, len(payload)-valueStart)}
		}
		field := TaggedField{
			Tag:         tag,
			Length:      length,
			Value:       payload[valueStart : valueStart+int(length)],
			ValueOffset: base + int64(valueStart),
		}
		fields = append(fields, field)
		cursor = valueStart + int(length)
		if tag == terminatorTag {
			if length != 0 {
				return nil, &DecodeError{Offset: base + int64(cursor), Tag: tag,
					Reason: fmt.Sprintf("terminator carries %d value bytes", length)}
			}
			return fields, nil
		}
	}
}

// EncodeFields serializes fields back into wire form. It exists to validate
// the layout invariant (the re-encoding must equal the section payload byte
// count), not to rebuild payloads: mutation always writes inside the original
// buffer.
func EncodeFields(fields []TaggedField) []byte {
	total := 0
	for _, f := range fields {
		total += 3 + int(f.Length)
	}
	out := make([]byte, 0, total)
	for _, f := range fields {
		out = append(out, f.Tag)
		var lenBytes [2]byte
		binary.LittleEndian.PutUint16(lenBytes[:], f.Length)
		out = append(out, lenBytes[:]...)
		out = append(out, f.Value...)
	}
	return out
}

// EncodeDate writes year/month/day in the SCP binary date layout: a big-endian
// 16-bit year followed by one byte each for month and day.
func EncodeDate(dst []byte, year uint16, month, day uint8) {
	binary.BigEndian.PutUint16(dst[0:2], year)
	dst[2] = month
	dst[3] = day
}

// DecodeDate reads the 4-byte binary date layout.
func DecodeDate(src []byte) (year uint16, month, day uint8) {
	return binary.BigEndian.Uint16(src[0:2]), src[2], src[3]
}

// EncodeTime writes hour/minute/second as three single bytes.
func EncodeTime(dst []byte, hour, minute, second uint8) {
	dst[0] = hour
	dst[1] = minute
	dst[2] = second
}

// EncodeText writes ASCII text zero-padded to the full destination length,
// truncating when the text is longer. No encoding conversion is performed.
func EncodeText(dst []byte, text string) {
	n := copy(dst, text)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// TrimText interprets value as ASCII, dropping trailing NUL padding and
// surrounding spaces.
func TrimText(value []byte) string {
	end := len(value)
	for end > 0 && value[end-1] == 0 {
		end--
	}
	start := 0
	for start < end && value[start] == ' ' {
		start++
	}
	for end > start && value[end-1] == ' ' {
		end--
	}
	return string(value[start:end])
}
