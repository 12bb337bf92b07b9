package scp_test

import (
	"bytes"
	"errors"
	"testing"

	"example.com/scpgate/internal/scp"
)

func field(tag uint8, value ...byte) []byte {
	out := []byte{tag, byte(len(value)), byte(len(value) >> 8)}
	return append(out, value...)
}

func TestDecodeFields(t *testing.T) {
	payload := append(field(2, []byte("PAT42")...), field(5, 0x07, 0xB0, 6, 3)...)
	payload = append(payload, field(255)...)

	fields, err := scp.DecodeFields(payload, 100)
	if err != nil {
		t.Fatalf("DecodeFields: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields[0].Tag != 2 || string(fields[0].Value) != "PAT42" {
		t.Fatalf("field 0 unexpected: %+v", fields[0])
	}
	if fields[0].ValueOffset != 103 {
		t.Fatalf("field 0 value offset %d, want 103", fields[0].ValueOffset)
	}
	if fields[1].ValueOffset != 100+8+3 {
		t.Fatalf("field 1 value offset %d, want %d", fields[1].ValueOffset, 100+8+3)
	}
	if fields[2].Tag != 255 || fields[2].Length != 0 {
		t.Fatalf("terminator unexpected: %+v", fields[2])
	}
}

func TestDecodeFieldsErrors(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty payload", nil},
		{"missing terminator", field(2, []byte("PAT42")...)},
		{"truncated header", append(field(2, 'A'), 5, 0)},
		{"value past end", []byte{2, 10, 0, 'A', 'B'}},
		{"terminator with value", []byte{255, 2, 0, 'X', 'Y'}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var derr *scp.DecodeError
			if _, err := scp.DecodeFields(tc.payload, 0); !errors.As(err, &derr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
		})
	}
}

func TestEncodeFieldsRoundTrip(t *testing.T) {
	payload := append(field(0, []byte("Svensson")...), field(255)...)
	fields, err := scp.DecodeFields(payload, 0)
	if err != nil {
		t.Fatalf("DecodeFields: %v", err)
	}
	if got := scp.EncodeFields(fields); !bytes.Equal(got, payload) {
		t.Fatalf("EncodeFields = %x, want %x", got, payload)
	}
}

func TestDateRoundTrip(t *testing.T) {
	var buf [4]byte
	scp.EncodeDate(buf[:], 1968, 4, 17)
	if buf[0] != 0x07 || buf[1] != 0xB0 {
		t.Fatalf("year bytes %02X %02X, want big-endian 0x07B0", buf[0], buf[1])
	}
	year, month, day := scp.DecodeDate(buf[:])
	if year != 1968 || month != 4 || day != 17 {
		t.Fatalf("round trip gave %d-%d-%d", year, month, day)
	}
}

func TestEncodeTime(t *testing.T) {
	var buf [3]byte
	scp.EncodeTime(buf[:], 14, 32, 5)
	if buf != [3]byte{14, 32, 5} {
		t.Fatalf("EncodeTime wrote %v", buf)
	}
}

func TestEncodeText(t *testing.T) {
	dst := []byte("XXXXXXXX")
	scp.EncodeText(dst, "REMOVED")
	want := append([]byte("REMOVED"), 0)
	if !bytes.Equal(dst, want) {
		t.Fatalf("EncodeText gave %q", dst)
	}

	short := make([]byte, 3)
	scp.EncodeText(short, "REMOVED")
	if string(short) != "REM" {
		t.Fatalf("expected truncation to %q, got %q", "REM", short)
	}
}

func TestTrimText(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("PAT42\x00\x00\x00"), "PAT42"},
		{[]byte("  padded  \x00"), "padded"},
		{[]byte{0, 0, 0}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := scp.TrimText(tc.in); got != tc.want {
			t.Fatalf("TrimText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
