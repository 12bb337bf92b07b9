package scp

import "testing"

func TestCRC16KnownVector(t *testing.T) {
	// Standard CCITT check value for the ASCII digits 1-9.
	if got := CRC16([]byte("123456789")); got != 0x29B1 {
		t.Fatalf("CRC16(\"123456789\") = 0x%04X, want 0x29B1", got)
	}
}

func TestCRC16EmptyInput(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Fatalf("CRC16(nil) = 0x%04X, want initial register 0xFFFF", got)
	}
}

func TestChecksumStreamingMatchesOneShot(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")
	want := CRC16(data)

	for _, split := range []int{1, 7, len(data) / 2, len(data) - 1} {
		calc := NewChecksum()
		calc.Write(data[:split])
		calc.Write(data[split:])
		if got := calc.Sum16(); got != want {
			t.Fatalf("split %d: streaming CRC 0x%04X, one-shot 0x%04X", split, got, want)
		}
	}
}

func TestChecksumNilReceiver(t *testing.T) {
	var calc *Checksum
	calc.Write([]byte{0x01})
	if got := calc.Sum16(); got != 0 {
		t.Fatalf("nil checksum Sum16 = 0x%04X, want 0", got)
	}
}
