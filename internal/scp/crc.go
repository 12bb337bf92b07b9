package scp

// Checksum encapsulates a streaming CRC-CCITT calculation as required by the
// SCP-ECG standard: polynomial 0x1021, initial register 0xFFFF, no final XOR.
// Both the per-section CRC and the whole-file CRC use this algorithm, and
// third-party readers validate the stored values strictly.
type Checksum struct {
	value uint16
}

// NewChecksum returns an initialized checksum calculator.
func NewChecksum() *Checksum {
	return &Checksum{value: 0xFFFF}
}

// Write updates the checksum with the provided data.
func (c *Checksum) Write(p []byte) {
	if c == nil {
		return
	}
	for _, b := range p {
		c.value ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if c.value&0x8000 != 0 {
				c.value = (c.value << 1) ^ 0x1021
			} else {
				c.value <<= 1
			}
		}
	}
}

// Sum16 returns the final checksum value.
func (c *Checksum) Sum16() uint16 {
	if c == nil {
		return 0
	}
	return c.value
}

// CRC16 calculates the checksum for the provided slice in one call.
func CRC16(data []byte) uint16 {
	calc := NewChecksum()
	calc.Write(data)
	return calc.Sum16()
}
