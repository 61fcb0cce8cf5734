// Package crc implements the checksums used on the serial link.
package crc

// Seed16 is the initial register value for frame checksums.
const Seed16 uint16 = 0xFFFF

const poly8 byte = 0x91

// CRC16 updates a CCITT CRC16 register with p.
//
// Appending the result big-endian to the data and running CRC16 again from
// the same seed yields zero.
func CRC16(seed uint16, p []byte) uint16 {
	crc := seed
	for _, b := range p {
		x := byte(crc>>8) ^ b
		x ^= x >> 4
		crc = (crc << 8) ^ (uint16(x) << 12) ^ (uint16(x) << 5) ^ uint16(x)
	}
	return crc
}

// CRC8 updates a reflected CRC8 register (polynomial 0x91) with p.
func CRC8(seed byte, p []byte) byte {
	crc := seed
	for _, b := range p {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x01 != 0 {
				crc = (crc ^ poly8) >> 1
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
