package crc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	require.Equal(t, uint16(0x29B1), CRC16(Seed16, []byte("123456789")))
	require.Equal(t, Seed16, CRC16(Seed16, nil))

	// Chained updates match a single pass.
	whole := CRC16(Seed16, []byte("123456789"))
	part := CRC16(CRC16(Seed16, []byte("1234")), []byte("56789"))
	require.Equal(t, whole, part)
}

func TestCRC16Residue(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x00},
		{0x0d, 0x3a, 0x3b},
		{8, 3},
		[]byte("hello, serial link"),
	}
	for _, p := range payloads {
		c := CRC16(Seed16, p)
		framed := append(append([]byte{}, p...), byte(c>>8), byte(c))
		require.Zero(t, CRC16(Seed16, framed), "payload %v", p)

		if len(p) > 0 {
			framed[0] ^= 0x10
			require.NotZero(t, CRC16(Seed16, framed), "corrupted payload %v", p)
		}
	}
}

func TestCRC8(t *testing.T) {
	testCases := []struct {
		name   string
		seed   byte
		in     []byte
		expect byte
	}{
		{"empty keeps seed", 0x5a, nil, 0x5a},
		{"zero byte", 0, []byte{0}, 0},
		{"single bit", 0, []byte{0x01}, 0x41},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, CRC8(tc.seed, tc.in))
		})
	}

	// Seeding with a previous result continues the computation.
	require.Equal(t, CRC8(0, []byte{1, 2, 3}), CRC8(CRC8(0, []byte{1}), []byte{2, 3}))
}
