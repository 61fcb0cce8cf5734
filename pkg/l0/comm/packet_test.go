package comm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/crc"
)

func TestAppendEscaped(t *testing.T) {
	testCases := []struct {
		name   string
		in     []byte
		expect []byte
	}{
		{"plain", []byte{1, 2, 3}, []byte{1, 2, 3}},
		{"start", []byte{0x0d}, []byte{0x3b, 0x00}},
		{"terminate", []byte{0x3a}, []byte{0x3b, 0x01}},
		{"escape", []byte{0x3b}, []byte{0x3b, 0x02}},
		{"mixed", []byte{0x41, 0x0d, 0x3a, 0x3b, 0x42}, []byte{0x41, 0x3b, 0x00, 0x3b, 0x01, 0x3b, 0x02, 0x42}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := AppendEscaped(nil, tc.in)
			require.Equal(t, tc.expect, out)
			require.Equal(t, tc.in, AppendUnescaped(nil, out))
		})
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	inputs := [][]byte{all, {0x3b, 0x3b, 0x3b}, {0x0d, 0x0d}, {0x3a}}
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		p := make([]byte, 1+rnd.Intn(64))
		for j := range p {
			// Bias towards reserved bytes.
			switch rnd.Intn(4) {
			case 0:
				p[j] = StartByte
			case 1:
				p[j] = TerminateByte
			case 2:
				p[j] = EscapeByte
			default:
				p[j] = byte(rnd.Intn(256))
			}
		}
		inputs = append(inputs, p)
	}
	for n, in := range inputs {
		escaped := AppendEscaped(nil, in)
		for _, b := range escaped {
			require.Falsef(t, b == StartByte || b == TerminateByte, "input[%d] leaks a delimiter", n)
		}
		require.Equalf(t, in, AppendUnescaped(nil, escaped), "input[%d] round trip", n)
	}
}

func TestUnescapeUnknownCode(t *testing.T) {
	require.Equal(t, []byte{0x3b, 0x10}, AppendUnescaped(nil, []byte{0x3b, 0x07, 0x10}))
	require.Equal(t, []byte{0x01}, AppendUnescaped(nil, []byte{0x01, 0x3b}))
}

func TestAppendFrame(t *testing.T) {
	frame := AppendFrame(nil, []byte{8}, []byte{3}, []byte{0x0d, 0x3a})
	require.Equal(t, StartByte, frame[0])
	require.Equal(t, TerminateByte, frame[len(frame)-1])

	inner := AppendUnescaped(nil, frame[1:len(frame)-1])
	require.Len(t, inner, 4+crcSize)
	require.Equal(t, []byte{8, 3, 0x0d, 0x3a}, inner[:4])
	require.Zero(t, crc.CRC16(crc.Seed16, inner))

	// Field boundaries don't matter on the wire.
	require.Equal(t, frame, AppendFrame(nil, []byte{8, 3, 0x0d, 0x3a}))
	require.True(t, len(frame) <= EncodedSize(4))
}

func TestAppendFrameCorrupted(t *testing.T) {
	frame := AppendFrame(nil, []byte("payload"))
	inner := AppendUnescaped(nil, frame[1:len(frame)-1])
	for i := 0; i < len(inner)*8; i++ {
		corrupted := append([]byte{}, inner...)
		corrupted[i/8] ^= 1 << uint(i%8)
		_, ok := payloadOf(corrupted)
		require.Falsef(t, ok, "bit %d flip undetected", i)
	}
	payload, ok := payloadOf(inner)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), payload)
}
