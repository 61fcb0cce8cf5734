package comm

import "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/crc"

// Frame delimiters.
const (
	StartByte     byte = 0x0D
	TerminateByte byte = 0x3A
	EscapeByte    byte = 0x3B
)

// Codes following EscapeByte.
const (
	startCode     byte = 0x00
	terminateCode byte = 0x01
	escapeCode    byte = 0x02
)

// crcSize is the number of trailing checksum bytes in a frame.
const crcSize = 2

// IsDelimiter reports whether b must be escaped inside a frame.
func IsDelimiter(b byte) bool {
	return b == StartByte || b == TerminateByte || b == EscapeByte
}

// AppendEscaped appends p to dst with delimiters escaped.
func AppendEscaped(dst, p []byte) []byte {
	for _, b := range p {
		switch b {
		case StartByte:
			dst = append(dst, EscapeByte, startCode)
		case TerminateByte:
			dst = append(dst, EscapeByte, terminateCode)
		case EscapeByte:
			dst = append(dst, EscapeByte, escapeCode)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// AppendUnescaped appends the decoded form of an escaped run to dst.
// A trailing ESCAPE without a code is dropped.
func AppendUnescaped(dst, p []byte) []byte {
	escaped := false
	for _, b := range p {
		if escaped {
			dst = append(dst, unescape(b))
			escaped = false
			continue
		}
		if b == EscapeByte {
			escaped = true
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// unescape maps an escape code back to the delimiter it stands for.
// Unknown codes decode as ESCAPE.
func unescape(code byte) byte {
	switch code {
	case startCode:
		return StartByte
	case terminateCode:
		return TerminateByte
	default:
		return EscapeByte
	}
}

// AppendFrame encodes fields as one frame appended to dst.
func AppendFrame(dst []byte, fields ...[]byte) []byte {
	sum := crc.Seed16
	dst = append(dst, StartByte)
	for _, f := range fields {
		dst = AppendEscaped(dst, f)
		sum = crc.CRC16(sum, f)
	}
	dst = AppendEscaped(dst, []byte{byte(sum >> 8), byte(sum)})
	return append(dst, TerminateByte)
}

// EncodedSize returns the worst case encoded frame size for payloadSize.
func EncodedSize(payloadSize int) int {
	return 2*(payloadSize+crcSize) + 2
}

// payloadOf validates decoded frame contents (payload and CRC bytes) and
// returns the payload.
func payloadOf(decoded []byte) ([]byte, bool) {
	if len(decoded) < crcSize || crc.CRC16(crc.Seed16, decoded) != 0 {
		return nil, false
	}
	return decoded[:len(decoded)-crcSize], true
}

func fieldsSize(fields [][]byte) (n int) {
	for _, f := range fields {
		n += len(f)
	}
	return
}
