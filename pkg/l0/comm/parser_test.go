package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type parserTestSequence struct {
	in     []byte
	expect ParseResult
	final  ParseResult
}

type parserTestSequenceBuilder struct {
	seq []parserTestSequence
}

func parserTestSequences() *parserTestSequenceBuilder {
	return &parserTestSequenceBuilder{}
}

func (b *parserTestSequenceBuilder) on(state RecvState, in ...byte) *parserTestSequenceBuilder {
	s := parserTestSequence{in: in, expect: ParseResult{State: state}}
	s.final = s.expect
	b.seq = append(b.seq, s)
	return b
}

func (b *parserTestSequenceBuilder) onIdle(in ...byte) *parserTestSequenceBuilder {
	return b.on(RecvIdle, in...)
}

func (b *parserTestSequenceBuilder) onReceiving(in ...byte) *parserTestSequenceBuilder {
	return b.on(RecvFrame, in...)
}

func (b *parserTestSequenceBuilder) onFrame(payload ...byte) *parserTestSequenceBuilder {
	return b.onReceiving(AppendFrame(nil, payload)...).payload(payload...)
}

func (b *parserTestSequenceBuilder) final(pr ParseResult) *parserTestSequenceBuilder {
	b.seq[len(b.seq)-1].final = pr
	return b
}

func (b *parserTestSequenceBuilder) payload(p ...byte) *parserTestSequenceBuilder {
	return b.final(ParseResult{State: RecvIdle, Payload: p})
}

func (b *parserTestSequenceBuilder) dropped(state RecvState, reason DropReason) *parserTestSequenceBuilder {
	return b.final(ParseResult{State: state, Drop: reason})
}

func (b *parserTestSequenceBuilder) build() []parserTestSequence {
	return b.seq
}

func TestParser(t *testing.T) {
	testCases := []struct {
		name    string
		maxSize int
		seq     []parserTestSequence
	}{
		{
			name: "single frame",
			seq: parserTestSequences().
				onFrame(8, 3).
				onFrame(0x09, 0x01, 0x10, 0x20).
				build(),
		},
		{
			name: "reserved bytes in payload",
			seq: parserTestSequences().
				onFrame(0x0d, 0x3a, 0x3b, 0x00, 0x01, 0x02).
				build(),
		},
		{
			name: "garbage before frame",
			seq: parserTestSequences().
				onIdle(1, 2, 3, 0x3a, 0x3b, 0x02, 9).
				onFrame(1, 2).
				build(),
		},
		{
			name: "bad checksum",
			seq: parserTestSequences().
				onReceiving(0x0d, 1, 2, 3, 0x3a).dropped(RecvIdle, DropChecksum).
				onFrame(5).
				build(),
		},
		{
			name: "empty frame",
			seq: parserTestSequences().
				onReceiving(0x0d, 0x3a).dropped(RecvIdle, DropChecksum).
				build(),
		},
		{
			name: "start restarts frame",
			seq: parserTestSequences().
				onReceiving(0x0d, 1, 2).
				onReceiving(0x0d).dropped(RecvFrame, DropRestart).
				onReceiving(AppendFrame(nil, []byte{7})[1:]...).payload(7).
				build(),
		},
		{
			name:    "oversize",
			maxSize: 4,
			seq: parserTestSequences().
				onReceiving(0x0d, 1, 2, 3, 4).
				onIdle(5).dropped(RecvIdle, DropOversize).
				onIdle(6, 0x3a).
				onFrame(1).
				build(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parser := Parser{MaxSize: tc.maxSize}
			for n, s := range tc.seq {
				var pr ParseResult
				for i, b := range s.in {
					pr = parser.Parse(b)
					if i+1 < len(s.in) {
						require.Equalf(t, s.expect, pr, "seq[%d][%d] expect mismatch", n, i)
					}
				}
				if pr.Payload != nil {
					pr.Payload = append([]byte{}, pr.Payload...)
				}
				require.Equalf(t, s.final, pr, "seq[%d] final mismatch", n)
			}
		})
	}
}

func TestParserReset(t *testing.T) {
	var parser Parser
	parser.Parse(StartByte)
	parser.Parse(1)
	require.Equal(t, RecvFrame, parser.State())
	parser.Reset()
	require.Equal(t, RecvIdle, parser.State())
	pr := parser.Parse(TerminateByte)
	require.Equal(t, ParseResult{State: RecvIdle}, pr)
}
