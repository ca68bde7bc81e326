package sar

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pdu builds a proxy PDU of n bytes with message type typ.
func pdu(typ byte, n int) []byte {
	b := make([]byte, n)
	if n > 0 {
		b[0] = typ
	}
	for i := 1; i < n; i++ {
		b[i] = byte(i * 7)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	for _, mtu := range []int{2, 3, 8, 20} {
		chunk := mtu - 1
		for n := 0; n <= 10*chunk+1; n++ {
			in := pdu(0x02, n)

			segs, err := Segment(in, mtu)
			require.NoError(t, err)

			var r Reassembler
			var out []byte
			done := false
			for i, s := range segs {
				require.LessOrEqual(t, len(s), mtu)
				require.False(t, done, "mtu %d len %d: complete before segment %d", mtu, n, i)
				out, done, err = r.Feed(s)
				require.NoError(t, err)
			}

			require.True(t, done, "mtu %d len %d", mtu, n)
			if !bytes.Equal(in, out) {
				t.Fatalf("mtu %d len %d: exp %x got %x", mtu, n, in, out)
			}
			assert.False(t, r.InProgress())
		}
	}
}

func TestSinglePassthrough(t *testing.T) {
	in := pdu(0x00, 20)
	segs, err := Segment(in, 20)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, in, segs[0])
}

func TestSegmentHeaders(t *testing.T) {
	// 1 header byte + 10 payload bytes over mtu 5 -> windows of 4: 4, 4, 2
	in := pdu(0x03, 11)
	segs, err := Segment(in, 5)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, byte(0x43), segs[0][0])
	assert.Equal(t, byte(0x83), segs[1][0])
	assert.Equal(t, byte(0xC3), segs[2][0])
	assert.Equal(t, in[1:5], segs[0][1:])
	assert.Equal(t, in[9:], segs[2][1:])
}

func TestSegmentTwoWindows(t *testing.T) {
	segs, err := Segment(pdu(0x00, 9), 5)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, First, KindOf(segs[0]))
	assert.Equal(t, Last, KindOf(segs[1]))
}

func TestSegmentRejects(t *testing.T) {
	_, err := Segment(pdu(0x00, 4), 1)
	assert.Equal(t, ErrMTU, err)

	_, err = Segment(pdu(0x40, 10), 4)
	assert.Equal(t, ErrAlreadySegmented, err)
}

func TestDuplicateFirst(t *testing.T) {
	var r Reassembler

	_, done, err := r.Feed([]byte{0x40, 0xaa, 0xaa, 0xaa})
	require.NoError(t, err)
	require.False(t, done)

	_, done, err = r.Feed([]byte{0x42, 0x01, 0x02})
	require.NoError(t, err)
	require.False(t, done)

	out, done, err := r.Feed([]byte{0xC2, 0x03})
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{0x02, 0x01, 0x02, 0x03}, out)
}

func TestUnexpectedSegment(t *testing.T) {
	var r Reassembler

	_, _, err := r.Feed([]byte{0x80, 0x01})
	assert.Equal(t, ErrUnexpectedSegment, errors.Cause(err))

	_, _, err = r.Feed([]byte{0xC0, 0x01})
	assert.Equal(t, ErrUnexpectedSegment, errors.Cause(err))

	// a complete message still passes after the error
	out, done, err := r.Feed([]byte{0x01, 0x02})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte{0x01, 0x02}, out)
}

func TestReset(t *testing.T) {
	var r Reassembler

	_, _, err := r.Feed([]byte{0x40, 0x01})
	require.NoError(t, err)
	assert.True(t, r.InProgress())

	r.Reset()
	assert.False(t, r.InProgress())

	_, _, err = r.Feed([]byte{0xC0, 0x02})
	assert.Error(t, err)
}

func TestEmptyChunk(t *testing.T) {
	var r Reassembler
	out, done, err := r.Feed(nil)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, out)
}
