package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

func TestU29RoundTrip(t *testing.T) {
	cases := []struct {
		value uint32
		bytes []byte
	}{
		{0x00000000, []byte{0x00}},
		{0x0000007F, []byte{0x7F}},
		{0x00000080, []byte{0x81, 0x00}},
		{0x00003FFF, []byte{0xFF, 0x7F}},
		{0x00004000, []byte{0x81, 0x80, 0x00}},
		{0x001FFFFF, []byte{0xFF, 0xFF, 0x7F}},
		{0x00200000, []byte{0x80, 0xC0, 0x80, 0x00}},
		{0x1FFFFFFF, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		require.NoError(t, w.WriteU29(tc.value))
		assert.Equal(t, tc.bytes, buf.Bytes(), "encoding of %#x", tc.value)

		r := NewReader(bytes.NewReader(tc.bytes))
		got, err := r.ReadU29()
		require.NoError(t, err)
		assert.Equal(t, tc.value, got, "decoding of % x", tc.bytes)
	}
}

func TestU29FourthByteCarriesEightBits(t *testing.T) {
	// The low byte of a 4-byte varint contributes all 8 bits, so 0x80
	// in final position is data, not a continuation flag.
	r := NewReader(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80}))
	got, err := r.ReadU29()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80), got)
}

func TestWriteU29Range(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.WriteU29(MaxU29 + 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrU29Range)
	assert.Zero(t, buf.Len())
}

func TestReadU29Truncated(t *testing.T) {
	for _, in := range [][]byte{{0x81}, {0x81, 0x80}, {0x81, 0x80, 0x80}} {
		r := NewReader(bytes.NewReader(in))
		_, err := r.ReadU29()
		assert.ErrorIs(t, err, amf.ErrMalformedVarint, "input % x", in)
	}
}

func TestReaderTruncation(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01, 0x02}))
	_, err := r.ReadUint32()
	require.Error(t, err)
	assert.ErrorIs(t, err, amf.ErrTruncated)
}

func TestReaderOffset(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05}))
	_, err := r.ReadByte()
	require.NoError(t, err)
	_, err = r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Offset())
}

func TestWriteFloat64CanonicalNaN(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	// A NaN with a nonzero payload must come out as the canonical quiet NaN.
	require.NoError(t, w.WriteFloat64(math.Float64frombits(0x7FF0000000000001)))
	require.Equal(t, 8, buf.Len())
	assert.Equal(t, uint64(0x7FF8000000000000), binary.BigEndian.Uint64(buf.Bytes()))
}

func TestFloat64Infinities(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFloat64(math.Inf(1)))
	require.NoError(t, w.WriteFloat64(math.Inf(-1)))

	assert.Equal(t, uint64(0x7FF0000000000000), binary.BigEndian.Uint64(buf.Bytes()[:8]))
	assert.Equal(t, uint64(0xFFF0000000000000), binary.BigEndian.Uint64(buf.Bytes()[8:]))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	pos, err := r.ReadFloat64()
	require.NoError(t, err)
	neg, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.True(t, math.IsInf(pos, 1))
	assert.True(t, math.IsInf(neg, -1))
}

func TestReadBytesEmpty(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	b, err := r.ReadBytes(0)
	require.NoError(t, err)
	assert.Nil(t, b)
}
