package h264

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNaluType(t *testing.T) {
	cases := []struct {
		header byte
		want   NaluType
	}{
		{0x65, NaluTypeIdr},
		{0x41, NaluTypeSlice},
		{0x67, NaluTypeSps},
		{0x68, NaluTypePps},
		{0x06, NaluTypeSei},
		{0x78, NaluTypeFuA},
	}
	for _, c := range cases {
		if got := ParseNaluType(c.header); got != c.want {
			t.Errorf("ParseNaluType(%#x) = %v; want %v", c.header, got, c.want)
		}
	}
}

func TestFindNaluIndices(t *testing.T) {
	// SPS behind a short start code, IDR behind a long one.
	buf := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84,
	}

	indices := FindNaluIndices(buf)
	require.Len(t, indices, 2)

	assert.Equal(t, NaluIndex{StartOffset: 0, PayloadStartOffset: 3, PayloadSize: 4}, indices[0])
	assert.Equal(t, NaluIndex{StartOffset: 7, PayloadStartOffset: 11, PayloadSize: 3}, indices[1])

	assert.Equal(t, NaluTypeSps, ParseNaluType(buf[indices[0].PayloadStartOffset]))
	assert.Equal(t, NaluTypeIdr, ParseNaluType(buf[indices[1].PayloadStartOffset]))
}

func TestFindNaluIndicesShortBuffer(t *testing.T) {
	if got := FindNaluIndices([]byte{0x00, 0x00}); len(got) != 0 {
		t.Errorf("FindNaluIndices on short buffer = %v; want none", got)
	}
	if got := FindNaluIndices(nil); len(got) != 0 {
		t.Errorf("FindNaluIndices(nil) = %v; want none", got)
	}
}

func TestFindNaluIndicesNoStartCode(t *testing.T) {
	buf := bytes.Repeat([]byte{0xFF}, 32)
	if got := FindNaluIndices(buf); len(got) != 0 {
		t.Errorf("FindNaluIndices without start codes = %v; want none", got)
	}
}

func TestWriteRbspEscapes(t *testing.T) {
	cases := []struct {
		src  []byte
		want []byte
	}{
		{[]byte{0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x03, 0x00}},
		{[]byte{0x00, 0x00, 0x01, 0x02}, []byte{0x00, 0x00, 0x03, 0x01, 0x02}},
		{[]byte{0x00, 0x00, 0x03, 0x04}, []byte{0x00, 0x00, 0x03, 0x03, 0x04}},
		{[]byte{0x01, 0x00, 0x00, 0x04}, []byte{0x01, 0x00, 0x00, 0x04}},
		{[]byte{0xAA, 0xBB}, []byte{0xAA, 0xBB}},
	}
	for _, c := range cases {
		if got := WriteRbsp(nil, c.src); !bytes.Equal(got, c.want) {
			t.Errorf("WriteRbsp(%x) = %x; want %x", c.src, got, c.want)
		}
	}
}

func TestWriteRbspAppendsToDst(t *testing.T) {
	dst := []byte{0xDE, 0xAD}
	got := WriteRbsp(dst, []byte{0x00, 0x00, 0x02})
	assert.Equal(t, []byte{0xDE, 0xAD, 0x00, 0x00, 0x03, 0x02}, got)
}

func TestRbspRoundTrip(t *testing.T) {
	srcs := [][]byte{
		{0x00, 0x00, 0x00, 0x00, 0x00},
		{0x00, 0x00, 0x01, 0x00, 0x00, 0x02, 0x00, 0x00, 0x03},
		{0xFF, 0x00, 0x00, 0x00, 0xFF},
		bytes.Repeat([]byte{0x00}, 64),
	}
	for _, src := range srcs {
		escaped := WriteRbsp(nil, src)
		if got := ParseRbsp(escaped); !bytes.Equal(got, src) {
			t.Errorf("round trip of %x via %x = %x", src, escaped, got)
		}
	}
}

func TestNeedsRbspUnescaping(t *testing.T) {
	assert.True(t, NeedsRbspUnescaping([]byte{0x00, 0x00, 0x03}))
	assert.True(t, NeedsRbspUnescaping([]byte{0xFF, 0x00, 0x00, 0x03, 0x01}))
	assert.False(t, NeedsRbspUnescaping([]byte{0x00, 0x00, 0x02}))
	assert.False(t, NeedsRbspUnescaping([]byte{0x00, 0x03}))
	assert.False(t, NeedsRbspUnescaping(nil))
}
