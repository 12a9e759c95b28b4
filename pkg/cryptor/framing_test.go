package cryptor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/frame"
)

func TestUnencryptedBytesAudio(t *testing.T) {
	f := frame.NewAudioFrame(frame.DirectionSender, 1, 0, []byte{1, 2, 3})
	assert.Equal(t, uint8(1), unencryptedBytes(f, frame.MediaTypeAudio))
}

func TestUnencryptedBytesVP8(t *testing.T) {
	key := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecVP8, true, make([]byte, 64))
	delta := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecVP8, false, make([]byte, 64))

	assert.Equal(t, uint8(10), unencryptedBytes(key, frame.MediaTypeVideo))
	assert.Equal(t, uint8(3), unencryptedBytes(delta, frame.MediaTypeVideo))
}

func TestUnencryptedBytesAV1AndUnknown(t *testing.T) {
	av1 := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecAV1, true, make([]byte, 64))
	generic := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecGeneric, true, make([]byte, 64))
	vp9 := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecVP9, true, make([]byte, 64))

	assert.Equal(t, uint8(0), unencryptedBytes(av1, frame.MediaTypeVideo))
	assert.Equal(t, uint8(0), unencryptedBytes(generic, frame.MediaTypeVideo))
	assert.Equal(t, uint8(0), unencryptedBytes(vp9, frame.MediaTypeVideo))
}

func TestUnencryptedBytesH264(t *testing.T) {
	// SPS, PPS, then the IDR slice the prefix must reach into.
	data := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1E,
		0x00, 0x00, 0x01, 0x68, 0xCE,
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x21,
	}
	f := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecH264, true, data)

	// The IDR header starts at offset 15, so 15+2 bytes stay clear.
	assert.Equal(t, uint8(17), unencryptedBytes(f, frame.MediaTypeVideo))
}

func TestUnencryptedBytesH264NoSlice(t *testing.T) {
	// Only SPS and PPS; nothing to leave clear.
	data := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1E,
		0x00, 0x00, 0x01, 0x68, 0xCE,
	}
	f := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecH264, true, data)
	assert.Equal(t, uint8(0), unencryptedBytes(f, frame.MediaTypeVideo))
}

func TestIsH264(t *testing.T) {
	h := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecH264, true, nil)
	v := frame.NewVideoFrame(frame.DirectionSender, 1, 0, frame.VideoCodecVP8, true, nil)
	a := frame.NewAudioFrame(frame.DirectionSender, 1, 0, nil)

	assert.True(t, isH264(h, frame.MediaTypeVideo))
	assert.False(t, isH264(v, frame.MediaTypeVideo))
	assert.False(t, isH264(h, frame.MediaTypeAudio))
	assert.False(t, isH264(a, frame.MediaTypeAudio))
}
