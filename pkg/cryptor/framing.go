package cryptor

import (
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/frame"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/h264"
)

// unencryptedBytes returns how many leading payload bytes stay in the
// clear so routers and depacketizers keep working on encrypted frames.
// Audio keeps one byte. VP8 keeps its uncompressed header, 10 bytes for a
// key frame and 3 for a delta frame. H.264 keeps everything through the
// first byte after the first IDR or non-IDR slice header. AV1 and unknown
// codecs encrypt the whole payload.
func unencryptedBytes(f frame.Transformable, mediaType frame.MediaType) uint8 {
	if mediaType == frame.MediaTypeAudio {
		return 1
	}

	vf, ok := f.(frame.VideoTransformable)
	if !ok {
		return 0
	}
	switch vf.Codec() {
	case frame.VideoCodecVP8:
		if vf.IsKeyFrame() {
			return 10
		}
		return 3
	case frame.VideoCodecH264:
		data := f.Data()
		for _, index := range h264.FindNaluIndices(data) {
			switch h264.ParseNaluType(data[index.PayloadStartOffset]) {
			case h264.NaluTypeIdr, h264.NaluTypeSlice:
				return uint8(index.PayloadStartOffset + 2)
			}
		}
		return 0
	case frame.VideoCodecAV1:
		return 0
	}
	return 0
}

// isH264 reports whether the escape rules for Annex B streams apply to f.
func isH264(f frame.Transformable, mediaType frame.MediaType) bool {
	if mediaType != frame.MediaTypeVideo {
		return false
	}
	vf, ok := f.(frame.VideoTransformable)
	return ok && vf.Codec() == frame.VideoCodecH264
}
