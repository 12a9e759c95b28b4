package frame

import (
	"strings"

	"github.com/pion/webrtc/v3"
)

// CodecFromMimeType maps a negotiated RTP mime type to the codec tag a
// video cryptor works with. Unknown video types fall back to
// VideoCodecGeneric, which encrypts the whole payload.
func CodecFromMimeType(mimeType string) VideoCodec {
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return VideoCodecH264
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return VideoCodecVP8
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP9):
		return VideoCodecVP9
	case strings.EqualFold(mimeType, webrtc.MimeTypeAV1):
		return VideoCodecAV1
	}
	return VideoCodecGeneric
}
