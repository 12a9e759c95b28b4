package frame

// Direction tells a cryptor which way a frame is travelling. Outbound
// frames get encrypted, inbound frames get decrypted.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionSender
	DirectionReceiver
)

func (d Direction) String() string {
	switch d {
	case DirectionSender:
		return "sender"
	case DirectionReceiver:
		return "receiver"
	}
	return "unknown"
}

// MediaType splits cryptors into audio and video flavours. The flavour
// decides how much of a payload stays in the clear and how delivery sinks
// are looked up.
type MediaType int

const (
	MediaTypeAudio MediaType = iota
	MediaTypeVideo
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	}
	return "unknown"
}

// VideoCodec identifies the payload format of a video frame.
type VideoCodec int

const (
	VideoCodecGeneric VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecAV1
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "vp8"
	case VideoCodecVP9:
		return "vp9"
	case VideoCodecH264:
		return "h264"
	case VideoCodecAV1:
		return "av1"
	}
	return "generic"
}

// Transformable is one encoded media frame moving through a cryptor.
// Data returns the full payload and SetData replaces it after the
// transform; implementations need no synchronization because a cryptor
// touches a frame from a single goroutine.
type Transformable interface {
	Direction() Direction
	SSRC() uint32
	Timestamp() uint32
	Data() []byte
	SetData(data []byte)
}

// VideoTransformable adds the codec facts a video cryptor needs to decide
// how many leading bytes stay unencrypted.
type VideoTransformable interface {
	Transformable
	Codec() VideoCodec
	IsKeyFrame() bool
}

// Frame carries the fields audio and video frames share.
type Frame struct {
	direction Direction
	ssrc      uint32
	timestamp uint32
	data      []byte
}

func (f *Frame) Direction() Direction { return f.direction }
func (f *Frame) SSRC() uint32         { return f.ssrc }
func (f *Frame) Timestamp() uint32    { return f.timestamp }
func (f *Frame) Data() []byte         { return f.data }
func (f *Frame) SetData(data []byte)  { f.data = data }

// AudioFrame is one encoded audio frame.
type AudioFrame struct {
	Frame
}

func NewAudioFrame(direction Direction, ssrc, timestamp uint32, data []byte) *AudioFrame {
	return &AudioFrame{
		Frame: Frame{
			direction: direction,
			ssrc:      ssrc,
			timestamp: timestamp,
			data:      data,
		},
	}
}

// VideoFrame is one encoded video frame plus the codec facts that travel
// out of band with it.
type VideoFrame struct {
	Frame
	codec    VideoCodec
	keyFrame bool
}

func NewVideoFrame(direction Direction, ssrc, timestamp uint32, codec VideoCodec, keyFrame bool, data []byte) *VideoFrame {
	return &VideoFrame{
		Frame: Frame{
			direction: direction,
			ssrc:      ssrc,
			timestamp: timestamp,
			data:      data,
		},
		codec:    codec,
		keyFrame: keyFrame,
	}
}

func (f *VideoFrame) Codec() VideoCodec { return f.codec }
func (f *VideoFrame) IsKeyFrame() bool  { return f.keyFrame }
