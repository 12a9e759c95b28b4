package rtpcrypto

import (
	"strings"

	"github.com/ghettovoice/gosip/log"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/keys"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/utils"
)

// Interceptor plugs payload encryption into a pion interceptor chain:
// audio streams are sealed on write and opened on read. Video streams pass
// through untouched, they belong to the frame level cryptor.
type Interceptor struct {
	interceptor.NoOp
	cryptor *PacketCryptor
	logger  log.Logger
}

func NewInterceptor(cryptor *PacketCryptor) *Interceptor {
	return &Interceptor{
		cryptor: cryptor,
		logger:  utils.NewLogrusLogger(utils.DefaultLogLevel, "Interceptor", nil),
	}
}

// Cryptor exposes the underlying packet cryptor so callers can flip its
// key index or enabled flag at run time.
func (i *Interceptor) Cryptor() *PacketCryptor { return i.cryptor }

// BindLocalStream seals outbound payloads of audio streams.
func (i *Interceptor) BindLocalStream(info *interceptor.StreamInfo, writer interceptor.RTPWriter) interceptor.RTPWriter {
	if !isAudioStream(info) {
		return writer
	}
	i.logger.Infof("sealing outbound stream ssrc=%d mime=%v", info.SSRC, info.MimeType)
	return interceptor.RTPWriterFunc(func(header *rtp.Header, payload []byte, attributes interceptor.Attributes) (int, error) {
		sealed, err := i.cryptor.EncryptPayload(header, payload)
		if err != nil {
			i.logger.Errorf("seal ssrc=%d: %v", header.SSRC, err)
			return 0, err
		}
		return writer.Write(header, sealed, attributes)
	})
}

// BindRemoteStream opens inbound payloads of audio streams. Packets that
// do not open and marker only frames are dropped; the read then moves on
// to the next packet.
func (i *Interceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	if !isAudioStream(info) {
		return reader
	}
	i.logger.Infof("opening inbound stream ssrc=%d mime=%v", info.SSRC, info.MimeType)
	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		for {
			n, attributes, err := reader.Read(b, a)
			if err != nil {
				return n, attributes, err
			}

			var pkt rtp.Packet
			if err := pkt.Unmarshal(b[:n]); err != nil {
				return n, attributes, err
			}

			plain, err := i.cryptor.DecryptPayload(&pkt.Header, pkt.Payload)
			if err != nil {
				i.logger.Warnf("open ssrc=%d seq=%d: %v", pkt.SSRC, pkt.SequenceNumber, err)
				continue
			}
			if plain == nil {
				continue
			}

			pkt.Payload = plain
			n, err = pkt.MarshalTo(b)
			return n, attributes, err
		}
	})
}

func isAudioStream(info *interceptor.StreamInfo) bool {
	return strings.HasPrefix(strings.ToLower(info.MimeType), "audio/")
}

// Factory builds one Interceptor per peer connection, all drawing keys
// from the same provider. It satisfies interceptor.Factory, so it can be
// added to a pion interceptor registry next to the stock ones.
type Factory struct {
	participantID string
	provider      keys.Provider
}

func NewFactory(participantID string, provider keys.Provider) *Factory {
	return &Factory{participantID: participantID, provider: provider}
}

func (f *Factory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return NewInterceptor(NewPacketCryptor(f.participantID, f.provider)), nil
}
