// Package rtpcrypto applies the frame cryptor's wire format to individual
// RTP packets. It fits audio, where one packet carries one complete
// encoded frame; packetized video frames span several packets and belong
// to the frame level cryptor instead.
package rtpcrypto

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/ghettovoice/gosip/log"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/cryptor"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/keys"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/utils"
)

// unencryptedAudioBytes keeps the first payload byte readable, same as the
// frame cryptor does for audio.
const unencryptedAudioBytes = 1

var (
	ErrMissingKey     = errors.New("rtpcrypto: no key installed")
	ErrShortPayload   = errors.New("rtpcrypto: payload too short")
	ErrIVSizeMismatch = errors.New("rtpcrypto: trailer iv size mismatch")
)

// PacketCryptor seals and opens RTP payloads:
//
//	-----------+---------------------+-----+---------+--------+---------
//	clear byte | AES-GCM(payload...) | tag | IV (12) | IV len | key idx
//	-----------+---------------------+-----+---------+--------+---------
//
// The layout matches the frame cryptor byte for byte, so a packet sealed
// here opens in a frame pipeline and vice versa.
type PacketCryptor struct {
	participantID string
	provider      keys.Provider
	enabled       *atomic.Bool

	mu         sync.Mutex
	keyIndex   int
	sendCounts map[uint32]uint32
	rng        *rand.Rand

	logger log.Logger
}

func NewPacketCryptor(participantID string, provider keys.Provider) *PacketCryptor {
	return &PacketCryptor{
		participantID: participantID,
		provider:      provider,
		enabled:       atomic.NewBool(true),
		sendCounts:    make(map[uint32]uint32),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:        utils.NewLogrusLogger(utils.DefaultLogLevel, "PacketCryptor", nil),
	}
}

func (p *PacketCryptor) ParticipantID() string { return p.participantID }

// SetEnabled turns the cryptor on or off; while off, payloads pass through
// unchanged in both directions.
func (p *PacketCryptor) SetEnabled(enabled bool) { p.enabled.Store(enabled) }
func (p *PacketCryptor) Enabled() bool           { return p.enabled.Load() }

// SetKeyIndex picks the ring slot outbound packets are sealed with.
func (p *PacketCryptor) SetKeyIndex(index int) error {
	if ringSize := p.provider.Options().KeyRingSize; index < 0 || index >= ringSize {
		return errors.Errorf("key index %d outside ring of %d", index, ringSize)
	}
	p.mu.Lock()
	p.keyIndex = index
	p.mu.Unlock()
	return nil
}

func (p *PacketCryptor) KeyIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keyIndex
}

func (p *PacketCryptor) handler() *keys.ParticipantKeyHandler {
	if p.provider.Options().SharedKey {
		return p.provider.GetSharedKey(p.participantID)
	}
	return p.provider.GetKey(p.participantID)
}

// EncryptPayload seals one payload; hdr supplies the SSRC and timestamp
// the IV is derived from. Empty payloads pass through untouched.
func (p *PacketCryptor) EncryptPayload(hdr *rtp.Header, payload []byte) ([]byte, error) {
	if len(payload) == 0 || !p.enabled.Load() {
		return payload, nil
	}

	p.mu.Lock()
	keyIndex := p.keyIndex
	p.mu.Unlock()

	handler := p.handler()
	var keySet *keys.KeySet
	if handler != nil {
		keySet = handler.GetKeySet(keyIndex)
	}
	if keySet == nil {
		return nil, ErrMissingKey
	}

	header := payload[:unencryptedAudioBytes]
	iv := p.makeIV(hdr.SSRC, hdr.Timestamp)

	sealed, err := cryptor.AesGcmEncrypt(keySet.EncryptionKey, iv, header, payload[unencryptedAudioBytes:])
	if err != nil {
		return nil, errors.Wrap(err, "seal rtp payload")
	}

	out := make([]byte, 0, len(header)+len(sealed)+len(iv)+2)
	out = append(out, header...)
	out = append(out, sealed...)
	out = append(out, iv...)
	out = append(out, byte(len(iv)), byte(keyIndex))
	return out, nil
}

// DecryptPayload opens one sealed payload. A payload ending in the
// provider's magic bytes comes back as is minus the marker; when nothing
// but the marker remains the result is (nil, nil), telling the caller to
// drop the packet.
func (p *PacketCryptor) DecryptPayload(hdr *rtp.Header, payload []byte) ([]byte, error) {
	if len(payload) == 0 || !p.enabled.Load() {
		return payload, nil
	}

	options := p.provider.Options()
	if len(options.UncryptedMagicBytes) > 0 && bytes.HasSuffix(payload, options.UncryptedMagicBytes) {
		remaining := payload[:len(payload)-len(options.UncryptedMagicBytes)]
		if len(remaining) == 0 {
			return nil, nil
		}
		return remaining, nil
	}

	if len(payload) < unencryptedAudioBytes+2 {
		return nil, ErrShortPayload
	}
	ivSize := int(payload[len(payload)-2])
	keyIndex := int(payload[len(payload)-1])
	if ivSize != cryptor.AlgorithmAesGcm.IVSize() {
		return nil, ErrIVSizeMismatch
	}
	ivStart := len(payload) - 2 - ivSize
	if ivStart < unencryptedAudioBytes {
		return nil, ErrShortPayload
	}

	handler := p.handler()
	var keySet *keys.KeySet
	if handler != nil {
		keySet = handler.GetKeySet(keyIndex)
	}
	if keySet == nil {
		return nil, ErrMissingKey
	}

	header := payload[:unencryptedAudioBytes]
	iv := payload[ivStart : len(payload)-2]

	plain, err := cryptor.AesGcmDecrypt(keySet.EncryptionKey, iv, header, payload[unencryptedAudioBytes:ivStart])
	if err != nil {
		return nil, errors.Wrap(err, "open rtp payload")
	}

	out := make([]byte, 0, len(header)+len(plain))
	out = append(out, header...)
	out = append(out, plain...)
	return out, nil
}

// makeIV matches the frame cryptor's construction: SSRC, timestamp, and
// timestamp minus a per stream counter seeded at a random 16 bit offset.
func (p *PacketCryptor) makeIV(ssrc, timestamp uint32) []byte {
	p.mu.Lock()
	count, known := p.sendCounts[ssrc]
	if !known {
		count = uint32(p.rng.Intn(0x10000))
	}
	p.sendCounts[ssrc] = count + 1
	p.mu.Unlock()

	iv := make([]byte, cryptor.AlgorithmAesGcm.IVSize())
	binary.BigEndian.PutUint32(iv[0:4], ssrc)
	binary.BigEndian.PutUint32(iv[4:8], timestamp)
	binary.BigEndian.PutUint32(iv[8:12], timestamp-(count%0x10000))
	return iv
}
