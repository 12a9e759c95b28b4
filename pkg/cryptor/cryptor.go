// Package cryptor implements per frame end to end encryption for real
// time media. A FrameCryptor sits between the encoder and the
// packetizer on the way out, and between the depacketizer and the decoder
// on the way in: codec headers stay readable for routers, everything
// behind them is AES-GCM sealed with keys only the participants hold.
package cryptor

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/ghettovoice/gosip/log"
	"github.com/pkg/errors"
	"github.com/tevino/abool"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/frame"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/h264"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/keys"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/utils"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/worker"
)

// Sink receives frames once the cryptor is done with them. Callbacks run
// on the cryptor's worker goroutine, one at a time, in Transform order.
type Sink interface {
	OnTransformedFrame(f frame.Transformable)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(f frame.Transformable)

func (fn SinkFunc) OnTransformedFrame(f frame.Transformable) { fn(f) }

// Observer hears about cryption state transitions for one participant.
type Observer interface {
	OnFrameCryptionStateChanged(participantID string, state FrameCryptionState)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(participantID string, state FrameCryptionState)

func (fn ObserverFunc) OnFrameCryptionStateChanged(participantID string, state FrameCryptionState) {
	fn(participantID, state)
}

// FrameCryptor encrypts or decrypts every frame of one participant's
// stream in one direction. All crypto work happens on a private worker
// goroutine, so Transform never blocks the media path and frame order is
// preserved end to end.
type FrameCryptor struct {
	participantID string
	mediaType     frame.MediaType
	algorithm     Algorithm
	keyProvider   keys.Provider
	worker        *worker.Worker
	signaling     *worker.Worker
	closed        *abool.AtomicBool

	sinkMu     sync.Mutex
	audioSink  Sink
	videoSinks map[uint32]Sink

	stateMu  sync.Mutex
	enabled  bool
	keyIndex int
	observer Observer

	// The fields below are only touched on the worker goroutine.
	lastEncState FrameCryptionState
	lastDecState FrameCryptionState
	sendCounts   map[uint32]uint32
	rng          *rand.Rand

	logger log.Logger
}

// NewFrameCryptor builds a cryptor for one participant and direction pair.
// It starts disabled; call SetEnabled(true) once keys are in place.
//
// signaling, when not nil, is the worker observer callbacks are posted to.
// Sharing one signaling worker between several cryptors keeps the
// notifications of one observer in a single ordered stream. With a nil
// signaling worker, callbacks run directly on the crypto worker.
func NewFrameCryptor(signaling *worker.Worker, participantID string, mediaType frame.MediaType, algorithm Algorithm, keyProvider keys.Provider) *FrameCryptor {
	if keyProvider == nil {
		panic("cryptor: nil key provider")
	}
	return &FrameCryptor{
		participantID: participantID,
		mediaType:     mediaType,
		algorithm:     algorithm,
		keyProvider:   keyProvider,
		worker:        worker.New("FrameCryptor/" + participantID),
		signaling:     signaling,
		closed:        abool.New(),
		videoSinks:    make(map[uint32]Sink),
		sendCounts:    make(map[uint32]uint32),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:        utils.NewLogrusLogger(utils.DefaultLogLevel, "FrameCryptor", nil),
	}
}

func (c *FrameCryptor) ParticipantID() string      { return c.participantID }
func (c *FrameCryptor) MediaType() frame.MediaType { return c.mediaType }
func (c *FrameCryptor) Algorithm() Algorithm       { return c.algorithm }

// SetEnabled turns the crypto path on or off. While disabled, frames pass
// through untouched or are discarded, depending on
// DiscardFrameWhenCryptorNotReady.
func (c *FrameCryptor) SetEnabled(enabled bool) {
	c.stateMu.Lock()
	c.enabled = enabled
	c.stateMu.Unlock()
	c.logger.Infof("cryptor for %v enabled=%v", c.participantID, enabled)
}

func (c *FrameCryptor) Enabled() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.enabled
}

// SetKeyIndex picks the ring slot new outbound frames are sealed with.
func (c *FrameCryptor) SetKeyIndex(index int) error {
	if ringSize := c.keyProvider.Options().KeyRingSize; index < 0 || index >= ringSize {
		return errors.Errorf("key index %d outside ring of %d", index, ringSize)
	}
	c.stateMu.Lock()
	c.keyIndex = index
	c.stateMu.Unlock()
	return nil
}

func (c *FrameCryptor) KeyIndex() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.keyIndex
}

// SetObserver installs the state transition listener. A nil observer
// silences notifications.
func (c *FrameCryptor) SetObserver(observer Observer) {
	c.stateMu.Lock()
	c.observer = observer
	c.stateMu.Unlock()
}

// RegisterSink installs the delivery callback of an audio cryptor.
func (c *FrameCryptor) RegisterSink(sink Sink) {
	c.sinkMu.Lock()
	c.audioSink = sink
	c.sinkMu.Unlock()
}

// UnregisterSink removes the audio delivery callback.
func (c *FrameCryptor) UnregisterSink() {
	c.sinkMu.Lock()
	c.audioSink = nil
	c.sinkMu.Unlock()
}

// RegisterSinkForSSRC installs the delivery callback for one video stream.
// A video cryptor can serve several SSRCs, simulcast layers for instance,
// each with its own sink.
func (c *FrameCryptor) RegisterSinkForSSRC(ssrc uint32, sink Sink) {
	c.sinkMu.Lock()
	if sink == nil {
		delete(c.videoSinks, ssrc)
	} else {
		c.videoSinks[ssrc] = sink
	}
	c.sinkMu.Unlock()
}

// UnregisterSinkForSSRC removes the delivery callback of one video stream.
func (c *FrameCryptor) UnregisterSinkForSSRC(ssrc uint32) {
	c.sinkMu.Lock()
	delete(c.videoSinks, ssrc)
	c.sinkMu.Unlock()
}

// Close stops the worker. The frame in flight finishes, queued frames are
// dropped. Safe to call more than once.
func (c *FrameCryptor) Close() {
	if !c.closed.SetToIf(false, true) {
		return
	}
	c.worker.Stop()
	c.logger.Infof("cryptor for %v closed", c.participantID)
}

func (c *FrameCryptor) Closed() bool {
	return c.closed.IsSet()
}

// Transform hands one frame to the cryptor. Sender frames get encrypted,
// receiver frames decrypted; the result comes back through the registered
// sink. Transform itself only enqueues and never blocks on crypto work.
// Frames with no sink registered at all, or an unknown direction, are
// dropped on the spot.
func (c *FrameCryptor) Transform(f frame.Transformable) {
	if c.closed.IsSet() {
		return
	}

	c.sinkMu.Lock()
	noSinks := c.audioSink == nil && len(c.videoSinks) == 0
	c.sinkMu.Unlock()
	if noSinks {
		c.logger.Warnf("no sinks for %v, dropping frame ssrc=%d", c.participantID, f.SSRC())
		return
	}

	switch f.Direction() {
	case frame.DirectionSender:
		c.worker.Post(func() { c.encryptFrame(f) })
	case frame.DirectionReceiver:
		c.worker.Post(func() { c.decryptFrame(f) })
	default:
		c.logger.Debugf("frame with unknown direction, ssrc=%d", f.SSRC())
	}
}

// snapshot reads the mutable knobs a frame transform depends on. Locks are
// dropped before any crypto work starts.
func (c *FrameCryptor) snapshot(ssrc uint32) (enabled bool, keyIndex int, sink Sink) {
	c.stateMu.Lock()
	enabled = c.enabled
	keyIndex = c.keyIndex
	c.stateMu.Unlock()

	c.sinkMu.Lock()
	if c.mediaType == frame.MediaTypeAudio {
		sink = c.audioSink
	} else {
		sink = c.videoSinks[ssrc]
	}
	c.sinkMu.Unlock()
	return enabled, keyIndex, sink
}

func (c *FrameCryptor) keyHandler() *keys.ParticipantKeyHandler {
	if c.keyProvider.Options().SharedKey {
		return c.keyProvider.GetSharedKey(c.participantID)
	}
	return c.keyProvider.GetKey(c.participantID)
}

// encryptFrame seals one outbound frame in place:
//
//	unencrypted header | AES-GCM(payload) | tag | IV | IV size | key index
//
// The header doubles as the AEAD's associated data, so tampering with it
// breaks decryption on the far side.
func (c *FrameCryptor) encryptFrame(f frame.Transformable) {
	enabled, keyIndex, sink := c.snapshot(f.SSRC())
	if sink == nil {
		c.logger.Warnf("encrypt: no sink for ssrc=%d", f.SSRC())
		c.publishEncState(StateInternalError)
		return
	}

	dataIn := f.Data()
	if len(dataIn) == 0 || !enabled {
		if c.keyProvider.Options().DiscardFrameWhenCryptorNotReady {
			return
		}
		sink.OnTransformedFrame(f)
		return
	}

	handler := c.keyHandler()
	var keySet *keys.KeySet
	if handler != nil {
		keySet = handler.GetKeySet(keyIndex)
	}
	if keySet == nil {
		c.logger.Infof("encrypt: no key at index %d for %v", keyIndex, c.participantID)
		c.publishEncState(StateMissingKey)
		return
	}

	unencrypted := int(unencryptedBytes(f, c.mediaType))
	if unencrypted > len(dataIn) {
		c.logger.Errorf("encrypt: clear header %d exceeds frame of %d bytes", unencrypted, len(dataIn))
		c.publishEncState(StateEncryptionFailed)
		return
	}
	frameHeader := dataIn[:unencrypted]

	iv := c.makeIV(f.SSRC(), f.Timestamp())
	encrypted, err := AesGcmEncrypt(keySet.EncryptionKey, iv, frameHeader, dataIn[unencrypted:])
	if err != nil {
		c.logger.Errorf("encrypt: ssrc=%d: %v", f.SSRC(), err)
		c.publishEncState(StateEncryptionFailed)
		return
	}

	// Everything after the clear header, IV and trailer included, gets
	// escaped for H.264 so no start code can surface from ciphertext.
	sealed := make([]byte, 0, len(encrypted)+len(iv)+2)
	sealed = append(sealed, encrypted...)
	sealed = append(sealed, iv...)
	sealed = append(sealed, byte(c.algorithm.IVSize()), byte(keyIndex))

	dataOut := make([]byte, 0, unencrypted+len(sealed)+len(sealed)/2)
	dataOut = append(dataOut, frameHeader...)
	if isH264(f, c.mediaType) {
		dataOut = h264.WriteRbsp(dataOut, sealed)
	} else {
		dataOut = append(dataOut, sealed...)
	}

	f.SetData(dataOut)
	c.publishEncState(StateOk)
	sink.OnTransformedFrame(f)
}

// decryptFrame opens one inbound frame in place. When the current key does
// not open the frame and a ratchet window is configured, the cryptor
// speculatively ratchets forward looking for the key the sender moved to,
// and either adopts it or rolls everything back.
func (c *FrameCryptor) decryptFrame(f frame.Transformable) {
	enabled, _, sink := c.snapshot(f.SSRC())
	if sink == nil {
		c.logger.Warnf("decrypt: no sink for ssrc=%d", f.SSRC())
		c.publishDecState(StateInternalError)
		return
	}

	dataIn := f.Data()
	if len(dataIn) == 0 || !enabled {
		if c.keyProvider.Options().DiscardFrameWhenCryptorNotReady {
			return
		}
		sink.OnTransformedFrame(f)
		return
	}

	options := c.keyProvider.Options()

	// Frames the sender marked as intentionally clear skip the AEAD
	// entirely; only the marker comes off.
	if len(options.UncryptedMagicBytes) > 0 && bytes.HasSuffix(dataIn, options.UncryptedMagicBytes) {
		f.SetData(dataIn[:len(dataIn)-len(options.UncryptedMagicBytes)])
		sink.OnTransformedFrame(f)
		return
	}

	unencrypted := int(unencryptedBytes(f, c.mediaType))
	if unencrypted+2 > len(dataIn) {
		c.logger.Warnf("decrypt: frame of %d bytes too short for a %d byte header and trailer", len(dataIn), unencrypted)
		c.publishDecState(StateDecryptionFailed)
		return
	}
	frameHeader := dataIn[:unencrypted]

	ivSize := int(dataIn[len(dataIn)-2])
	keyIndex := int(dataIn[len(dataIn)-1])

	if ivSize != c.algorithm.IVSize() {
		c.logger.Warnf("decrypt: trailer iv size %d does not match %v", ivSize, c.algorithm)
		c.publishDecState(StateDecryptionFailed)
		return
	}

	handler := c.keyHandler()
	var keySet *keys.KeySet
	if handler != nil && keyIndex < options.KeyRingSize {
		keySet = handler.GetKeySet(keyIndex)
	}
	if keySet == nil {
		c.logger.Infof("decrypt: no key at index %d for %v", keyIndex, c.participantID)
		c.publishDecState(StateMissingKey)
		return
	}

	// After a surfaced failure, wait for fresh material instead of burning
	// cycles on a key that is known dead.
	if c.lastDecState == StateDecryptionFailed && !handler.HasValidKey() {
		c.logger.Debugf("decrypt: backing off until a new key arrives for %v", c.participantID)
		return
	}

	sealed := dataIn[unencrypted:]
	if isH264(f, c.mediaType) && h264.NeedsRbspUnescaping(sealed) {
		sealed = h264.ParseRbsp(sealed)
	}
	if len(sealed) < ivSize+2 {
		c.logger.Warnf("decrypt: frame too short to carry its IV")
		c.publishDecState(StateDecryptionFailed)
		return
	}

	iv := sealed[len(sealed)-2-ivSize : len(sealed)-2]
	encrypted := sealed[:len(sealed)-2-ivSize]

	initialMaterial := keySet.Material
	ratcheted := false

	plain, err := AesGcmDecrypt(keySet.EncryptionKey, iv, frameHeader, encrypted)
	if err != nil && options.RatchetWindowSize > 0 {
		// The sender may have ratcheted ahead of us. Walk the window and
		// try each step's key until one opens the frame.
		material := initialMaterial
		for attempt := 1; attempt <= options.RatchetWindowSize; attempt++ {
			c.logger.Debugf("decrypt: ratchet attempt %d/%d for %v", attempt, options.RatchetWindowSize, c.participantID)
			material = keys.RatchetMaterial(material, options.RatchetSalt)
			trial := keys.DeriveKeys(material, options.RatchetSalt, options.KeyDeriveBits)

			plain, err = AesGcmDecrypt(trial.EncryptionKey, iv, frameHeader, encrypted)
			if err == nil {
				if setErr := handler.SetKeyFromMaterial(material, keyIndex); setErr != nil {
					c.logger.Errorf("decrypt: adopting ratcheted key: %v", setErr)
				} else {
					handler.SetHasValidKey()
					c.publishDecState(StateKeyRatcheted)
					ratcheted = true
				}
				break
			}
		}
		if err != nil {
			// Nothing in the window opened the frame. It may simply be
			// older than the key we were handed, so put the slot back the
			// way it was for the frames that follow.
			if restoreErr := handler.SetKeyFromMaterial(initialMaterial, keyIndex); restoreErr != nil {
				c.logger.Errorf("decrypt: restoring key slot: %v", restoreErr)
			}
		}
	}

	if err != nil {
		c.logger.Warnf("decrypt: ssrc=%d for %v: %v", f.SSRC(), c.participantID, err)
		if handler.DecryptionFailure() {
			c.publishDecState(StateDecryptionFailed)
		}
		return
	}

	dataOut := make([]byte, 0, len(frameHeader)+len(plain))
	dataOut = append(dataOut, frameHeader...)
	dataOut = append(dataOut, plain...)
	f.SetData(dataOut)

	if !ratcheted {
		c.publishDecState(StateOk)
	}
	sink.OnTransformedFrame(f)
}

// makeIV builds the 12 byte IV: SSRC, timestamp, and the timestamp minus a
// per stream counter that starts at a random 16 bit offset. Distinct
// timestamps keep IVs unique under one key; the random offset decorrelates
// streams that restart with the same SSRC.
func (c *FrameCryptor) makeIV(ssrc, timestamp uint32) []byte {
	count, known := c.sendCounts[ssrc]
	if !known {
		count = uint32(c.rng.Intn(0x10000))
	}
	c.sendCounts[ssrc] = count + 1

	iv := make([]byte, gcmIVSize)
	binary.BigEndian.PutUint32(iv[0:4], ssrc)
	binary.BigEndian.PutUint32(iv[4:8], timestamp)
	binary.BigEndian.PutUint32(iv[8:12], timestamp-(count%0x10000))
	return iv
}

// publishEncState and publishDecState run on the worker goroutine only;
// they collapse runs of identical outcomes into one notification.
func (c *FrameCryptor) publishEncState(state FrameCryptionState) {
	if c.lastEncState == state {
		return
	}
	c.lastEncState = state
	c.notifyObserver(state)
}

func (c *FrameCryptor) publishDecState(state FrameCryptionState) {
	if c.lastDecState == state {
		return
	}
	c.lastDecState = state
	c.notifyObserver(state)
}

func (c *FrameCryptor) notifyObserver(state FrameCryptionState) {
	c.stateMu.Lock()
	observer := c.observer
	c.stateMu.Unlock()
	if observer == nil {
		return
	}

	c.logger.Debugf("state of %v -> %v", c.participantID, state)
	participantID := c.participantID
	if c.signaling != nil {
		c.signaling.Post(func() {
			observer.OnFrameCryptionStateChanged(participantID, state)
		})
		return
	}
	observer.OnFrameCryptionStateChanged(participantID, state)
}
