package rtpcrypto

import (
	"io"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/cryptor"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/frame"
	"github.com/cloudwebrtc/go-frame-cryptor/pkg/keys"
)

const participant = "alice"

var material = []byte("packet level material")

func testOptions() keys.ProviderOptions {
	options := keys.DefaultProviderOptions()
	options.RatchetSalt = []byte("pepper")
	return options
}

func newProvider(t *testing.T) *keys.DefaultKeyProvider {
	t.Helper()
	p := keys.NewDefaultKeyProvider(testOptions())
	require.NoError(t, p.SetKey(participant, 0, material))
	return p
}

func testHeader(ssrc uint32, ts uint32) *rtp.Header {
	return &rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: 7, Timestamp: ts, SSRC: ssrc}
}

func TestPacketRoundTrip(t *testing.T) {
	sender := NewPacketCryptor(participant, newProvider(t))
	receiver := NewPacketCryptor(participant, newProvider(t))

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	sealed, err := sender.EncryptPayload(testHeader(0x77, 480), payload)
	require.NoError(t, err)
	// 1 clear + 19+16 sealed + 12 IV + 2 trailer.
	assert.Len(t, sealed, 50)
	assert.Equal(t, payload[0], sealed[0])
	assert.Equal(t, byte(12), sealed[len(sealed)-2])
	assert.Equal(t, byte(0), sealed[len(sealed)-1])

	opened, err := receiver.DecryptPayload(testHeader(0x77, 480), sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestPacketMissingKey(t *testing.T) {
	p := NewPacketCryptor(participant, keys.NewDefaultKeyProvider(testOptions()))

	_, err := p.EncryptPayload(testHeader(1, 0), []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMissingKey)

	sealed := make([]byte, 40)
	sealed[len(sealed)-2] = 12 // plausible trailer, no key behind it
	_, err = p.DecryptPayload(testHeader(1, 0), sealed)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestPacketMissingKeyOnDecodeIndex(t *testing.T) {
	sender := NewPacketCryptor(participant, newProvider(t))
	receiver := NewPacketCryptor(participant, newProvider(t))

	sealed, err := sender.EncryptPayload(testHeader(1, 0), []byte{1, 2, 3, 4})
	require.NoError(t, err)
	sealed[len(sealed)-1] = 9 // empty slot

	_, err = receiver.DecryptPayload(testHeader(1, 0), sealed)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestPacketMagicBytes(t *testing.T) {
	options := testOptions()
	options.UncryptedMagicBytes = []byte{0xFA, 0xCE}
	provider := keys.NewDefaultKeyProvider(options)
	require.NoError(t, provider.SetKey(participant, 0, material))
	p := NewPacketCryptor(participant, provider)

	// Marker only: drop signal.
	out, err := p.DecryptPayload(testHeader(1, 0), []byte{0xFA, 0xCE})
	require.NoError(t, err)
	assert.Nil(t, out)

	// Content plus marker: content survives, marker comes off.
	out, err = p.DecryptPayload(testHeader(1, 0), []byte{0x01, 0x02, 0xFA, 0xCE})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, out)
}

func TestPacketMalformedTrailer(t *testing.T) {
	sender := NewPacketCryptor(participant, newProvider(t))
	receiver := NewPacketCryptor(participant, newProvider(t))

	_, err := receiver.DecryptPayload(testHeader(1, 0), []byte{1, 2})
	assert.ErrorIs(t, err, ErrShortPayload)

	sealed, err := sender.EncryptPayload(testHeader(1, 0), []byte{1, 2, 3, 4})
	require.NoError(t, err)

	sealed[len(sealed)-2] = 11
	_, err = receiver.DecryptPayload(testHeader(1, 0), sealed)
	assert.ErrorIs(t, err, ErrIVSizeMismatch)

	// A trailer claiming more IV than the payload holds.
	_, err = receiver.DecryptPayload(testHeader(1, 0), []byte{0x01, 0x02, 12, 0x00})
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestPacketDisabledPassthrough(t *testing.T) {
	p := NewPacketCryptor(participant, newProvider(t))
	p.SetEnabled(false)
	assert.False(t, p.Enabled())

	payload := []byte{9, 8, 7, 6}
	out, err := p.EncryptPayload(testHeader(1, 0), payload)
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	out, err = p.DecryptPayload(testHeader(1, 0), payload)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestPacketKeyIndex(t *testing.T) {
	provider := newProvider(t)
	require.NoError(t, provider.SetKey(participant, 5, material))
	p := NewPacketCryptor(participant, provider)

	assert.Error(t, p.SetKeyIndex(-1))
	assert.Error(t, p.SetKeyIndex(keys.DefaultKeyRingSize))
	require.NoError(t, p.SetKeyIndex(5))
	assert.Equal(t, 5, p.KeyIndex())

	sealed, err := p.EncryptPayload(testHeader(1, 160), []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, byte(5), sealed[len(sealed)-1])
}

func TestPacketIVUnique(t *testing.T) {
	p := NewPacketCryptor(participant, newProvider(t))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sealed, err := p.EncryptPayload(testHeader(0x55, uint32(i*160)), []byte{1, 2, 3, 4})
		require.NoError(t, err)
		iv := string(sealed[len(sealed)-14 : len(sealed)-2])
		if seen[iv] {
			t.Fatalf("IV reused at packet %d", i)
		}
		seen[iv] = true
	}
}

type fakeWriter struct {
	headers  []rtp.Header
	payloads [][]byte
}

func (w *fakeWriter) Write(header *rtp.Header, payload []byte, _ interceptor.Attributes) (int, error) {
	w.headers = append(w.headers, *header)
	w.payloads = append(w.payloads, append([]byte(nil), payload...))
	return len(payload), nil
}

type fakeReader struct {
	packets [][]byte
}

func (r *fakeReader) Read(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
	if len(r.packets) == 0 {
		return 0, a, io.EOF
	}
	pkt := r.packets[0]
	r.packets = r.packets[1:]
	return copy(b, pkt), a, nil
}

func audioStreamInfo(ssrc uint32) *interceptor.StreamInfo {
	return &interceptor.StreamInfo{SSRC: ssrc, MimeType: "audio/opus"}
}

func TestInterceptorSealsLocalAudio(t *testing.T) {
	i := NewInterceptor(NewPacketCryptor(participant, newProvider(t)))

	sink := &fakeWriter{}
	writer := i.BindLocalStream(audioStreamInfo(0x99), sink)

	payload := []byte{0x10, 0x20, 0x30, 0x40}
	_, err := writer.Write(testHeader(0x99, 960), payload, nil)
	require.NoError(t, err)

	require.Len(t, sink.payloads, 1)
	sealed := sink.payloads[0]
	assert.Len(t, sealed, len(payload)+30)
	assert.NotEqual(t, payload, sealed[:len(payload)])

	// Any receiver with the same material can open it.
	opened, err := NewPacketCryptor(participant, newProvider(t)).DecryptPayload(testHeader(0x99, 960), sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestInterceptorOpensRemoteAudio(t *testing.T) {
	sender := NewPacketCryptor(participant, newProvider(t))
	i := NewInterceptor(NewPacketCryptor(participant, newProvider(t)))

	payload := []byte{0x0A, 0x0B, 0x0C, 0x0D, 0x0E}
	sealed, err := sender.EncryptPayload(testHeader(0x44, 320), payload)
	require.NoError(t, err)

	garbagePkt := rtp.Packet{Header: *testHeader(0x44, 160), Payload: make([]byte, 40)}
	garbage, err := garbagePkt.Marshal()
	require.NoError(t, err)

	goodPkt := rtp.Packet{Header: *testHeader(0x44, 320), Payload: sealed}
	good, err := goodPkt.Marshal()
	require.NoError(t, err)

	// The unopenable packet is skipped, the sealed one comes out plain.
	reader := i.BindRemoteStream(audioStreamInfo(0x44), &fakeReader{packets: [][]byte{garbage, good}})

	buf := make([]byte, 1500)
	n, _, err := reader.Read(buf, nil)
	require.NoError(t, err)

	var out rtp.Packet
	require.NoError(t, out.Unmarshal(buf[:n]))
	assert.Equal(t, payload, out.Payload)
	assert.Equal(t, uint32(320), out.Timestamp)
}

func TestInterceptorVideoPassthrough(t *testing.T) {
	i := NewInterceptor(NewPacketCryptor(participant, newProvider(t)))

	sink := &fakeWriter{}
	info := &interceptor.StreamInfo{SSRC: 1, MimeType: "video/VP8"}
	assert.Same(t, interceptor.RTPWriter(sink), i.BindLocalStream(info, sink))

	source := &fakeReader{}
	assert.Same(t, interceptor.RTPReader(source), i.BindRemoteStream(info, source))
}

func TestFactoryBuildsInterceptors(t *testing.T) {
	f := NewFactory(participant, newProvider(t))

	built, err := f.NewInterceptor("pc-1")
	require.NoError(t, err)
	i, ok := built.(*Interceptor)
	require.True(t, ok)
	assert.Equal(t, participant, i.Cryptor().ParticipantID())
}

func TestWireFormatMatchesFrameCryptor(t *testing.T) {
	// A payload sealed by the frame cryptor must open at the packet level
	// and the other way round; both layers speak the same wire format.
	framesOut := make(chan []byte, 1)

	frameSide := cryptor.NewFrameCryptor(nil, participant, frame.MediaTypeAudio, cryptor.AlgorithmAesGcm, newProvider(t))
	defer frameSide.Close()
	frameSide.RegisterSink(cryptor.SinkFunc(func(f frame.Transformable) { framesOut <- f.Data() }))
	frameSide.SetEnabled(true)

	packetSide := NewPacketCryptor(participant, newProvider(t))

	payload := []byte{0x60, 1, 2, 3, 4, 5}
	frameSide.Transform(frame.NewAudioFrame(frame.DirectionSender, 0x66, 480, payload))

	var sealed []byte
	select {
	case sealed = <-framesOut:
	case <-time.After(3 * time.Second):
		t.Fatal("frame cryptor did not deliver")
	}

	opened, err := packetSide.DecryptPayload(testHeader(0x66, 480), sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)

	// And back: packet sealed, frame opened.
	sealed, err = packetSide.EncryptPayload(testHeader(0x66, 960), payload)
	require.NoError(t, err)

	frameSide.Transform(frame.NewAudioFrame(frame.DirectionReceiver, 0x66, 960, sealed))
	select {
	case opened = <-framesOut:
		assert.Equal(t, payload, opened)
	case <-time.After(3 * time.Second):
		t.Fatal("frame cryptor did not deliver the decrypted frame")
	}
}
