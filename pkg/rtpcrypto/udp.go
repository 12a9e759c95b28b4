package rtpcrypto

import (
	"net"

	"github.com/ghettovoice/gosip/log"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/tevino/abool"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/utils"
)

const (
	DefaultPortMin = 30000
	DefaultPortMax = 65530
)

// UDPStream moves encrypted RTP over one UDP socket. Send seals the
// payload before it leaves, the Read loop opens every arriving packet and
// hands it to the callback; packets that do not parse or do not decrypt
// are dropped with a log line.
type UDPStream struct {
	conn     *net.UDPConn
	cryptor  *PacketCryptor
	stopped  *abool.AtomicBool
	onPacket func(pkt *rtp.Packet)
	raddr    *net.UDPAddr
	logger   log.Logger
}

// NewUDPStream listens on a random port inside [portMin, portMax] (0, 0
// means any port).
func NewUDPStream(portMin, portMax int, cryptor *PacketCryptor, onPacket func(pkt *rtp.Packet)) (*UDPStream, error) {
	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: 0}
	conn, err := utils.ListenUDPInPortRange(portMin, portMax, laddr)
	if err != nil {
		return nil, errors.Wrap(err, "listen udp")
	}
	return &UDPStream{
		conn:     conn,
		cryptor:  cryptor,
		stopped:  abool.New(),
		onPacket: onPacket,
		logger:   utils.NewLogrusLogger(utils.DefaultLogLevel, "UDPStream", nil),
	}, nil
}

func (s *UDPStream) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *UDPStream) RemoteAddr() *net.UDPAddr {
	return s.raddr
}

// Send seals the packet's payload and writes the whole packet to raddr.
func (s *UDPStream) Send(pkt *rtp.Packet, raddr *net.UDPAddr) (int, error) {
	sealed, err := s.cryptor.EncryptPayload(&pkt.Header, pkt.Payload)
	if err != nil {
		return 0, err
	}
	out := rtp.Packet{Header: pkt.Header, Payload: sealed}
	buf, err := out.Marshal()
	if err != nil {
		return 0, errors.Wrap(err, "marshal rtp packet")
	}
	s.raddr = raddr
	return s.conn.WriteToUDP(buf, raddr)
}

// Read receives until Close, delivering each decrypted packet to the
// callback. Run it on its own goroutine.
func (s *UDPStream) Read() {
	buf := make([]byte, 1500)
	for {
		if s.stopped.IsSet() {
			return
		}
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if !s.stopped.IsSet() {
				s.logger.Infof("udp conn [%v] read stops: %v", raddr, err)
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Warnf("drop malformed packet from %v: %v", raddr, err)
			continue
		}
		plain, err := s.cryptor.DecryptPayload(&pkt.Header, pkt.Payload)
		if err != nil {
			s.logger.Warnf("drop undecryptable packet ssrc=%d seq=%d: %v", pkt.SSRC, pkt.SequenceNumber, err)
			continue
		}
		if plain == nil {
			continue
		}
		pkt.Payload = plain
		if !s.stopped.IsSet() {
			s.onPacket(&pkt)
		}
	}
}

func (s *UDPStream) Close() {
	if s.stopped.SetToIf(false, true) {
		s.conn.Close()
	}
}
