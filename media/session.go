// Package media is the thin RTP layer of the gateway: one UDP session
// per call carrying G.711 µ-law at 8 kHz with 20 ms packetisation,
// and the pump pair moving payloads between the socket and the bridge
// byte streams.
package media

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// PayloadBytes is one 20 ms PCMU payload.
	PayloadBytes = 160
	// TimestampIncrement is the RTP clock advance per packet at 8 kHz.
	TimestampIncrement = 160
	// PacketDur is the packetisation interval.
	PacketDur = 20 * time.Millisecond
)

// Session is one call's RTP endpoint. It owns the UDP socket, the
// negotiated addresses and the SSRC; packetisation and pacing live in
// Stream.
type Session struct {
	conn *net.UDPConn
	log  zerolog.Logger

	ssrc uint32

	mu    sync.Mutex
	raddr *net.UDPAddr
}

// NewSession opens an RTP socket on an ephemeral port of ip.
func NewSession(ip net.IP) (*Session, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("binding rtp socket: %w", err)
	}
	s := &Session{
		conn: conn,
		ssrc: rand.Uint32(),
		log:  log.With().Str("caller", "media").Logger(),
	}
	s.log.Debug().Stringer("laddr", conn.LocalAddr()).Msg("RTP session bound")
	return s, nil
}

func (s *Session) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// LocalSDP renders the PCMU-only answer/offer for this session.
func (s *Session) LocalSDP() []byte {
	laddr := s.LocalAddr()
	ip := laddr.IP.String()
	sessID := time.Now().UnixMilli()
	sdp := fmt.Sprintf(
		"v=0\r\n"+
			"o=- %d %d IN IP4 %s\r\n"+
			"s=voicelive-gateway\r\n"+
			"c=IN IP4 %s\r\n"+
			"t=0 0\r\n"+
			"m=audio %d RTP/AVP 0\r\n"+
			"a=rtpmap:0 PCMU/8000\r\n"+
			"a=ptime:20\r\n",
		sessID, sessID, ip, ip, laddr.Port,
	)
	return []byte(sdp)
}

// SetRemoteSDP points the session at the peer's audio endpoint. Fails
// if the peer does not offer PCMU.
func (s *Session) SetRemoteSDP(body []byte) error {
	raddr, err := parseRemoteSDP(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.raddr = raddr
	s.mu.Unlock()
	s.log.Debug().Stringer("raddr", raddr).Msg("Remote RTP endpoint set")
	return nil
}

func (s *Session) remoteAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raddr
}

// ReadRTP blocks for the next packet from the peer.
func (s *Session) ReadRTP(buf []byte) (*rtp.Packet, error) {
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		return nil, fmt.Errorf("unmarshaling rtp: %w", err)
	}
	return pkt, nil
}

// WriteRTP sends one packet to the negotiated peer address.
func (s *Session) WriteRTP(pkt *rtp.Packet) error {
	raddr := s.remoteAddr()
	if raddr == nil {
		return fmt.Errorf("remote rtp endpoint not negotiated")
	}
	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling rtp: %w", err)
	}
	_, err = s.conn.WriteToUDP(data, raddr)
	return err
}

// Close releases the socket, unblocking a pending ReadRTP.
func (s *Session) Close() error {
	return s.conn.Close()
}
