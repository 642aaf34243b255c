package media

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Stream runs the two per-call pumps: the receive loop feeding caller
// payloads into the uplink sink, and the paced send loop pulling bot
// audio from the downlink source every 20 ms. Zero-length downlink
// reads keep cadence with µ-law silence so the peer's jitter buffer
// never starves.
type Stream struct {
	sess     *Session
	uplink   io.Writer
	downlink io.Reader
	log      zerolog.Logger
}

func NewStream(sess *Session, uplink io.Writer, downlink io.Reader) *Stream {
	return &Stream{
		sess:     sess,
		uplink:   uplink,
		downlink: downlink,
		log:      log.With().Str("caller", "media").Logger(),
	}
}

// Run pumps both directions until ctx is cancelled, the downlink
// source ends, or the socket closes.
func (st *Stream) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.receiveLoop(ctx) })
	g.Go(func() error { return st.sendLoop(ctx) })

	go func() {
		<-ctx.Done()
		// Unblock the socket read.
		st.sess.conn.SetReadDeadline(time.Now())
	}()

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (st *Stream) receiveLoop(ctx context.Context) error {
	buf := make([]byte, 1500)
	for {
		pkt, err := st.sess.ReadRTP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return ctx.Err()
			}
			return err
		}
		if pkt.PayloadType != payloadTypePCMU || len(pkt.Payload) == 0 {
			continue
		}
		if _, err := st.uplink.Write(pkt.Payload); err != nil {
			return err
		}
	}
}

func (st *Stream) sendLoop(ctx context.Context) error {
	ticker := time.NewTicker(PacketDur)
	defer ticker.Stop()

	silence := make([]byte, PayloadBytes)
	for i := range silence {
		silence[i] = 0xFF
	}

	buf := make([]byte, PayloadBytes)
	var seq uint16
	var timestamp uint32
	first := true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := st.downlink.Read(buf)
		if err != nil {
			return err
		}
		payload := buf[:n]
		if n == 0 {
			payload = silence
		}

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         first,
				PayloadType:    payloadTypePCMU,
				SequenceNumber: seq,
				Timestamp:      timestamp,
				SSRC:           st.sess.ssrc,
			},
			Payload: payload,
		}
		if err := st.sess.WriteRTP(pkt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		first = false
		seq++
		timestamp += TimestampIncrement
	}
}
