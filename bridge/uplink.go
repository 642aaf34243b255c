package bridge

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vidyann/azure-voicelive-sip-sample/audio"
	"github.com/vidyann/azure-voicelive-sip-sample/voicelive"
)

// UplinkPipeline carries caller audio to the service. It is an
// io.Writer fed µ-law 8 kHz payloads by the RTP receiver; each write
// decodes, upsamples to PCM16 24 kHz and accumulates until a full
// 100 ms chunk can be handed to the send loop. Sends happen on a
// single goroutine so chunks reach the session in arrival order, and
// the RTP receiver never blocks on the network.
type UplinkPipeline struct {
	tun     Tunables
	log     zerolog.Logger
	session voicelive.Session
	ready   func() bool
	ctx     context.Context

	mu     sync.Mutex
	buf    []byte
	bufLen int
	sendCh chan []byte
	closed bool

	senderDone     chan struct{}
	notReadyLogged atomic.Bool
	streaming      atomic.Bool
}

// NewUplinkPipeline starts the send loop. ready gates audio: writes
// arriving before the session is configured are dropped.
func NewUplinkPipeline(ctx context.Context, session voicelive.Session, ready func() bool, tun Tunables, log zerolog.Logger) *UplinkPipeline {
	u := &UplinkPipeline{
		tun:        tun,
		log:        log,
		session:    session,
		ready:      ready,
		ctx:        ctx,
		buf:        make([]byte, tun.MinUplinkChunkBytes),
		sendCh:     make(chan []byte, tun.UplinkSendQueue),
		senderDone: make(chan struct{}),
	}
	go u.sendLoop()
	return u
}

// Write accepts one µ-law payload. It never blocks on the session and
// always reports the full length consumed; transcoded audio is
// buffered until a chunk boundary.
func (u *UplinkPipeline) Write(ulaw []byte) (int, error) {
	if len(ulaw) == 0 {
		return 0, nil
	}
	if !u.ready() {
		if u.notReadyLogged.CompareAndSwap(false, true) {
			u.log.Warn().Msg("Session not ready, dropping caller audio")
		}
		return len(ulaw), nil
	}

	pcm24 := audio.Upsample8To24(audio.DecodeUlaw(ulaw))

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, io.ErrClosedPipe
	}
	for off := 0; off < len(pcm24); {
		n := copy(u.buf[u.bufLen:], pcm24[off:])
		u.bufLen += n
		off += n

		if u.bufLen == len(u.buf) {
			chunk := make([]byte, u.bufLen)
			copy(chunk, u.buf)
			u.bufLen = 0
			u.dispatch(chunk)
		}
	}
	return len(ulaw), nil
}

// Flush hands any buffered remainder to the send loop. Called at call
// teardown so trailing audio is not lost.
func (u *UplinkPipeline) Flush() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || u.bufLen == 0 {
		return
	}
	chunk := make([]byte, u.bufLen)
	copy(chunk, u.buf[:u.bufLen])
	u.bufLen = 0
	u.dispatch(chunk)
}

// Close stops the send loop after draining queued chunks.
func (u *UplinkPipeline) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		<-u.senderDone
		return
	}
	u.closed = true
	close(u.sendCh)
	u.mu.Unlock()
	<-u.senderDone
}

// dispatch is called with mu held.
func (u *UplinkPipeline) dispatch(chunk []byte) {
	if u.streaming.CompareAndSwap(false, true) {
		u.log.Info().Msg("Caller audio streaming started")
	}
	select {
	case u.sendCh <- chunk:
	default:
		u.log.Warn().Int("bytes", len(chunk)).Msg("Uplink send queue full, dropping chunk")
	}
}

func (u *UplinkPipeline) sendLoop() {
	defer close(u.senderDone)
	for chunk := range u.sendCh {
		err := u.session.SendInputAudio(u.ctx, chunk)
		if err == nil {
			continue
		}
		// The service rejects chunks that race an active response
		// turn; that is routine and the stream recovers.
		if strings.Contains(err.Error(), "standalone audio chunk") {
			u.log.Debug().Err(err).Msg("Audio chunk rejected during active response")
			continue
		}
		u.log.Error().Err(err).Int("bytes", len(chunk)).Msg("Sending caller audio failed")
	}
}
