// voicelive-gateway answers SIP calls with G.711 µ-law audio and
// bridges each call to an Azure Voice Live session.
//
// Configuration is environment driven. VOICE_LIVE_ENDPOINT,
// VOICE_LIVE_API_KEY, VOICE_LIVE_MODEL and VOICE_LIVE_VOICE are
// required; see voicelive.ConfigFromEnv for the rest. SIP_LISTEN_ADDR
// sets the UDP listen address (default 127.0.0.1:5060) and also picks
// the interface RTP sockets bind to.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vidyann/azure-voicelive-sip-sample/bridge"
	"github.com/vidyann/azure-voicelive-sip-sample/media"
	"github.com/vidyann/azure-voicelive-sip-sample/voicelive"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	lev, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || lev == zerolog.NoLevel {
		lev = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger().Level(lev)

	sip.SIPDebug = os.Getenv("SIP_DEBUG") == "true"

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Gateway finished with error")
	}
}

func run(ctx context.Context) error {
	cfg, err := voicelive.ConfigFromEnv()
	if err != nil {
		return err
	}

	listenAddr := os.Getenv("SIP_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = "127.0.0.1:5060"
	}
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return fmt.Errorf("parsing SIP_LISTEN_ADDR: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("parsing SIP_LISTEN_ADDR: not an IP address: %q", host)
	}

	gw := &gateway{
		cfg: bridge.Config{
			VoiceLive: cfg,
			Tunables:  bridge.Tunables{}.WithDefaults(),
		},
		ctx:      ctx,
		listenIP: ip,
		calls:    make(map[string]*call),
		log:      log.With().Str("caller", "gateway").Logger(),
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent("voicelive-gateway"))
	if err != nil {
		return fmt.Errorf("creating user agent: %w", err)
	}
	defer ua.Close()

	srv, err := sipgo.NewServer(ua)
	if err != nil {
		return fmt.Errorf("creating SIP server: %w", err)
	}

	srv.OnInvite(gw.onInvite)
	srv.OnAck(gw.onAck)
	srv.OnBye(gw.onBye)

	gw.log.Info().Str("addr", listenAddr).Msg("Gateway listening")
	err = srv.ListenAndServe(ctx, "udp", listenAddr)
	gw.hangupAll()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("SIP server: %w", err)
	}
	return nil
}

// gateway tracks active calls keyed by SIP Call-ID.
type gateway struct {
	cfg      bridge.Config
	ctx      context.Context
	listenIP net.IP
	log      zerolog.Logger

	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	cancel context.CancelFunc
	rtp    *media.Session
	done   chan struct{}
}

func (gw *gateway) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}
	clog := gw.log.With().Str("call_id", callID).Logger()
	clog.Info().Str("from", req.From().Address.String()).Msg("Incoming call")

	if err := tx.Respond(sip.NewResponseFromRequest(req, 100, "Trying", nil)); err != nil {
		clog.Error().Err(err).Msg("Failed to send 100 Trying")
		return
	}

	// A retransmitted INVITE for a live call gets the same answer again.
	gw.mu.Lock()
	existing := gw.calls[callID]
	gw.mu.Unlock()
	if existing != nil {
		gw.respondOK(req, tx, existing.rtp.LocalSDP(), clog)
		return
	}

	rtpSess, err := media.NewSession(gw.listenIP)
	if err != nil {
		clog.Error().Err(err).Msg("Failed to open RTP session")
		gw.respondError(req, tx, 500, "Internal Server Error", clog)
		return
	}
	if err := rtpSess.SetRemoteSDP(req.Body()); err != nil {
		clog.Warn().Err(err).Msg("Rejecting offer")
		rtpSess.Close()
		gw.respondError(req, tx, 488, "Not Acceptable Here", clog)
		return
	}

	callCtx, cancel := context.WithCancel(gw.ctx)

	session, err := voicelive.Dial(callCtx, gw.cfg.VoiceLive)
	if err != nil {
		clog.Error().Err(err).Msg("Failed to connect to Voice Live")
		cancel()
		rtpSess.Close()
		gw.respondError(req, tx, 503, "Service Unavailable", clog)
		return
	}

	br, err := bridge.NewMediaBridge(callCtx, session, gw.cfg)
	if err != nil {
		clog.Error().Err(err).Msg("Failed to start media bridge")
		cancel()
		rtpSess.Close()
		gw.respondError(req, tx, 503, "Service Unavailable", clog)
		return
	}

	c := &call{cancel: cancel, rtp: rtpSess, done: make(chan struct{})}
	gw.mu.Lock()
	gw.calls[callID] = c
	gw.mu.Unlock()

	if err := gw.respondOK(req, tx, rtpSess.LocalSDP(), clog); err != nil {
		gw.endCall(callID)
		return
	}

	clog.Info().Str("bridge_id", br.ID()).Msg("Call answered")
	go func() {
		defer close(c.done)
		st := media.NewStream(rtpSess, br.AudioWriter(), br.AudioReader())
		if err := st.Run(callCtx); err != nil {
			clog.Error().Err(err).Msg("Media stream failed")
		}
		br.Close()
		rtpSess.Close()
		gw.mu.Lock()
		delete(gw.calls, callID)
		gw.mu.Unlock()
		if tr := br.Transcript(); tr != "" {
			clog.Info().Str("transcript", tr).Msg("Call finished")
		} else {
			clog.Info().Msg("Call finished")
		}
	}()
}

func (gw *gateway) onAck(req *sip.Request, tx sip.ServerTransaction) {
	// Media is already flowing once the 200 OK went out.
}

func (gw *gateway) onBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}
	gw.log.Info().Str("call_id", callID).Msg("BYE received")
	if err := tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil)); err != nil {
		gw.log.Error().Err(err).Str("call_id", callID).Msg("Failed to respond to BYE")
	}
	gw.endCall(callID)
}

func (gw *gateway) respondOK(req *sip.Request, tx sip.ServerTransaction, sdp []byte, clog zerolog.Logger) error {
	res := sip.NewResponseFromRequest(req, 200, "OK", sdp)
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := tx.Respond(res); err != nil {
		clog.Error().Err(err).Msg("Failed to send 200 OK")
		return err
	}
	return nil
}

func (gw *gateway) respondError(req *sip.Request, tx sip.ServerTransaction, code int, reason string, clog zerolog.Logger) {
	if err := tx.Respond(sip.NewResponseFromRequest(req, code, reason, nil)); err != nil {
		clog.Error().Err(err).Msg("Failed to send error response")
	}
}

// endCall cancels the call's media context. The per-call goroutine
// owns cleanup, so this only signals and waits briefly.
func (gw *gateway) endCall(callID string) {
	gw.mu.Lock()
	c := gw.calls[callID]
	gw.mu.Unlock()
	if c == nil {
		return
	}
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		gw.log.Warn().Str("call_id", callID).Msg("Call teardown timed out")
	}
}

func (gw *gateway) hangupAll() {
	gw.mu.Lock()
	ids := make([]string, 0, len(gw.calls))
	for id := range gw.calls {
		ids = append(ids, id)
	}
	gw.mu.Unlock()
	for _, id := range ids {
		gw.endCall(id)
	}
}
