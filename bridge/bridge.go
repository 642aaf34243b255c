package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vidyann/azure-voicelive-sip-sample/voicelive"
)

// Config assembles a MediaBridge: the voice-live identity and the
// pipeline tunables.
type Config struct {
	VoiceLive voicelive.Config
	Tunables  Tunables
}

// MediaBridge is the per-call assembly: both pipelines plus the
// session controller, exposed to the signalling layer as an opaque
// byte sink (caller audio in) and byte source (bot audio out). Its
// lifetime equals the call's.
type MediaBridge struct {
	id         string
	session    voicelive.Session
	controller *SessionController
	downlink   *DownlinkPipeline
	uplink     *UplinkPipeline

	cancel    context.CancelFunc
	runDone   chan struct{}
	closeOnce sync.Once
}

// NewMediaBridge wires the pipelines to an already-dialed session,
// sends the session configuration and waits for readiness. The
// readiness wait is bounded by Tunables.SessionReadyTimeout; on
// timeout the call must be rejected.
func NewMediaBridge(ctx context.Context, session voicelive.Session, cfg Config) (*MediaBridge, error) {
	tun := cfg.Tunables.WithDefaults()
	id := uuid.NewString()
	blog := log.With().Str("caller", "bridge").Str("bridge_id", id).Logger()

	downlink := NewDownlinkPipeline(tun, blog)
	controller := NewSessionController(session, cfg.VoiceLive, downlink, tun, blog)

	runCtx, cancel := context.WithCancel(ctx)
	uplink := NewUplinkPipeline(runCtx, session, controller.Ready, tun, blog)

	b := &MediaBridge{
		id:         id,
		session:    session,
		controller: controller,
		downlink:   downlink,
		uplink:     uplink,
		cancel:     cancel,
		runDone:    make(chan struct{}),
	}

	go func() {
		defer close(b.runDone)
		if err := controller.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			blog.Error().Err(err).Msg("Session event loop ended")
		}
	}()

	if err := controller.Configure(ctx); err != nil {
		b.Close()
		return nil, err
	}

	readyCtx, readyCancel := context.WithTimeout(ctx, tun.SessionReadyTimeout)
	defer readyCancel()
	if err := controller.WaitReady(readyCtx); err != nil {
		b.Close()
		return nil, err
	}

	blog.Info().Msg("Media bridge ready")
	return b, nil
}

// ID identifies the bridge in logs, one per call.
func (b *MediaBridge) ID() string { return b.id }

// AudioWriter is the uplink byte sink the RTP receiver writes µ-law
// payloads into.
func (b *MediaBridge) AudioWriter() io.Writer { return b.uplink }

// AudioReader is the downlink byte source the RTP sender reads µ-law
// payloads from.
func (b *MediaBridge) AudioReader() io.Reader { return b.downlink }

// Transcript returns the bot response text accumulated so far.
func (b *MediaBridge) Transcript() string { return b.controller.Transcript() }

// Close tears the call down: downlink readers get io.EOF, buffered
// uplink audio is flushed and sent, then the session is released.
func (b *MediaBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.downlink.Close()
		b.uplink.Flush()
		b.uplink.Close()
		if cerr := b.session.Close(); cerr != nil {
			err = fmt.Errorf("closing session: %w", cerr)
		}
		b.cancel()
		<-b.runDone
	})
	return err
}
