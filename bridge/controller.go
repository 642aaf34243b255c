package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vidyann/azure-voicelive-sip-sample/voicelive"
)

// SessionState tracks the per-call session lifecycle. Transitions are
// monotonic; Closed is terminal.
type SessionState int32

const (
	StateCreated SessionState = iota
	StateConfiguring
	StateReady
	StateResponding
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// SessionController owns the session lifecycle: it sends the session
// configuration, dispatches server events into pipeline actions,
// requests the proactive greeting and signals readiness.
type SessionController struct {
	session  voicelive.Session
	cfg      voicelive.Config
	downlink *DownlinkPipeline
	tun      Tunables
	log      zerolog.Logger

	state               atomic.Int32
	readyCh             chan struct{}
	readyOnce           sync.Once
	conversationStarted atomic.Bool

	runCtx context.Context

	transcriptMu sync.Mutex
	transcript   strings.Builder
}

func NewSessionController(session voicelive.Session, cfg voicelive.Config, downlink *DownlinkPipeline, tun Tunables, log zerolog.Logger) *SessionController {
	return &SessionController{
		session:  session,
		cfg:      cfg,
		downlink: downlink,
		tun:      tun,
		log:      log,
		readyCh:  make(chan struct{}),
	}
}

// Configure sends the session.update with voice, instructions, audio
// formats, semantic VAD and transcription settings. Must be called
// once, before audio flows.
func (c *SessionController) Configure(ctx context.Context) error {
	c.advance(StateConfiguring)

	// The service does not accept a token cap on session.update yet;
	// the instructions carry the brevity constraint instead.
	c.log.Info().
		Int("max_response_output_tokens", c.cfg.MaxResponseOutputTokens).
		Msg("Configuring session, token cap carried by instructions")

	if err := c.session.SendEvent(ctx, voicelive.NewSessionUpdate(c.cfg.SessionOptions())); err != nil {
		return fmt.Errorf("sending session configuration: %w", err)
	}
	return nil
}

// WaitReady blocks until session.updated arrives or ctx expires.
func (c *SessionController) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for session ready: %w", ctx.Err())
	}
}

// Ready reports whether uplink audio may be sent.
func (c *SessionController) Ready() bool {
	s := c.State()
	return s == StateReady || s == StateResponding
}

func (c *SessionController) State() SessionState {
	return SessionState(c.state.Load())
}

// Run consumes the session event stream until it closes or ctx is
// cancelled. A panicking handler is contained and never kills the
// stream.
func (c *SessionController) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer c.advance(StateClosed)
	for {
		select {
		case ev, ok := <-c.session.Events():
			if !ok {
				c.log.Debug().Msg("Session event stream ended")
				return nil
			}
			c.dispatch(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *SessionController) dispatch(ev voicelive.ServerEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("event", ev.Type).Msg("Event handler panicked")
		}
	}()
	c.handleEvent(ev)
}

func (c *SessionController) handleEvent(ev voicelive.ServerEvent) {
	switch ev.Type {
	case voicelive.EventSessionCreated:
		id := ""
		if ev.Session != nil {
			id = ev.Session.ID
		}
		c.log.Info().Str("session_id", id).Msg("Session created")

	case voicelive.EventSessionUpdated:
		c.advance(StateReady)
		c.log.Info().Msg("Session configured")
		c.maybeGreet()
		c.readyOnce.Do(func() { close(c.readyCh) })

	case voicelive.EventResponseCreated:
		c.downlink.SetResponseDone(false)
		c.advance(StateResponding)

	case voicelive.EventResponseAudioDelta:
		pcm, err := ev.AudioDelta()
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping undecodable audio delta")
			return
		}
		c.downlink.EnqueueChunk(pcm)

	case voicelive.EventResponseAudioDone:
		c.log.Debug().Msg("Response audio complete")
		c.downlink.SetResponseDone(true)

	case voicelive.EventResponseTextDelta, voicelive.EventResponseAudioTransDelta:
		c.appendTranscript(ev.Delta)

	case voicelive.EventSpeechStarted:
		if c.tun.DisableBargeInClear {
			c.log.Info().Msg("Caller speech detected, server-side truncation only")
			return
		}
		c.log.Info().Msg("Caller speech detected, clearing pending playback")
		c.downlink.ClearBuffer()

	case voicelive.EventSpeechStopped:
		c.log.Debug().Msg("Caller speech ended")

	case voicelive.EventInputTranscriptionDone:
		c.log.Info().Str("transcript", ev.Transcript).Msg("Caller said")

	case voicelive.EventError:
		if ev.Error != nil {
			c.log.Error().Str("code", ev.Error.Code).Str("error_type", ev.Error.Type).Msg(ev.Error.Message)
		} else {
			c.log.Error().Msg("Session error event without payload")
		}

	default:
		c.log.Debug().Str("event", ev.Type).Msg("Unhandled session event")
	}
}

// maybeGreet requests the first response so the bot speaks before the
// caller, once per call.
func (c *SessionController) maybeGreet() {
	if !c.cfg.GreetingEnabled {
		c.log.Info().Msg("Proactive greeting disabled, waiting for caller speech")
		return
	}
	if !c.conversationStarted.CompareAndSwap(false, true) {
		return
	}
	if err := c.session.SendEvent(c.runCtx, voicelive.NewResponseCreate(c.cfg.Greeting)); err != nil {
		c.log.Error().Err(err).Msg("Requesting proactive greeting failed")
		return
	}
	c.log.Info().Msg("Proactive greeting requested")
}

func (c *SessionController) appendTranscript(delta string) {
	if delta == "" {
		return
	}
	c.transcriptMu.Lock()
	c.transcript.WriteString(delta)
	c.transcriptMu.Unlock()
}

// Transcript returns the bot response text accumulated so far.
func (c *SessionController) Transcript() string {
	c.transcriptMu.Lock()
	defer c.transcriptMu.Unlock()
	return c.transcript.String()
}

// advance moves the state forward, never backward.
func (c *SessionController) advance(s SessionState) {
	for {
		cur := c.state.Load()
		if cur >= int32(s) || c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}
