package bridge

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyann/azure-voicelive-sip-sample/voicelive"
)

func testVoiceLiveConfig() voicelive.Config {
	return voicelive.Config{
		Voice:                   "en-US-AvaNeural",
		Instructions:            "Be brief.",
		TranscriptionModel:      voicelive.TranscriptionAzureSpeech,
		TranscriptionLanguage:   "en-US",
		MaxResponseOutputTokens: 200,
		GreetingEnabled:         true,
		Greeting:                "Hello there!",
	}
}

type controllerFixture struct {
	sess       *fakeSession
	downlink   *DownlinkPipeline
	controller *SessionController
	cancel     context.CancelFunc
}

func startController(t *testing.T, cfg voicelive.Config, tun Tunables) *controllerFixture {
	t.Helper()
	tun = tun.WithDefaults()
	sess := newFakeSession()
	downlink := NewDownlinkPipeline(tun, zerolog.Nop())
	ctrl := NewSessionController(sess, cfg, downlink, tun, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &controllerFixture{sess: sess, downlink: downlink, controller: ctrl, cancel: cancel}
}

func deltaEvent(pcm []byte) voicelive.ServerEvent {
	return voicelive.ServerEvent{
		Type:  voicelive.EventResponseAudioDelta,
		Delta: base64.StdEncoding.EncodeToString(pcm),
	}
}

func TestControllerConfigureAndReady(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{})

	require.NoError(t, f.controller.Configure(context.Background()))
	assert.Equal(t, StateConfiguring, f.controller.State())
	assert.False(t, f.controller.Ready())

	events := f.sess.sentEvents()
	require.Len(t, events, 1)
	update, ok := events[0].(voicelive.SessionUpdate)
	require.True(t, ok)
	assert.Equal(t, "en-US-AvaNeural", update.Session.Voice.Name)
	assert.Equal(t, 24000, update.Session.InputAudioSamplingRate)

	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSessionCreated, Session: &voicelive.SessionState{ID: "sess_1"}})
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSessionUpdated})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.controller.WaitReady(ctx))
	assert.True(t, f.controller.Ready())
	assert.Equal(t, StateReady, f.controller.State())

	// The greeting goes out exactly once, with the configured text.
	require.Eventually(t, func() bool {
		return len(f.sess.sentEvents()) == 2
	}, time.Second, 5*time.Millisecond)
	greet, ok := f.sess.sentEvents()[1].(voicelive.ResponseCreate)
	require.True(t, ok)
	require.NotNil(t, greet.Response)
	assert.Equal(t, "Hello there!", greet.Response.Instructions)

	// A second session.updated must not greet again.
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSessionUpdated})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.sess.sentEvents(), 2)
}

func TestControllerGreetingDisabled(t *testing.T) {
	cfg := testVoiceLiveConfig()
	cfg.GreetingEnabled = false
	f := startController(t, cfg, Tunables{})

	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSessionUpdated})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.controller.WaitReady(ctx))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.sess.sentEvents())
}

func TestControllerAudioDeltaFlow(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{})

	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventResponseCreated})
	f.sess.emit(deltaEvent(pcmConst(30*pcmPerPacket, 1000)))
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventResponseAudioDone})

	require.Eventually(t, func() bool {
		return f.downlink.responseDone.Load()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 30, f.downlink.queue.len())
	assert.True(t, f.downlink.prebuffered.Load())
	assert.Equal(t, StateResponding, f.controller.State())

	// A new response clears the done flag.
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventResponseCreated})
	require.Eventually(t, func() bool {
		return !f.downlink.responseDone.Load()
	}, time.Second, 5*time.Millisecond)
}

func TestControllerBadDeltaIgnored(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{})

	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventResponseAudioDelta, Delta: "not base64!!"})
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventResponseAudioDone})

	require.Eventually(t, func() bool {
		return f.downlink.responseDone.Load()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.downlink.queue.len())
}

func TestControllerBargeInClears(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{})

	f.sess.emit(deltaEvent(pcmConst(40*pcmPerPacket, 1000)))
	require.Eventually(t, func() bool {
		return f.downlink.queue.len() == 40
	}, time.Second, 5*time.Millisecond)

	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSpeechStarted})
	require.Eventually(t, func() bool {
		return f.downlink.queue.len() == 0
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.downlink.prebuffered.Load())
}

func TestControllerBargeInClearDisabled(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{DisableBargeInClear: true})

	f.sess.emit(deltaEvent(pcmConst(40*pcmPerPacket, 1000)))
	require.Eventually(t, func() bool {
		return f.downlink.queue.len() == 40
	}, time.Second, 5*time.Millisecond)

	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSpeechStarted})
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSpeechStopped})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 40, f.downlink.queue.len())
}

func TestControllerTranscript(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{})

	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventResponseTextDelta, Delta: "Hello "})
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventResponseAudioTransDelta, Delta: "caller."})
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventInputTranscriptionDone, Transcript: "hi bot"})

	require.Eventually(t, func() bool {
		return f.controller.Transcript() == "Hello caller."
	}, time.Second, 5*time.Millisecond)
}

func TestControllerErrorEventNonFatal(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{})

	f.sess.emit(voicelive.ServerEvent{
		Type:  voicelive.EventError,
		Error: &voicelive.ErrorPayload{Code: "rate_limited", Message: "slow down"},
	})
	f.sess.emit(voicelive.ServerEvent{Type: voicelive.EventSessionUpdated})

	// The stream keeps dispatching after an error event.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.controller.WaitReady(ctx))
}

func TestControllerStreamEndClosesState(t *testing.T) {
	f := startController(t, testVoiceLiveConfig(), Tunables{})

	f.sess.Close()
	require.Eventually(t, func() bool {
		return f.controller.State() == StateClosed
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.controller.Ready())
}
