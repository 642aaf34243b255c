package bridge

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/vidyann/azure-voicelive-sip-sample/voicelive"
)

// fakeSession records everything the bridge sends and lets tests feed
// server events in.
type fakeSession struct {
	mu       sync.Mutex
	events   chan voicelive.ServerEvent
	audio    [][]byte
	sent     []voicelive.ClientEvent
	sendErr  error
	audioErr error
	closed   bool

	// autoReady answers any session.update with session.created and
	// session.updated, like the live service does.
	autoReady bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan voicelive.ServerEvent, 256)}
}

func (s *fakeSession) SendInputAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audioErr != nil {
		return s.audioErr
	}
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	s.audio = append(s.audio, chunk)
	return nil
}

func (s *fakeSession) SendEvent(_ context.Context, ev voicelive.ClientEvent) error {
	s.mu.Lock()
	if s.sendErr != nil {
		defer s.mu.Unlock()
		return s.sendErr
	}
	s.sent = append(s.sent, ev)
	reply := s.autoReady && ev.EventType() == "session.update"
	s.mu.Unlock()

	if reply {
		s.emit(voicelive.ServerEvent{Type: voicelive.EventSessionCreated, Session: &voicelive.SessionState{ID: "sess_test"}})
		s.emit(voicelive.ServerEvent{Type: voicelive.EventSessionUpdated})
	}
	return nil
}

func (s *fakeSession) Events() <-chan voicelive.ServerEvent {
	return s.events
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeSession) emit(ev voicelive.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- ev
	}
}

func (s *fakeSession) sentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

func (s *fakeSession) sentEvents() []voicelive.ClientEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]voicelive.ClientEvent, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// pcmConst builds little-endian PCM16 of n samples, all equal to v.
func pcmConst(n int, v int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// One 160-byte µ-law packet corresponds to 480 samples of PCM16 at
// 24 kHz on the producer side.
const pcmPerPacket = 480

// Constant sample 1000 encodes to µ-law 0xCE, -1000 to 0x4E. Handy
// for telling real audio from 0xFF silence fills.
const (
	ulawForPos1000 = 0xCE
	ulawForNeg1000 = 0x4E
)
