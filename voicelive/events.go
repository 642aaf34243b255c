// Package voicelive implements the client side of the Azure Voice Live
// realtime protocol: typed events, session configuration, environment
// driven config and a websocket client.
package voicelive

import (
	"encoding/base64"
	"fmt"
)

// Server event types the gateway reacts to. Any other type passes
// through the event channel untouched.
const (
	EventSessionCreated          = "session.created"
	EventSessionUpdated          = "session.updated"
	EventResponseCreated         = "response.created"
	EventResponseDone            = "response.done"
	EventResponseAudioDelta      = "response.audio.delta"
	EventResponseAudioDone       = "response.audio.done"
	EventResponseTextDelta       = "response.text.delta"
	EventResponseAudioTransDelta = "response.audio_transcript.delta"
	EventSpeechStarted           = "input_audio_buffer.speech_started"
	EventSpeechStopped           = "input_audio_buffer.speech_stopped"
	EventInputTranscriptionDone  = "conversation.item.input_audio_transcription.completed"
	EventError                   = "error"
)

// ServerEvent is a single event received from the service. One struct
// covers all event types; fields are populated per Type.
type ServerEvent struct {
	Type       string        `json:"type"`
	EventID    string        `json:"event_id,omitempty"`
	ItemID     string        `json:"item_id,omitempty"`
	ResponseID string        `json:"response_id,omitempty"`
	Delta      string        `json:"delta,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Session    *SessionState `json:"session,omitempty"`
	Error      *ErrorPayload `json:"error,omitempty"`
}

// SessionState is the session object echoed back on session.created and
// session.updated. Only the id is of interest to the gateway.
type SessionState struct {
	ID string `json:"id"`
}

// ErrorPayload is the error payload of an "error" event.
type ErrorPayload struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *ErrorPayload) Error() string {
	return fmt.Sprintf("voicelive: %s (%s)", e.Message, e.Code)
}

// AudioDelta decodes the base64 audio payload of a response.audio.delta
// event. PCM16 little-endian at the session output rate.
func (e ServerEvent) AudioDelta() ([]byte, error) {
	if e.Delta == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(e.Delta)
	if err != nil {
		return nil, fmt.Errorf("decoding audio delta: %w", err)
	}
	return data, nil
}

// ClientEvent is any event the client can send to the service.
type ClientEvent interface {
	EventType() string
}

// SessionUpdate configures the live session. Must be the first event
// sent after connecting.
type SessionUpdate struct {
	Type    string         `json:"type"`
	Session SessionOptions `json:"session"`
}

func NewSessionUpdate(opts SessionOptions) SessionUpdate {
	return SessionUpdate{Type: "session.update", Session: opts}
}

func (SessionUpdate) EventType() string { return "session.update" }

// ResponseCreate asks the service to generate a response without
// waiting for user speech. Used for the proactive greeting.
type ResponseCreate struct {
	Type     string                 `json:"type"`
	Response *ResponseCreateOptions `json:"response,omitempty"`
}

type ResponseCreateOptions struct {
	Instructions string `json:"instructions,omitempty"`
}

func NewResponseCreate(instructions string) ResponseCreate {
	ev := ResponseCreate{Type: "response.create"}
	if instructions != "" {
		ev.Response = &ResponseCreateOptions{Instructions: instructions}
	}
	return ev
}

func (ResponseCreate) EventType() string { return "response.create" }

// InputAudioBufferAppend carries one chunk of caller audio, base64
// encoded PCM16.
type InputAudioBufferAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func NewInputAudioBufferAppend(pcm []byte) InputAudioBufferAppend {
	return InputAudioBufferAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}
}

func (InputAudioBufferAppend) EventType() string { return "input_audio_buffer.append" }
