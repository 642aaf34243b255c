package voicelive

import "context"

// Session is the contract the bridge core consumes. Client implements
// it over a websocket; tests substitute fakes.
type Session interface {
	// SendInputAudio sends one chunk of raw PCM16 caller audio.
	SendInputAudio(ctx context.Context, pcm []byte) error
	// SendEvent sends an arbitrary client event.
	SendEvent(ctx context.Context, ev ClientEvent) error
	// Events delivers server events in arrival order. The channel is
	// closed when the connection ends.
	Events() <-chan ServerEvent
	Close() error
}

// SessionOptions is the body of a session.update event.
type SessionOptions struct {
	Modalities                 []string          `json:"modalities,omitempty"`
	Instructions               string            `json:"instructions,omitempty"`
	Voice                      *Voice            `json:"voice,omitempty"`
	InputAudioFormat           string            `json:"input_audio_format,omitempty"`
	OutputAudioFormat          string            `json:"output_audio_format,omitempty"`
	InputAudioSamplingRate     int               `json:"input_audio_sampling_rate,omitempty"`
	TurnDetection              *TurnDetection    `json:"turn_detection,omitempty"`
	InputAudioNoiseReduction   *NoiseReduction   `json:"input_audio_noise_reduction,omitempty"`
	InputAudioEchoCancellation *EchoCancellation `json:"input_audio_echo_cancellation,omitempty"`
	InputAudioTranscription    *Transcription    `json:"input_audio_transcription,omitempty"`
}

// Voice selects an Azure standard voice by name.
type Voice struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty"`
	AutoTruncate      bool    `json:"auto_truncate,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
}

type NoiseReduction struct {
	Type string `json:"type"`
}

type EchoCancellation struct {
	Type string `json:"type,omitempty"`
}

// Transcription enables input audio transcription. Language applies to
// azure-speech only; whisper autodetects.
type Transcription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

const (
	AudioFormatPCM16 = "pcm16"

	VoiceTypeAzureStandard = "azure-standard"

	TurnDetectionSemanticVAD = "azure_semantic_vad"

	NoiseReductionDeep = "azure_deep_noise_suppression"

	TranscriptionAzureSpeech = "azure-speech"
	TranscriptionWhisper     = "whisper-1"
)
