package voicelive

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultInstructions = "You are a helpful AI voice assistant. " +
	"Keep responses VERY brief and concise. Answer in 1-2 sentences maximum. " +
	"You MUST always respond in English only, regardless of the language spoken by the user."

const defaultGreeting = "Hello! How can I help you today?"

// Config carries everything needed to dial and configure a live
// session. Populate it directly or via ConfigFromEnv.
type Config struct {
	// Endpoint is the Azure AI resource endpoint, https:// or wss://.
	Endpoint string
	APIKey   string
	Model    string
	// Voice is an Azure standard voice name, e.g. en-US-AvaNeural.
	Voice        string
	Instructions string
	// TranscriptionModel is azure-speech or whisper-1.
	TranscriptionModel    string
	TranscriptionLanguage string
	APIVersion            string
	// MaxResponseOutputTokens is kept for brevity tuning. The service
	// does not accept it on session.update yet, so it is logged but
	// never sent; Instructions carry the brevity constraint instead.
	MaxResponseOutputTokens int
	GreetingEnabled         bool
	Greeting                string
}

// ConfigFromEnv builds a Config from VOICE_LIVE_* environment
// variables. Endpoint, key, model and voice are required.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:                os.Getenv("VOICE_LIVE_ENDPOINT"),
		APIKey:                  os.Getenv("VOICE_LIVE_API_KEY"),
		Model:                   os.Getenv("VOICE_LIVE_MODEL"),
		Voice:                   os.Getenv("VOICE_LIVE_VOICE"),
		Instructions:            envOr("VOICE_LIVE_INSTRUCTIONS", defaultInstructions),
		TranscriptionModel:      envOr("VOICE_LIVE_TRANSCRIPTION_MODEL", TranscriptionAzureSpeech),
		TranscriptionLanguage:   envOr("VOICE_LIVE_TRANSCRIPTION_LANGUAGE", "en-US"),
		APIVersion:              envOr("VOICE_LIVE_API_VERSION", "2025-10-01"),
		MaxResponseOutputTokens: 200,
		GreetingEnabled:         true,
		Greeting:                envOr("VOICE_LIVE_PROACTIVE_GREETING", defaultGreeting),
	}

	for name, v := range map[string]string{
		"VOICE_LIVE_ENDPOINT": cfg.Endpoint,
		"VOICE_LIVE_API_KEY":  cfg.APIKey,
		"VOICE_LIVE_MODEL":    cfg.Model,
		"VOICE_LIVE_VOICE":    cfg.Voice,
	} {
		if v == "" {
			return Config{}, fmt.Errorf("environment variable %s is required", name)
		}
	}

	if !strings.HasPrefix(cfg.Endpoint, "https://") && !strings.HasPrefix(cfg.Endpoint, "wss://") {
		return Config{}, fmt.Errorf("VOICE_LIVE_ENDPOINT must start with https:// or wss://")
	}

	if s := os.Getenv("VOICE_LIVE_MAX_RESPONSE_OUTPUT_TOKENS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("parsing VOICE_LIVE_MAX_RESPONSE_OUTPUT_TOKENS: %w", err)
		}
		cfg.MaxResponseOutputTokens = n
	}
	if s := os.Getenv("VOICE_LIVE_PROACTIVE_GREETING_ENABLED"); s != "" {
		cfg.GreetingEnabled, _ = strconv.ParseBool(s)
	}

	return cfg, nil
}

// WebsocketURL builds the realtime endpoint URL:
// wss://<resource>/voice-live/realtime?api-version=<v>&model=<m>
func (c Config) WebsocketURL() string {
	base := c.Endpoint
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		base = "wss://" + rest
	}
	base = strings.TrimSuffix(base, "/")
	return fmt.Sprintf("%s/voice-live/realtime?api-version=%s&model=%s", base, c.APIVersion, c.Model)
}

// SessionOptions builds the session.update body for this config:
// PCM16 both ways, 24 kHz input, semantic VAD with barge-in, deep
// noise suppression, echo cancellation and input transcription.
func (c Config) SessionOptions() SessionOptions {
	transcription := &Transcription{Model: TranscriptionAzureSpeech}
	if strings.EqualFold(c.TranscriptionModel, TranscriptionWhisper) ||
		strings.EqualFold(c.TranscriptionModel, "WHISPER_1") {
		transcription.Model = TranscriptionWhisper
	} else {
		// Whisper autodetects; azure-speech needs the language pinned.
		transcription.Language = c.TranscriptionLanguage
	}

	return SessionOptions{
		Modalities:             []string{"text", "audio"},
		Instructions:           c.Instructions,
		Voice:                  &Voice{Name: c.Voice, Type: VoiceTypeAzureStandard},
		InputAudioFormat:       AudioFormatPCM16,
		OutputAudioFormat:      AudioFormatPCM16,
		InputAudioSamplingRate: 24000,
		TurnDetection: &TurnDetection{
			Type:              TurnDetectionSemanticVAD,
			Threshold:         0.3,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
			InterruptResponse: true,
			AutoTruncate:      true,
			CreateResponse:    true,
		},
		InputAudioNoiseReduction:   &NoiseReduction{Type: NoiseReductionDeep},
		InputAudioEchoCancellation: &EchoCancellation{},
		InputAudioTranscription:    transcription,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
