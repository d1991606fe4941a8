// Package tts provides the text-to-speech half of the speech service.
//
// Providers turn the assistant's response text into an encoded audio clip
// that the HTTP layer returns base64-encoded to the caller.
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(cfg.ElevenLabsAPIKey),
//	    tts.WithVoice(cfg.ElevenLabsVoiceID),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Yes, product 12345 is in stock.")
//	// result.Audio holds MP3 bytes, result.MIMEType is "audio/mpeg"
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to a complete audio clip.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	Audio    []byte
	Encoding Encoding
	MIMEType string

	// CharCount is the number of characters synthesized.
	CharCount int

	// Latency is the request round trip.
	Latency time.Duration
}

// Encoding represents ElevenLabs output_format values.
type Encoding string

const (
	EncodingMP3   Encoding = "mp3_44100_128"
	EncodingMP3Lo Encoding = "mp3_22050_32"
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingULaw  Encoding = "ulaw_8000"
)

// MIMEType maps an encoding to the Content-Type clients should use.
func (e Encoding) MIMEType() string {
	switch e {
	case EncodingPCM16, EncodingPCM24:
		return "audio/pcm"
	case EncodingULaw:
		return "audio/basic"
	default:
		return "audio/mpeg"
	}
}

// VoiceSettings controls voice characteristics.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings returns the settings used for store announcements.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}
