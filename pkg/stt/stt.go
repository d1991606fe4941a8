// Package stt provides the speech-to-text half of the speech service.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Common audio container formats accepted on the /voice endpoint.
const (
	FormatWAV  = "wav"
	FormatWebM = "webm"
	FormatOgg  = "ogg"
	FormatFLAC = "flac"
	FormatMP3  = "mp3"
)

// Provider transcribes one complete utterance.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, audio []byte, cfg TranscriptionConfig) (string, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// TranscriptionConfig describes the uploaded audio.
type TranscriptionConfig struct {
	// Format is the container, e.g. "wav" or "webm". Empty means detect.
	Format string

	// SampleRate in Hz. Zero lets the provider read it from the header.
	SampleRate int

	// Language is a BCP-47 hint such as "en-US".
	Language string

	// Filename is forwarded to multipart uploads.
	Filename string
}

// FormatFromFilename returns the lower-case extension of name, or "".
func FormatFromFilename(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Sentinel errors.
var (
	ErrNoAPIKey    = errors.New("stt: API key required")
	ErrEmptyAudio  = errors.New("stt: empty audio")
	ErrNoSpeech    = errors.New("stt: no speech recognized")
	ErrUnavailable = errors.New("stt: provider unavailable")
)

// APIError represents an error response from an STT API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Config holds provider configuration shared by the HTTP-based providers.
type Config struct {
	APIKey  string
	BaseURL string
	ModelID string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Option is a functional option for configuring STT providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the model ID.
func WithModel(id string) Option {
	return func(c *Config) { c.ModelID = id }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func defaultConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
		Logger:  slog.Default(),
	}
}
