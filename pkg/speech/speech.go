// Package speech combines a transcription provider and a synthesis provider
// into the single speech service the request pipeline talks to.
package speech

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teslashibe/go-retail-voice/pkg/stt"
	"github.com/teslashibe/go-retail-voice/pkg/tts"
)

// ErrNotConfigured is returned when the synthesis credential is absent.
var ErrNotConfigured = errors.New("speech: synthesis credential not configured")

// Service is the speech capability used by the pipeline.
type Service interface {
	Transcribe(ctx context.Context, audio []byte, cfg stt.TranscriptionConfig) (string, error)
	Synthesize(ctx context.Context, text string) (*tts.AudioResult, error)
	// Health is a liveness check against the synthesis backend.
	Health(ctx context.Context) error
	// Configured reports whether a synthesis credential is present.
	Configured() bool
}

// Client implements Service on top of an stt.Provider and a tts.Provider.
// Either may be nil: a nil synthesizer means the credential is missing.
type Client struct {
	stt    stt.Provider
	tts    tts.Provider
	logger *slog.Logger
}

// New creates a speech client.
func New(transcriber stt.Provider, synthesizer tts.Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		stt:    transcriber,
		tts:    synthesizer,
		logger: logger.With("component", "speech"),
	}
}

// Transcribe forwards to the transcription provider.
func (c *Client) Transcribe(ctx context.Context, audio []byte, cfg stt.TranscriptionConfig) (string, error) {
	if c.stt == nil {
		return "", stt.ErrUnavailable
	}
	return c.stt.Transcribe(ctx, audio, cfg)
}

// Synthesize forwards to the synthesis provider.
func (c *Client) Synthesize(ctx context.Context, text string) (*tts.AudioResult, error) {
	if c.tts == nil {
		return nil, ErrNotConfigured
	}
	return c.tts.Synthesize(ctx, text)
}

// Health checks the synthesis backend.
func (c *Client) Health(ctx context.Context) error {
	if c.tts == nil {
		return ErrNotConfigured
	}
	return c.tts.Health(ctx)
}

// Configured reports whether synthesis is possible at all.
func (c *Client) Configured() bool {
	return c.tts != nil
}

// Close closes both providers.
func (c *Client) Close() error {
	var errs []error
	if c.stt != nil {
		errs = append(errs, c.stt.Close())
	}
	if c.tts != nil {
		errs = append(errs, c.tts.Close())
	}
	return errors.Join(errs...)
}

var _ Service = (*Client)(nil)
