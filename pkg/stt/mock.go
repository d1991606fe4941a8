package stt

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns Text.
	TranscribeFunc func(ctx context.Context, audio []byte, cfg TranscriptionConfig) (string, error)

	// HealthFunc is called when Health is invoked. If nil, returns nil.
	HealthFunc func(ctx context.Context) error

	// Text is the canned transcript.
	Text string

	mu    sync.Mutex
	calls int
}

// NewMock returns a mock that always hears text.
func NewMock(text string) *Mock {
	return &Mock{Text: text}
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Transcribe returns the canned transcript or calls TranscribeFunc.
func (m *Mock) Transcribe(ctx context.Context, audio []byte, cfg TranscriptionConfig) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, cfg)
	}
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	return m.Text, nil
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// CallCount returns how many times Transcribe was called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Provider = (*Mock)(nil)
