package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"

	// ModelScribeV1 is the ElevenLabs batch transcription model.
	ModelScribeV1 = "scribe_v1"
)

// ElevenLabs transcribes audio with the ElevenLabs Scribe API.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates an ElevenLabs Scribe provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := defaultConfig()
	cfg.ModelID = ModelScribeV1
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger.With("component", "stt.elevenlabs"),
		baseURL: baseURL,
	}, nil
}

// Name returns the provider identifier.
func (e *ElevenLabs) Name() string { return providerElevenLabs }

// Transcribe uploads the clip as multipart form data and returns the text.
func (e *ElevenLabs) Transcribe(ctx context.Context, audio []byte, cfg TranscriptionConfig) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	start := time.Now()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model_id", e.config.ModelID); err != nil {
		return "", fmt.Errorf("stt: write model_id: %w", err)
	}
	if lang := languageCode(cfg.Language); lang != "" {
		if err := w.WriteField("language_code", lang); err != nil {
			return "", fmt.Errorf("stt: write language_code: %w", err)
		}
	}
	filename := cfg.Filename
	if filename == "" {
		filename = "audio." + orDefault(cfg.Format, FormatWAV)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("stt: write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("stt: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt [%s]: %w", providerElevenLabs, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("stt: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp.StatusCode, raw)
	}

	var out struct {
		Text         string `json:"text"`
		LanguageCode string `json:"language_code"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("stt: decode response: %w", err)
	}

	text := strings.TrimSpace(out.Text)
	e.logger.Debug("transcribed audio",
		"bytes", len(audio),
		"chars", len(text),
		"language", out.LanguageCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// Health checks API connectivity and key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/user", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("stt [%s]: health check: %w", providerElevenLabs, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return apiError(resp.StatusCode, raw)
	}
	return nil
}

// Close releases idle connections.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func apiError(status int, body []byte) error {
	var errResp struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	msg := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		msg = errResp.Detail.Message
	}
	return &APIError{StatusCode: status, Message: msg, Provider: providerElevenLabs}
}

// languageCode turns "en-US" into the ISO-639 "en" Scribe expects.
func languageCode(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var _ Provider = (*ElevenLabs)(nil)
