package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-retail-voice/pkg/tts"
)

func TestNewElevenLabsValidation(t *testing.T) {
	_, err := tts.NewElevenLabs()
	assert.ErrorIs(t, err, tts.ErrNoAPIKey)

	_, err = tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithVoice(""))
	assert.ErrorIs(t, err, tts.ErrNoVoiceID)
}

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "We have 3 units.", body["text"])
		assert.Equal(t, tts.ModelTurboV2_5, body["model_id"])

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3fake")
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(tts.WithAPIKey("secret"), tts.WithVoice("voice-1"), tts.WithBaseURL(srv.URL))
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Synthesize(context.Background(), "We have 3 units.")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3fake"), res.Audio)
	assert.Equal(t, "audio/mpeg", res.MIMEType)
	assert.Equal(t, 16, res.CharCount)
}

func TestElevenLabsErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`)
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(tts.WithAPIKey("bad"), tts.WithBaseURL(srv.URL))
	require.NoError(t, err)

	t.Run("synthesize is not retried", func(t *testing.T) {
		_, err := p.Synthesize(context.Background(), "hello")
		var apiErr *tts.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.True(t, apiErr.IsUnauthorized())
		assert.Equal(t, "Invalid API key", apiErr.Message)
		assert.Equal(t, 1, calls)
	})

	t.Run("health", func(t *testing.T) {
		assert.Error(t, p.Health(context.Background()))
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := p.Synthesize(context.Background(), "  ")
		assert.ErrorIs(t, err, tts.ErrEmptyText)
	})
}

func TestMock(t *testing.T) {
	ctx := context.Background()
	m := tts.NewMock()

	res, err := m.Synthesize(ctx, "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Audio)
	require.NoError(t, m.Health(ctx))
	assert.Equal(t, 1, m.CallCount("Synthesize"))
	assert.Len(t, m.Calls(), 2)

	m.Reset()
	assert.Empty(t, m.Calls())

	boom := errors.New("boom")
	_, err = tts.WithError(boom).Synthesize(ctx, "hi")
	assert.ErrorIs(t, err, boom)
}
