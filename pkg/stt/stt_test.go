package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromFilename(t *testing.T) {
	assert.Equal(t, "wav", FormatFromFilename("clip.WAV"))
	assert.Equal(t, "webm", FormatFromFilename("recording.audio.webm"))
	assert.Equal(t, "", FormatFromFilename("noext"))
	assert.Equal(t, "", FormatFromFilename("trailing."))
}

func TestElevenLabsTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speech-to-text", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, ModelScribeV1, r.FormValue("model_id"))
		assert.Equal(t, "en", r.FormValue("language_code"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "question.webm", hdr.Filename)
		assert.Equal(t, []byte("RIFFdata"), data)

		_, _ = io.WriteString(w, `{"text":" do you have product 12345 in stock? ","language_code":"en"}`)
	}))
	defer srv.Close()

	p, err := NewElevenLabs(WithAPIKey("key"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	text, err := p.Transcribe(context.Background(), []byte("RIFFdata"), TranscriptionConfig{
		Language: "en-US",
		Filename: "question.webm",
	})
	require.NoError(t, err)
	assert.Equal(t, "do you have product 12345 in stock?", text)
}

func TestElevenLabsTranscribeErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewElevenLabs()
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})

	t.Run("empty audio", func(t *testing.T) {
		p, err := NewElevenLabs(WithAPIKey("k"))
		require.NoError(t, err)
		_, err = p.Transcribe(context.Background(), nil, TranscriptionConfig{})
		assert.ErrorIs(t, err, ErrEmptyAudio)
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"detail":{"message":"bad audio"}}`)
		}))
		defer srv.Close()

		p, err := NewElevenLabs(WithAPIKey("k"), WithBaseURL(srv.URL))
		require.NoError(t, err)
		_, err = p.Transcribe(context.Background(), []byte{1}, TranscriptionConfig{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "bad audio", apiErr.Message)
	})

	t.Run("silence", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"text":""}`)
		}))
		defer srv.Close()

		p, err := NewElevenLabs(WithAPIKey("k"), WithBaseURL(srv.URL))
		require.NoError(t, err)
		_, err = p.Transcribe(context.Background(), []byte{1}, TranscriptionConfig{})
		assert.ErrorIs(t, err, ErrNoSpeech)
	})
}

func TestGoogleTranscribe(t *testing.T) {
	var got *speechpb.RecognizeRequest
	g := newGoogle(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{
			Results: []*speechpb.SpeechRecognitionResult{
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "show me red shoes"}}},
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "under $60"}}},
			},
		}, nil
	}, GoogleConfig{})

	text, err := g.Transcribe(context.Background(), []byte("opus"), TranscriptionConfig{Format: FormatWebM, SampleRate: 48000})
	require.NoError(t, err)
	assert.Equal(t, "show me red shoes under $60", text)
	assert.Equal(t, speechpb.RecognitionConfig_WEBM_OPUS, got.GetConfig().GetEncoding())
	assert.Equal(t, int32(48000), got.GetConfig().GetSampleRateHertz())
	assert.Equal(t, "en-US", got.GetConfig().GetLanguageCode())
	require.NoError(t, g.Health(context.Background()))
}

func TestGoogleTranscribeNoResults(t *testing.T) {
	g := newGoogle(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return &speechpb.RecognizeResponse{}, nil
	}, GoogleConfig{Language: "en-GB"})

	_, err := g.Transcribe(context.Background(), []byte("x"), TranscriptionConfig{})
	assert.ErrorIs(t, err, ErrNoSpeech)
}

func TestEncodingFor(t *testing.T) {
	assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, encodingFor("ogg"))
	assert.Equal(t, speechpb.RecognitionConfig_FLAC, encodingFor("FLAC"))
	assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, encodingFor("pcm"))
	assert.Equal(t, speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, encodingFor("wav"))
}
