package stt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const providerGoogle = "google"

// GoogleConfig configures the Google Cloud Speech provider.
type GoogleConfig struct {
	// CredentialsFile is a service-account JSON key. Empty uses
	// Application Default Credentials.
	CredentialsFile string
	Language        string
	Logger          *slog.Logger
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Google transcribes audio with the Cloud Speech v1 Recognize call.
type Google struct {
	client    *speech.Client
	recognize recognizeFunc
	language  string
	logger    *slog.Logger
}

// NewGoogle creates a Cloud Speech client with explicit credentials.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	creds, err := googleCredentials(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	client, err := speech.NewClient(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("stt [%s]: create client: %w", providerGoogle, err)
	}

	g := newGoogle(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}, cfg)
	g.client = client
	return g, nil
}

func newGoogle(fn recognizeFunc, cfg GoogleConfig) *Google {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en-US"
	}
	return &Google{
		recognize: fn,
		language:  lang,
		logger:    logger.With("component", "stt.google"),
	}
}

func googleCredentials(ctx context.Context, path string) (*google.Credentials, error) {
	if path == "" {
		creds, err := google.FindDefaultCredentials(ctx, speech.DefaultAuthScopes()...)
		if err != nil {
			return nil, fmt.Errorf("stt [%s]: default credentials: %w", providerGoogle, err)
		}
		return creds, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stt [%s]: read credentials: %w", providerGoogle, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, speech.DefaultAuthScopes()...)
	if err != nil {
		return nil, fmt.Errorf("stt [%s]: parse credentials: %w", providerGoogle, err)
	}
	return creds, nil
}

// Name returns the provider identifier.
func (g *Google) Name() string { return providerGoogle }

// Transcribe sends the clip in a single synchronous Recognize request and
// joins the top alternative of every result.
func (g *Google) Transcribe(ctx context.Context, audio []byte, cfg TranscriptionConfig) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	lang := cfg.Language
	if lang == "" {
		lang = g.language
	}
	rc := &speechpb.RecognitionConfig{
		Encoding:                   encodingFor(cfg.Format),
		LanguageCode:               lang,
		EnableAutomaticPunctuation: true,
	}
	if cfg.SampleRate > 0 {
		rc.SampleRateHertz = int32(cfg.SampleRate)
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("stt [%s]: recognize: %w", providerGoogle, err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	if len(parts) == 0 {
		return "", ErrNoSpeech
	}
	text := strings.Join(parts, " ")
	g.logger.Debug("transcribed audio", "bytes", len(audio), "chars", len(text))
	return text, nil
}

// Health reports whether a client is configured. Cloud Speech has no
// cheap liveness call.
func (g *Google) Health(ctx context.Context) error {
	if g.recognize == nil {
		return ErrUnavailable
	}
	return nil
}

// Close closes the gRPC connection.
func (g *Google) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// encodingFor maps a container to a Cloud Speech encoding. WAV and FLAC
// carry their own header, so they are left unspecified.
func encodingFor(format string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(format) {
	case FormatWebM:
		return speechpb.RecognitionConfig_WEBM_OPUS
	case FormatOgg:
		return speechpb.RecognitionConfig_OGG_OPUS
	case FormatFLAC:
		return speechpb.RecognitionConfig_FLAC
	case "pcm", "raw":
		return speechpb.RecognitionConfig_LINEAR16
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

var _ Provider = (*Google)(nil)
