package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/go-retail-voice/internal/config"
	"github.com/teslashibe/go-retail-voice/internal/tracing"
	"github.com/teslashibe/go-retail-voice/pkg/catalog"
	"github.com/teslashibe/go-retail-voice/pkg/dispatch"
	"github.com/teslashibe/go-retail-voice/pkg/health"
	"github.com/teslashibe/go-retail-voice/pkg/inference"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
	"github.com/teslashibe/go-retail-voice/pkg/patience"
	"github.com/teslashibe/go-retail-voice/pkg/pipeline"
	"github.com/teslashibe/go-retail-voice/pkg/session"
	"github.com/teslashibe/go-retail-voice/pkg/speech"
	"github.com/teslashibe/go-retail-voice/pkg/stt"
	"github.com/teslashibe/go-retail-voice/pkg/tts"
)

// service is the fully wired process.
type service struct {
	cfg          config.Config
	logger       *slog.Logger
	catalog      *catalog.MCPClient
	speech       *speech.Client
	orchestrator *pipeline.Orchestrator
	sessions     session.Store
	registry     *prometheus.Registry
	tracing      *tracing.Provider
}

// newService builds every component from cfg. Missing speech credentials
// degrade the service; a classifier with no usable backend fails startup.
func newService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*service, error) {
	svc := &service{cfg: cfg, logger: logger}

	tp, err := tracing.New(ctx, tracing.Config{
		Endpoint: cfg.TracingEndpoint,
		Insecure: cfg.TracingInsecure,
		Version:  Version,
	}, logger)
	if err != nil {
		return nil, err
	}
	svc.tracing = tp

	svc.catalog, err = catalog.NewMCPClient(cfg.ToolProviderEndpoint, catalog.Options{
		Timeout:         catalog.DefaultOptions().Timeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
		Version:         Version,
		Logger:          logger,
	})
	if err != nil {
		svc.close(ctx)
		return nil, err
	}

	svc.speech = speech.New(newTranscriber(ctx, cfg, logger), newSynthesizer(cfg, logger), logger)

	provider, err := newClassifierProvider(ctx, cfg, logger)
	if err != nil {
		svc.close(ctx)
		return nil, err
	}
	classifier := intent.NewAdapter(svc.catalog,
		intent.NewLLMClassifier(provider, intent.WithLogger(logger)), logger)

	svc.sessions, err = newSessionStore(ctx, cfg)
	if err != nil {
		svc.close(ctx)
		return nil, err
	}

	svc.registry = prometheus.NewRegistry()
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := pipeline.NewMetrics(svc.registry)
	if err != nil {
		svc.close(ctx)
		return nil, err
	}

	svc.orchestrator = pipeline.New(pipeline.Deps{
		Speech: svc.speech,
		Prober: health.NewProber(health.Config{
			ToolEndpoint:    cfg.ToolProviderEndpoint,
			CatalogEndpoint: cfg.CatalogEndpoint,
			Speech:          svc.speech,
			Timeout:         cfg.HealthCheckTimeout(),
		}, health.WithLogger(logger)),
		Classifier: classifier,
		Limiter:    patience.New(cfg.PatienceThreshold),
		Dispatcher: dispatch.New(svc.catalog, dispatch.WithLogger(logger)),
		Metrics:    metrics,
		Tracer:     tp.Tracer("retail-voice"),
		Logger:     logger,
	})
	return svc, nil
}

// newTranscriber returns nil when the configured backend cannot be built;
// transcription then reports the speech service unavailable.
func newTranscriber(ctx context.Context, cfg config.Config, logger *slog.Logger) stt.Provider {
	switch cfg.STTProvider {
	case config.STTGoogle:
		g, err := stt.NewGoogle(ctx, stt.GoogleConfig{
			CredentialsFile: cfg.GoogleCredentialsFile,
			Language:        cfg.SpeechLanguage,
			Logger:          logger,
		})
		if err != nil {
			logger.Warn("google speech-to-text unavailable", "error", err)
			return nil
		}
		return g
	default:
		e, err := stt.NewElevenLabs(
			stt.WithAPIKey(cfg.ElevenLabsAPIKey),
			stt.WithBaseURL(cfg.SpeechServiceEndpoint),
			stt.WithLogger(logger),
		)
		if err != nil {
			logger.Warn("elevenlabs speech-to-text unavailable", "error", err)
			return nil
		}
		return e
	}
}

// newSynthesizer returns nil without a credential; the health stage then
// reports speech as not configured.
func newSynthesizer(cfg config.Config, logger *slog.Logger) tts.Provider {
	opts := []tts.Option{
		tts.WithAPIKey(cfg.ElevenLabsAPIKey),
		tts.WithBaseURL(cfg.SpeechServiceEndpoint),
		tts.WithLogger(logger),
	}
	if cfg.ElevenLabsVoiceID != "" {
		opts = append(opts, tts.WithVoice(cfg.ElevenLabsVoiceID))
	}
	e, err := tts.NewElevenLabs(opts...)
	if err != nil {
		logger.Warn("text-to-speech not configured", "error", err)
		return nil
	}
	return e
}

// newClassifierProvider builds the primary backend and, when configured,
// chains the fallback behind it.
func newClassifierProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (inference.Provider, error) {
	var providers []inference.Provider
	var errs []error
	for _, name := range []string{cfg.ClassifierProvider, cfg.ClassifierFallback} {
		if name == "" {
			continue
		}
		p, err := newInferenceProvider(ctx, name, cfg, logger)
		if err != nil {
			logger.Warn("classifier backend unavailable", "provider", name, "error", err)
			errs = append(errs, err)
			continue
		}
		providers = append(providers, p)
	}
	switch len(providers) {
	case 0:
		return nil, fmt.Errorf("classifier: %w: %w", inference.ErrNoProvider, errors.Join(errs...))
	case 1:
		return providers[0], nil
	default:
		return inference.NewChain(logger, providers...)
	}
}

func newInferenceProvider(ctx context.Context, name string, cfg config.Config, logger *slog.Logger) (inference.Provider, error) {
	switch name {
	case config.ProviderAnthropic:
		return inference.NewAnthropic(
			inference.WithAPIKey(cfg.AnthropicAPIKey),
			inference.WithModel(cfg.AnthropicModel),
			inference.WithLogger(logger),
		)
	case config.ProviderGemini:
		return inference.NewGemini(ctx,
			inference.WithAPIKey(cfg.GeminiAPIKey),
			inference.WithModel(cfg.GeminiModel),
			inference.WithLogger(logger),
		)
	case config.ProviderOpenAI:
		opts := []inference.Option{
			inference.WithAPIKey(cfg.OpenAIAPIKey),
			inference.WithModel(cfg.ClassifierModelName),
			inference.WithLogger(logger),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, inference.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return inference.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", name)
	}
}

func newSessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionRedis:
		r, err := session.DialRedis(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.SessionMemory:
		return session.NewMemoryStore(cfg.SessionSize, cfg.SessionTTL), nil
	default:
		return nil, nil
	}
}

// close releases everything that was built. Safe on a partial service.
func (s *service) close(ctx context.Context) {
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			s.logger.Warn("close sessions", "error", err)
		}
	}
	if s.speech != nil {
		if err := s.speech.Close(); err != nil {
			s.logger.Warn("close speech", "error", err)
		}
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			s.logger.Warn("close tool client", "error", err)
		}
	}
	if s.tracing != nil {
		if err := s.tracing.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown tracing", "error", err)
		}
	}
}
