// Package pipeline runs one customer utterance through the assistant:
// transcribe, probe health, classify, apply the patience limit, dispatch
// to the tool server and synthesize the answer.
//
// Stages run strictly in order. Routing between them is the pure
// function Next, so every path ends with a non-empty ResponseText.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-retail-voice/pkg/dispatch"
	"github.com/teslashibe/go-retail-voice/pkg/health"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
	"github.com/teslashibe/go-retail-voice/pkg/patience"
	"github.com/teslashibe/go-retail-voice/pkg/speech"
	"github.com/teslashibe/go-retail-voice/pkg/stt"
)

const tracerName = "github.com/teslashibe/go-retail-voice/pkg/pipeline"

// Fallback responses for stages that end a request early.
const (
	UnavailableText   = "I'm sorry, our store assistant is temporarily unavailable. Please try again in a moment."
	NotUnderstoodText = "I couldn't understand the audio. Could you please try again?"
)

// Prober probes dependency health.
type Prober interface {
	Probe(ctx context.Context) health.Status
}

// Classifier classifies a transcript. It must not fail; degraded results
// use the unknown intent.
type Classifier interface {
	Classify(ctx context.Context, transcript string) intent.Result
}

// Dispatcher serves a classified intent.
type Dispatcher interface {
	Dispatch(ctx context.Context, in intent.Intent, params intent.Params) dispatch.Outcome
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Speech     speech.Service
	Prober     Prober
	Classifier Classifier
	Limiter    patience.Limiter
	Dispatcher Dispatcher

	// Metrics and Tracer are optional.
	Metrics *Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Input is one utterance. Exactly one of Audio and Text should be set;
// text skips transcription.
type Input struct {
	Audio    []byte
	Format   string
	Filename string
	Text     string

	// OffTopicCount seeds the patience counter, for callers that keep a
	// conversation across requests.
	OffTopicCount int

	// RequestID is generated when empty.
	RequestID string
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, logger: logger.With("component", "pipeline")}
}

// Run processes one utterance and returns the final state. It never
// returns without a ResponseText.
func (o *Orchestrator) Run(ctx context.Context, in Input) *State {
	s := &State{
		RequestID:     in.RequestID,
		Audio:         in.Audio,
		Format:        in.Format,
		Filename:      in.Filename,
		Intent:        intent.Unknown,
		Params:        intent.Params{},
		OffTopicCount: max(in.OffTopicCount, 0),
	}
	if s.RequestID == "" {
		s.RequestID = uuid.NewString()
	}
	logger := o.logger.With("request_id", s.RequestID)

	ctx, span := o.deps.Tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("request.id", s.RequestID)))
	defer span.End()

	stage := StageTranscribe
	if text := strings.TrimSpace(in.Text); text != "" && len(in.Audio) == 0 {
		s.Transcript = text
		stage = StageHealth
	}

	for stage != StageEnd {
		o.step(ctx, logger, stage, s)
		stage = Next(stage, s)
	}

	if s.ResponseText == "" {
		logger.Error("pipeline ended without a response")
		s.ResponseText = dispatch.ErrorText
	}

	span.SetAttributes(
		attribute.String("intent", s.Intent.String()),
		attribute.Int("off_topic_count", s.OffTopicCount),
	)
	if s.Failure != nil {
		span.SetStatus(codes.Error, s.Failure.Error())
	}
	o.deps.Metrics.observeRequest(s)
	logger.Info("request complete",
		"intent", s.Intent,
		"tool", s.ToolName,
		"off_topic_count", s.OffTopicCount,
		"failure", failureString(s.Failure),
		"audio_bytes", len(s.ResponseAudio),
	)
	return s
}

func (o *Orchestrator) step(ctx context.Context, logger *slog.Logger, stage Stage, s *State) {
	ctx, span := o.deps.Tracer.Start(ctx, "pipeline."+stage.String())
	defer span.End()
	start := time.Now()
	failed := s.Failure != nil

	switch stage {
	case StageTranscribe:
		o.transcribe(ctx, logger, s)
	case StageHealth:
		o.checkHealth(ctx, logger, s)
	case StageClassify:
		o.classify(ctx, logger, s)
	case StagePatience:
		o.patience(logger, s)
	case StageDispatch:
		o.dispatch(ctx, s)
	case StageSynthesize:
		o.synthesize(ctx, logger, s)
	}

	d := time.Since(start)
	s.Stages = append(s.Stages, StageTiming{Stage: stage.String(), Duration: d})
	o.deps.Metrics.observeStage(stage, d)
	if !failed && s.Failure != nil {
		span.SetStatus(codes.Error, s.Failure.Message)
	}
	logger.Debug("stage done", "stage", stage.String(), "duration_ms", d.Milliseconds())
}

func (o *Orchestrator) transcribe(ctx context.Context, logger *slog.Logger, s *State) {
	format := s.Format
	if format == "" {
		format = stt.FormatFromFilename(s.Filename)
	}
	text, err := o.deps.Speech.Transcribe(ctx, s.Audio, stt.TranscriptionConfig{
		Format:   format,
		Filename: s.Filename,
	})
	s.Audio = nil

	switch {
	case errors.Is(err, stt.ErrNoSpeech), errors.Is(err, stt.ErrEmptyAudio):
		logger.Info("no speech in request", "error", err)
	case err != nil:
		logger.Warn("transcription failed", "error", err)
		s.fail(TransientUnavailable, "speech-to-text failed: "+err.Error())
	}

	s.Transcript = strings.TrimSpace(text)
	if err != nil || s.Transcript == "" {
		// Dispatch replaces this with the clarifying question unless a
		// later stage ends the request first.
		s.Transcript = ""
		s.ResponseText = NotUnderstoodText
		return
	}
	logger.Info("transcribed", "transcript", s.Transcript)
}

func (o *Orchestrator) checkHealth(ctx context.Context, logger *slog.Logger, s *State) {
	s.Health = o.deps.Prober.Probe(ctx)
	if err := s.Health.Critical(); err != nil {
		logger.Warn("critical dependency failure", "error", err)
		s.fail(TransientUnavailable, err.Error())
		s.ResponseText = UnavailableText
	}
}

func (o *Orchestrator) classify(ctx context.Context, logger *slog.Logger, s *State) {
	res := intent.UnknownResult()
	if s.Transcript != "" {
		res = o.deps.Classifier.Classify(ctx, s.Transcript)
	}
	in, ok := intent.Parse(string(res.Intent))
	if !ok {
		in = intent.Unknown
	}
	s.Intent = in
	s.Params = res.Params
	if s.Params == nil {
		s.Params = intent.Params{}
	}
	logger.Info("classified", "intent", s.Intent, "confidence", res.Confidence)
}

func (o *Orchestrator) patience(logger *slog.Logger, s *State) {
	d := o.deps.Limiter.Evaluate(s.Intent, s.OffTopicCount)
	s.Patience = d
	s.OffTopicCount = d.Count

	if d.Cutoff {
		logger.Warn("patience limit reached", "count", d.Count)
		s.Cutoff = true
		s.ResponseText = patience.RefusalMessage
		s.fail(LimitExceeded, "patience limit reached")
		return
	}
	if !s.Intent.IsOffTopic() {
		return
	}
	switch d.Level {
	case patience.Warning:
		logger.Warn("high off-topic count", "count", d.Count, "remaining", d.Remaining)
	case patience.Notice:
		logger.Info("moderate off-topic count", "count", d.Count)
	default:
		logger.Debug("off-topic turn", "count", d.Count)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, s *State) {
	out := o.deps.Dispatcher.Dispatch(ctx, s.Intent, s.Params)
	s.ToolName = out.ToolName
	s.ToolResult = out.ToolResult
	s.ResponseText = out.ResponseText
	if out.Failure != nil {
		s.fail(failureKind(out.Failure), out.Failure.Error())
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, logger *slog.Logger, s *State) {
	res, err := o.deps.Speech.Synthesize(ctx, s.ResponseText)
	if err != nil {
		logger.Warn("speech synthesis failed, returning text only", "error", err)
		return
	}
	s.ResponseAudio = res.Audio
	s.AudioMIME = res.MIMEType
}

func failureString(f *Failure) string {
	if f == nil {
		return ""
	}
	return f.Error()
}
