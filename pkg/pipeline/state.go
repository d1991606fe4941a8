package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-retail-voice/pkg/catalog"
	"github.com/teslashibe/go-retail-voice/pkg/health"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
	"github.com/teslashibe/go-retail-voice/pkg/patience"
)

// Stage names a pipeline step.
type Stage int

const (
	StageTranscribe Stage = iota
	StageHealth
	StageClassify
	StagePatience
	StageDispatch
	StageSynthesize
	StageEnd
)

func (s Stage) String() string {
	switch s {
	case StageTranscribe:
		return "transcribe"
	case StageHealth:
		return "health"
	case StageClassify:
		return "classify"
	case StagePatience:
		return "patience"
	case StageDispatch:
		return "dispatch"
	case StageSynthesize:
		return "synthesize"
	default:
		return "end"
	}
}

// FailureKind classifies a terminal failure.
type FailureKind int

const (
	TransientUnavailable FailureKind = iota + 1
	Malformed
	UserInputMissing
	LimitExceeded
	Unhandled
)

func (k FailureKind) String() string {
	switch k {
	case TransientUnavailable:
		return "transient_unavailable"
	case Malformed:
		return "malformed"
	case UserInputMissing:
		return "user_input_missing"
	case LimitExceeded:
		return "limit_exceeded"
	case Unhandled:
		return "unhandled"
	default:
		return "none"
	}
}

// MarshalText renders the kind for JSON output.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind written by MarshalText.
func (k *FailureKind) UnmarshalText(b []byte) error {
	for c := TransientUnavailable; c <= Unhandled; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown failure kind %q", b)
}

// Failure is the terminal error marker of a request.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Message
}

// StageTiming records how long one stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"durationNs"`
}

// State is threaded through every stage of one request.
type State struct {
	RequestID string

	// Audio is dropped as soon as it has been transcribed.
	Audio    []byte
	Format   string
	Filename string

	Transcript string
	Health     health.Status
	Intent     intent.Intent
	Params     intent.Params

	// OffTopicCount starts at the caller's seed and grows by at most one.
	OffTopicCount int
	Patience      patience.Decision
	Cutoff        bool

	ToolName   string
	ToolResult string

	ResponseText  string
	ResponseAudio []byte
	AudioMIME     string

	Failure *Failure
	Stages  []StageTiming
}

func (s *State) fail(kind FailureKind, msg string) {
	s.Failure = &Failure{Kind: kind, Message: msg}
}

// Next is the transition function. It reads only the fields the current
// stage has set.
func Next(stage Stage, s *State) Stage {
	switch stage {
	case StageTranscribe:
		// An empty transcript still continues: it classifies as unknown
		// and gets a spoken clarifying question.
		if s.Failure != nil {
			return StageEnd
		}
		return StageHealth
	case StageHealth:
		if s.Failure != nil {
			return StageEnd
		}
		return StageClassify
	case StageClassify:
		return StagePatience
	case StagePatience:
		if s.Cutoff {
			return StageSynthesize
		}
		return StageDispatch
	case StageDispatch:
		return StageSynthesize
	default:
		return StageEnd
	}
}

// failureKind maps a dispatch error onto the taxonomy. Everything that is
// not malformed data, recovered panics included, counts as unavailability.
func failureKind(err error) FailureKind {
	if errors.Is(err, catalog.ErrMalformed) {
		return Malformed
	}
	return TransientUnavailable
}
