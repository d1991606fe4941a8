// Package patience limits how many off-topic questions a customer may ask
// before the assistant stops answering them.
package patience

import "github.com/teslashibe/go-retail-voice/pkg/intent"

// DefaultThreshold is the off-topic count at which the assistant refuses.
const DefaultThreshold = 10

// RefusalMessage is spoken once the limit is reached.
const RefusalMessage = "I'm sorry, but I've noticed that your questions are not related to our products, stock, or store policies. " +
	"Please focus your inquiries on topics relevant to our store. " +
	"I cannot continue assisting you with topics outside of these areas."

// Level grades how close a conversation is to the limit.
type Level int

const (
	Normal Level = iota
	Notice
	Warning
	Cutoff
)

func (l Level) String() string {
	switch l {
	case Notice:
		return "notice"
	case Warning:
		return "warning"
	case Cutoff:
		return "cutoff"
	default:
		return "normal"
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	// Count is the off-topic count after this turn.
	Count     int
	Level     Level
	Cutoff    bool
	Remaining int
}

// Limiter evaluates turns against a threshold. The zero value uses
// DefaultThreshold.
type Limiter struct {
	Threshold int
}

// New returns a Limiter. A threshold <= 0 selects DefaultThreshold.
func New(threshold int) Limiter {
	return Limiter{Threshold: threshold}
}

func (l Limiter) threshold() int {
	if l.Threshold <= 0 {
		return DefaultThreshold
	}
	return l.Threshold
}

// Evaluate classifies a turn. On-topic turns leave count unchanged;
// off-topic turns add one and cut off once the new count reaches the
// threshold.
func (l Limiter) Evaluate(in intent.Intent, count int) Decision {
	t := l.threshold()
	if count < 0 {
		count = 0
	}
	if !in.IsOffTopic() {
		return Decision{Count: count, Level: l.level(count), Remaining: max(t-count, 0)}
	}

	count++
	if count >= t {
		return Decision{Count: count, Level: Cutoff, Cutoff: true}
	}
	return Decision{Count: count, Level: l.level(count), Remaining: t - count}
}

func (l Limiter) level(count int) Level {
	t := float64(l.threshold())
	c := float64(count)
	switch {
	case c >= t:
		return Cutoff
	case c >= 0.7*t:
		return Warning
	case c >= 0.5*t:
		return Notice
	default:
		return Normal
	}
}
