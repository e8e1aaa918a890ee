package retry

import (
	"fmt"
	"time"

	"github.com/iyunix/mcp-openai/internal/services/ai"
)

type State string

const (
	StateSucceeded                State = "succeeded"
	StateFailedPermanent          State = "failed_permanent"
	StateFailedTransientExhausted State = "failed_transient_exhausted"
	StateCancelled                State = "cancelled"
)

// Payload is the domain result of a successful attempt. The orchestrator
// never looks inside it.
type Payload struct {
	Text   string
	Images []ai.ImageArtifact
}

// Attempt records one execution of the upstream call.
type Attempt struct {
	Index     int
	StartedAt time.Time
	Duration  time.Duration
	Err       *ai.Error
}

// Outcome is the single terminal result of an invocation.
type Outcome struct {
	RequestID string
	Tool      string
	State     State
	Payload   Payload

	Kind    ai.Kind
	Reason  ai.Reason
	Err     error
	Hint    string
	Message string

	Attempts []Attempt
	Elapsed  time.Duration
}

func (o *Outcome) Failed() bool {
	return o.State != StateSucceeded
}

func (o *Outcome) AttemptCount() int {
	return len(o.Attempts)
}

// Summary is the user-facing line for a failed outcome.
func (o *Outcome) Summary() string {
	if !o.Failed() {
		return ""
	}
	elapsed := o.Elapsed.Round(time.Millisecond)
	switch o.State {
	case StateFailedTransientExhausted:
		return fmt.Sprintf("%s gave up after %s (%s elapsed): %s. %s",
			o.Tool, pluralAttempts(o.AttemptCount()), elapsed, o.Message, o.Hint)
	case StateCancelled:
		return fmt.Sprintf("%s cancelled after %s (%s elapsed). %s",
			o.Tool, pluralAttempts(o.AttemptCount()), elapsed, o.Hint)
	default:
		return fmt.Sprintf("%s failed (%s) after %s (%s elapsed): %s. %s",
			o.Tool, o.Reason, pluralAttempts(o.AttemptCount()), elapsed, o.Message, o.Hint)
	}
}

// Rejected builds the outcome for a request refused before any attempt ran.
func Rejected(requestID, tool string, err error) *Outcome {
	classified := ai.Classify(tool, err)
	return &Outcome{
		RequestID: requestID,
		Tool:      tool,
		State:     StateFailedPermanent,
		Kind:      ai.KindPermanent,
		Reason:    classified.Reason,
		Err:       classified,
		Message:   classified.Message,
		Hint:      HintFor(classified.Kind, classified.Reason),
	}
}

func pluralAttempts(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}
