package retry

import (
	"fmt"
	"time"

	"github.com/iyunix/mcp-openai/internal/services/ai"
)

const (
	MinTimeoutSeconds = 30
	MaxTimeoutSeconds = 300
	MinMaxRetries     = 0
	MaxMaxRetries     = 5
)

// RequestPolicy governs one invocation: a per-attempt deadline and the number
// of retries after the first attempt.
type RequestPolicy struct {
	Timeout    time.Duration
	MaxRetries int
}

// NewRequestPolicy builds a policy from tool arguments and checks their bounds.
func NewRequestPolicy(timeoutSeconds, maxRetries int) (RequestPolicy, error) {
	p := RequestPolicy{
		Timeout:    time.Duration(timeoutSeconds) * time.Second,
		MaxRetries: maxRetries,
	}
	if timeoutSeconds < MinTimeoutSeconds || timeoutSeconds > MaxTimeoutSeconds {
		return p, ai.NewValidationError("policy",
			fmt.Sprintf("timeout %d outside [%d,%d] seconds", timeoutSeconds, MinTimeoutSeconds, MaxTimeoutSeconds))
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks the structural invariants. It does not enforce the
// tool-level timeout range so that callers may run with shorter deadlines.
func (p RequestPolicy) Validate() error {
	if p.Timeout <= 0 {
		return ai.NewValidationError("policy", "timeout must be positive")
	}
	if p.MaxRetries < MinMaxRetries || p.MaxRetries > MaxMaxRetries {
		return ai.NewValidationError("policy",
			fmt.Sprintf("max_retries %d outside [%d,%d]", p.MaxRetries, MinMaxRetries, MaxMaxRetries))
	}
	return nil
}

// MaxAttempts is the upper bound on attempts under this policy.
func (p RequestPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}
