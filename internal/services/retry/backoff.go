// File: internal/services/retry/backoff.go
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/iyunix/mcp-openai/internal/services/ai"
)

const (
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultMultiplier = 2.0
	DefaultJitter     = 0.1
)

// Backoff computes the wait before the next attempt. Jitter is the relative
// spread applied around the exponential delay; zero makes it deterministic.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// Rand returns values in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:       DefaultBaseDelay,
		Max:        DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
		Jitter:     DefaultJitter,
	}
}

// NextDelay returns the delay to wait after the failed attempt at
// attemptIndex. The second result is false when kind is not retryable.
func (b Backoff) NextDelay(attemptIndex int, kind ai.Kind) (time.Duration, bool) {
	if kind != ai.KindTransient {
		return 0, false
	}
	if attemptIndex < 0 {
		attemptIndex = 0
	}

	base := b.Base
	if base < 0 {
		base = 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = DefaultMultiplier
	}

	d := float64(base) * math.Pow(mult, float64(attemptIndex))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}

	if b.Jitter > 0 && d > 0 {
		r := b.Rand
		if r == nil {
			r = rand.Float64
		}
		d *= 1 + b.Jitter*(2*r()-1)
		if b.Max > 0 && d > float64(b.Max) {
			d = float64(b.Max)
		}
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d), true
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func DefaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
