// Package backoff provides exponential backoff with jitter for retrying
// calls to the completion service and the lookup backend.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps any single delay.
	Max time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added on top of the base delay.
	Jitter float64
}

// Delay returns the backoff duration to wait after the given attempt.
// Attempt numbers start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

func (p Policy) delayWithRand(attempt int, r float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	base := float64(p.Initial) * math.Pow(factor, exp)
	total := base + base*p.Jitter*r
	if p.Max > 0 {
		total = math.Min(float64(p.Max), total)
	}
	return time.Duration(math.Round(total))
}

// LLMPolicy is used for completion requests: 250ms, 500ms, 1s... capped at 4s.
func LLMPolicy() Policy {
	return Policy{
		Initial: 250 * time.Millisecond,
		Max:     4 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// LookupPolicy is used for backend lookups, which sit on the caller's
// latency path and so back off briefly.
func LookupPolicy() Policy {
	return Policy{
		Initial: 100 * time.Millisecond,
		Max:     500 * time.Millisecond,
		Factor:  2,
		Jitter:  0.05,
	}
}
