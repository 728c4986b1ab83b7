package retry

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/autodoc/internal/config"
)

// Policy encapsulates retry/backoff settings for transient generation failures.
// It is immutable after construction.
type Policy struct {
	Mode        config.RetryBackoffMode // fixed|linear|exponential
	Initial     time.Duration           // base delay
	Max         time.Duration           // cap for growth
	MaxAttempts int                     // total execution attempts, first try included
}

// DefaultPolicy returns the pipeline default (exponential, 1s base, 30s cap,
// 3 attempts).
func DefaultPolicy() Policy {
	return Policy{
		Mode:        config.RetryBackoffExponential,
		Initial:     time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 3,
	}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall
// back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxAttempts int) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	default:
		// unknown -> keep default
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds a policy from the generation config section.
func FromConfig(gen config.GenerationConfig) Policy {
	return NewPolicy(gen.RetryBackoff, gen.RetryInitial(), gen.RetryMax(), gen.MaxAttempts)
}

// Delay returns the backoff delay before the given retry (1-based: the delay
// before the second attempt is Delay(1)).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Exhausted reports whether a job that has already executed attempts times
// may not run again.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Validate ensures invariants; returns error if the policy is impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be >0")
	}
	return nil
}
