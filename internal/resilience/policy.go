package resilience

import (
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// Class buckets a model-call failure by how it should be retried.
type Class int

const (
	ClassNonRetryable Class = iota
	ClassRateLimited
	ClassOverloaded
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassOverloaded:
		return "overloaded"
	default:
		return "non_retryable"
	}
}

// statusOverloaded is the provider's "overloaded" status code.
const statusOverloaded = 529

// Classify maps an error to its retry class. Status codes from the SDK or a
// TransientError take precedence over message heuristics.
func Classify(err error) Class {
	if err == nil {
		return ClassNonRetryable
	}

	if code := statusOf(err); code != 0 {
		switch code {
		case http.StatusTooManyRequests:
			return ClassRateLimited
		case statusOverloaded, http.StatusServiceUnavailable:
			return ClassOverloaded
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "529"):
		return ClassOverloaded
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"), strings.Contains(msg, "429"):
		return ClassRateLimited
	}
	return ClassNonRetryable
}

func statusOf(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var te *TransientError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// Action is the policy's decision after a failed attempt.
type Action struct {
	Retry bool
	Wait  time.Duration
}

// Policy decides whether and how long to wait before retrying a model call.
// It has no clock and never sleeps; callers apply Wait themselves. Use one
// Policy per call. Consecutive carries the failure streak between calls
// so a struggling provider sees longer waits on later requests too.
type Policy struct {
	MaxAttempts    int
	RateLimitWait  time.Duration
	MaxOverload    time.Duration
	JitterFraction float64

	// Jitter returns a value in [0, 1). Defaults to rand.Float64.
	Jitter func() float64

	// Consecutive counts retryable failures since the last success.
	Consecutive int

	attempts int
}

// DefaultPolicy returns the standard model-call policy: three attempts, a
// 60s wait on rate limits and up to 30s of exponential backoff on overload.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		RateLimitWait:  60 * time.Second,
		MaxOverload:    30 * time.Second,
		JitterFraction: 0.1,
	}
}

// Next records a failed attempt of the given class and returns what to do.
// Every retryable failure extends the streak, the final attempt included.
func (p *Policy) Next(class Class) Action {
	p.attempts++
	if class == ClassNonRetryable {
		return Action{}
	}
	p.Consecutive++
	if p.attempts >= p.maxAttempts() {
		return Action{}
	}

	if class == ClassRateLimited {
		return Action{Retry: true, Wait: p.RateLimitWait}
	}
	base := math.Min(p.MaxOverload.Seconds(), math.Pow(2, float64(p.Consecutive)))
	jitter := p.jitter() * p.JitterFraction * base
	return Action{Retry: true, Wait: time.Duration((base + jitter) * float64(time.Second))}
}

// Reset clears the failure streak after a success.
func (p *Policy) Reset() {
	p.Consecutive = 0
}

// Attempts returns the number of failures recorded.
func (p *Policy) Attempts() int {
	return p.attempts
}

func (p *Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (p *Policy) jitter() float64 {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return rand.Float64()
}
