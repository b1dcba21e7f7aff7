// Package retry holds the backoff policy and error classification shared by
// the remote API clients.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Policy is an explicit retry strategy: exponential backoff base*2^attempt,
// capped at MaxDelay, with optional jitter against synchronized retries on a
// shared rate limit.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultPolicy mirrors the upstream system: three attempts, half-second
// base, five-second cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the delay before the retry following the given
// zero-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 0 {
		// full range [d/2, d)
		d = d/2 + time.Duration(rand.Int64N(int64(d/2)+1))
	}
	return d
}

// SleepFunc blocks for the given duration or until the context is done.
// Clients take it as a field so tests can substitute a fake clock.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Class categorizes a remote API failure for the retry decision.
type Class int

const (
	// ClassTransient covers network faults, rate limits and 5xx responses;
	// a retry may succeed.
	ClassTransient Class = iota
	// ClassAuth covers 401/403; retrying cannot help.
	ClassAuth
	// ClassRequest covers remaining 4xx responses; the request itself is
	// wrong and retrying cannot help.
	ClassRequest
)

// Classify maps an error from the OpenAI-compatible client onto a Class.
// Anything that is not a recognizable HTTP-status failure is assumed to be a
// network-level fault and therefore transient.
func Classify(err error) Class {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	return ClassTransient
}

func classifyStatus(status int) Class {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusTooManyRequests:
		return ClassTransient
	case status >= 500 || status == 0:
		return ClassTransient
	case status >= 400:
		return ClassRequest
	default:
		return ClassTransient
	}
}
