package ai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/googleapis/gax-go/v2/apierror"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// RetryPolicy bounds how hard a RetryingGenerator tries.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed caps total time spent including waits; zero means no cap.
	MaxElapsed time.Duration
	// AttemptTimeout bounds a single call; zero means only ctx bounds it.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is used for zero fields.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Second,
	MaxInterval:     10 * time.Second,
	MaxElapsed:      3 * time.Minute,
	AttemptTimeout:  90 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	return p
}

// RetryingGenerator retries transient failures of another Generator with
// exponential backoff and turns the final failure into a *GenerationError.
type RetryingGenerator struct {
	next     Generator
	provider string
	policy   RetryPolicy
}

func NewRetryingGenerator(next Generator, provider string, policy RetryPolicy) *RetryingGenerator {
	return &RetryingGenerator{next: next, provider: provider, policy: policy.withDefaults()}
}

// Generate implements Generator.
func (g *RetryingGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	var (
		attempts int
		lastErr  error
	)
	op := func() (string, error) {
		attempts++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if g.policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, g.policy.AttemptTimeout)
		}
		defer cancel()
		text, err := g.next.Generate(attemptCtx, prompt, temperature)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = g.policy.InitialInterval
	expo.MaxInterval = g.policy.MaxInterval
	opts := []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(g.policy.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("generation retrying",
				"provider", g.provider,
				"attempt", attempts,
				"max_attempts", g.policy.MaxAttempts,
				"sleep", next.String(),
				"error", err.Error(),
			)
		}),
	}
	if g.policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(g.policy.MaxElapsed))
	}

	text, err := backoff.Retry(ctx, op, opts...)
	if err == nil {
		return text, nil
	}
	cause := lastErr
	if cause == nil {
		cause = err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(cause, ctxErr) {
		cause = errors.Join(ctxErr, cause)
	}
	return "", &GenerationError{Provider: g.provider, Attempts: attempts, Err: cause}
}

// isRetryable treats rate limiting, timeouts, server errors, empty replies
// and transport failures as transient. Other 4xx replies from any provider
// are final.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyCompletion) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	// Gemini replies arrive as googleapi errors, sometimes inside an apierror.
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return retryableStatus(googleErr.Code)
	}
	var gaxErr *apierror.APIError
	if errors.As(err, &gaxErr) && gaxErr.HTTPCode() > 0 {
		return retryableStatus(gaxErr.HTTPCode())
	}
	return true
}

func retryableStatus(code int) bool {
	switch {
	case code == 0:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
