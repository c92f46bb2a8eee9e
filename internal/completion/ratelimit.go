package completion

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Completer with a client-side token bucket.
type RateLimited struct {
	next    Completer
	limiter *rate.Limiter
}

func NewRateLimited(next Completer, requestsPerSecond float64, burst int) Completer {
	if requestsPerSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (r *RateLimited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for completion rate limit: %w", err)
	}
	return r.next.Complete(ctx, prompt)
}
