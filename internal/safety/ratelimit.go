package safety

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClassifier bounds outbound classification QPS with a token bucket.
type RateLimitedClassifier struct {
	next    Classifier
	limiter *rate.Limiter
}

// NewRateLimitedClassifier allows perSecond calls with a burst of burst.
// A non-positive perSecond disables the limit.
func NewRateLimitedClassifier(next Classifier, perSecond float64, burst int) *RateLimitedClassifier {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClassifier{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (c *RateLimitedClassifier) Classify(ctx context.Context, data []byte) (Scores, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Scores{}, fmt.Errorf("%w: %v", ErrClassifierTimeout, err)
	}
	return c.next.Classify(ctx, data)
}

var _ Classifier = (*RateLimitedClassifier)(nil)
