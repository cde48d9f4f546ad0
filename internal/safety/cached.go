package safety

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fleetgate/fleetgate/internal/cache"
	"github.com/fleetgate/fleetgate/internal/metrics"
)

// CachedClassifier remembers scores by image digest so re-submitted photos
// are not sent to the classifier again. Errors are never cached, and a cache
// outage falls through to the wrapped classifier.
type CachedClassifier struct {
	next    Classifier
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedClassifier wraps next with a verdict cache keyed by image digest.
func NewCachedClassifier(next Classifier, c cache.Cache, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *CachedClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClassifier{next: next, cache: c, ttl: ttl, metrics: m, logger: logger}
}

func (c *CachedClassifier) Classify(ctx context.Context, data []byte) (Scores, error) {
	key := cache.VerdictKey(cache.Digest(data))

	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("safety cache read failed", "error", err)
	}
	if found {
		var s Scores
		if err := json.Unmarshal(raw, &s); err == nil {
			c.metrics.SafetyCacheHit()
			return s, nil
		}
	}

	s, err := c.next.Classify(ctx, data)
	if err != nil {
		return Scores{}, err
	}

	if raw, err := json.Marshal(s); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("safety cache write failed", "error", err)
		}
	}
	return s, nil
}

var _ Classifier = (*CachedClassifier)(nil)
