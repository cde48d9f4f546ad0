package mock

import (
	"bytes"
	"context"
	"sync"

	"github.com/fleetgate/fleetgate/internal/safety"
)

// Classifier satisfies safety.Classifier for testing.
type Classifier struct {
	ClassifyFunc func(ctx context.Context, data []byte) (safety.Scores, error)

	mu    sync.Mutex
	calls int
}

func (m *Classifier) Classify(ctx context.Context, data []byte) (safety.Scores, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, data)
	}
	return safety.Scores{}, nil
}

// Calls returns how many times Classify was invoked.
func (m *Classifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// NewSafeClassifier scores every image VeryUnlikely in all categories.
func NewSafeClassifier() *Classifier {
	return NewFixedClassifier(safety.Scores{
		Adult:      safety.VeryUnlikely,
		Violence:   safety.VeryUnlikely,
		Suggestive: safety.VeryUnlikely,
	})
}

// NewFixedClassifier returns the same scores for every image.
func NewFixedClassifier(s safety.Scores) *Classifier {
	return &Classifier{
		ClassifyFunc: func(_ context.Context, _ []byte) (safety.Scores, error) {
			return s, nil
		},
	}
}

// NewContentClassifier returns scores keyed by exact image bytes and safe
// scores for anything else.
func NewContentClassifier(byContent map[string]safety.Scores) *Classifier {
	return &Classifier{
		ClassifyFunc: func(_ context.Context, data []byte) (safety.Scores, error) {
			for content, s := range byContent {
				if bytes.Equal([]byte(content), data) {
					return s, nil
				}
			}
			return safety.Scores{Adult: safety.VeryUnlikely, Violence: safety.VeryUnlikely, Suggestive: safety.VeryUnlikely}, nil
		},
	}
}

// NewFailingClassifier returns a Classifier that always returns the given error.
func NewFailingClassifier(err error) *Classifier {
	return &Classifier{
		ClassifyFunc: func(_ context.Context, _ []byte) (safety.Scores, error) {
			return safety.Scores{}, err
		},
	}
}

// NewTimeoutClassifier returns a Classifier that blocks until context is cancelled.
func NewTimeoutClassifier() *Classifier {
	return &Classifier{
		ClassifyFunc: func(ctx context.Context, _ []byte) (safety.Scores, error) {
			<-ctx.Done()
			return safety.Scores{}, safety.ErrClassifierTimeout
		},
	}
}

// Compile-time check that Classifier implements safety.Classifier.
var _ safety.Classifier = (*Classifier)(nil)
