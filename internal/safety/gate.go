package safety

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetgate/fleetgate/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// GateOptions tunes a Gate.
type GateOptions struct {
	// Timeout bounds each classification call. Zero means no per-call bound.
	Timeout        time.Duration
	MaxConcurrency int
	// FailOpen accepts images whose classification errored. Development only.
	FailOpen bool
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Gate decides whether a batch of images may be persisted.
type Gate struct {
	classifier Classifier
	opts       GateOptions
	logger     *slog.Logger
}

// NewGate creates a Gate over classifier c.
func NewGate(c Classifier, opts GateOptions) *Gate {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{classifier: c, opts: opts, logger: logger}
}

type batchResult struct {
	scores Scores
	err    error
}

// ClassifyBatch screens every image concurrently and waits for all of them
// before deciding. The batch is rejected if any image violates policy or
// could not be classified; the reported reason belongs to the lowest-index
// failing image. An empty batch is accepted.
func (g *Gate) ClassifyBatch(ctx context.Context, images []Image) Verdict {
	if len(images) == 0 {
		return accept()
	}

	results := make([]batchResult, len(images))
	var eg errgroup.Group
	eg.SetLimit(g.opts.MaxConcurrency)
	for i, img := range images {
		eg.Go(func() error {
			cctx := ctx
			if g.opts.Timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
				defer cancel()
			}
			scores, err := g.classifier.Classify(cctx, img.Data)
			results[i] = batchResult{scores: scores, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	v := g.decide(images, results)
	g.opts.Metrics.SafetyVerdict(v.Accepted(), string(v.Reason()))
	return v
}

func (g *Gate) decide(images []Image, results []batchResult) Verdict {
	for i, r := range results {
		if r.err != nil {
			if g.opts.FailOpen {
				g.logger.Warn("safety check failed, accepting image because fail-open is enabled",
					"image", images[i].Name, "error", r.err)
				continue
			}
			g.logger.Error("safety check failed", "image", images[i].Name, "error", r.err)
			return reject(CategoryUnavailable, i)
		}
		if cat, bad := r.scores.Violation(); bad {
			g.logger.Info("image rejected by safety policy", "image", images[i].Name, "category", cat)
			return reject(cat, i)
		}
	}
	return accept()
}
