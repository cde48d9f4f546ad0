// Package safety screens images for adult, violent and suggestive content
// before they are persisted or served.
package safety

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrClassifierUnavailable = errors.New("content classifier unavailable")
	ErrClassifierTimeout     = errors.New("content classifier timeout")
	ErrInvalidResponse       = errors.New("content classifier returned invalid response")
)

// Likelihood is an ordered confidence bucket. Comparisons use the ordering.
type Likelihood int

const (
	Unknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

var likelihoodNames = map[string]Likelihood{
	"UNKNOWN":       Unknown,
	"VERY_UNLIKELY": VeryUnlikely,
	"UNLIKELY":      Unlikely,
	"POSSIBLE":      Possible,
	"LIKELY":        Likely,
	"VERY_LIKELY":   VeryLikely,
}

// ParseLikelihood accepts the Vision API spelling, e.g. "VERY_LIKELY".
func ParseLikelihood(s string) (Likelihood, error) {
	l, ok := likelihoodNames[s]
	if !ok {
		return Unknown, fmt.Errorf("%w: unknown likelihood %q", ErrInvalidResponse, s)
	}
	return l, nil
}

func (l Likelihood) String() string {
	for name, v := range likelihoodNames {
		if v == l {
			return name
		}
	}
	return fmt.Sprintf("Likelihood(%d)", int(l))
}

// Category names why an image was rejected. It is safe to show to users.
type Category string

const (
	CategoryAdult       Category = "adult"
	CategoryViolence    Category = "violence"
	CategorySuggestive  Category = "suggestive"
	CategoryUnavailable Category = "unavailable"
)

// Scores are the per-category likelihoods for one image.
type Scores struct {
	Adult      Likelihood `json:"adult"`
	Violence   Likelihood `json:"violence"`
	Suggestive Likelihood `json:"suggestive"`
}

// Violation applies the moderation policy: adult or violence at Likely or
// above, or suggestive at VeryLikely. Categories are checked in that order.
func (s Scores) Violation() (Category, bool) {
	switch {
	case s.Adult >= Likely:
		return CategoryAdult, true
	case s.Violence >= Likely:
		return CategoryViolence, true
	case s.Suggestive >= VeryLikely:
		return CategorySuggestive, true
	}
	return "", false
}

// Image is an uploaded image held in memory.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Classifier scores a single image.
type Classifier interface {
	Classify(ctx context.Context, data []byte) (Scores, error)
}
