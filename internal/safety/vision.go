package safety

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// VisionClassifier calls the Google Cloud Vision SafeSearch endpoint.
type VisionClassifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewVisionClassifier creates a SafeSearch classifier for the Vision API at baseURL.
func NewVisionClassifier(baseURL, apiKey string, timeout time.Duration) *VisionClassifier {
	return &VisionClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		SafeSearch *struct {
			Adult    string `json:"adult"`
			Violence string `json:"violence"`
			Racy     string `json:"racy"`
		} `json:"safeSearchAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (c *VisionClassifier) Classify(ctx context.Context, data []byte) (Scores, error) {
	body, err := json.Marshal(annotateRequest{Requests: []annotateImageRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []visionFeature{{Type: "SAFE_SEARCH_DETECTION"}},
	}}})
	if err != nil {
		return Scores{}, fmt.Errorf("encoding annotate request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/images:annotate", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Scores{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Scores{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Scores{}, fmt.Errorf("%w: status %d", ErrClassifierUnavailable, resp.StatusCode)
	}

	var ar annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Scores{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(ar.Responses) != 1 {
		return Scores{}, fmt.Errorf("%w: expected 1 response, got %d", ErrInvalidResponse, len(ar.Responses))
	}
	r := ar.Responses[0]
	if r.Error != nil {
		return Scores{}, fmt.Errorf("%w: %d %s", ErrClassifierUnavailable, r.Error.Code, r.Error.Message)
	}
	if r.SafeSearch == nil {
		return Scores{}, fmt.Errorf("%w: missing safeSearchAnnotation", ErrInvalidResponse)
	}

	var s Scores
	if s.Adult, err = ParseLikelihood(r.SafeSearch.Adult); err != nil {
		return Scores{}, err
	}
	if s.Violence, err = ParseLikelihood(r.SafeSearch.Violence); err != nil {
		return Scores{}, err
	}
	if s.Suggestive, err = ParseLikelihood(r.SafeSearch.Racy); err != nil {
		return Scores{}, err
	}
	return s, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrClassifierTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrClassifierTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
}

// disabledClassifier stands in when no API key is configured. Every call
// fails, so images pass only through a fail-open gate.
type disabledClassifier struct{}

// NewDisabledClassifier returns a Classifier that fails every call.
func NewDisabledClassifier() Classifier { return disabledClassifier{} }

func (disabledClassifier) Classify(context.Context, []byte) (Scores, error) {
	return Scores{}, fmt.Errorf("%w: no API key configured", ErrClassifierUnavailable)
}

var _ Classifier = (*VisionClassifier)(nil)
