package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Classification is the classifier's verdict for one repetition. Confidence
// is the maximum class probability; Probabilities carries the full vector
// when the model exposes one.
type Classification struct {
	RepNumber     int       `json:"rep_number"`
	Prediction    int       `json:"prediction"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities,omitempty"`
}

// SetClassification is the classification result for one completed set.
// Repetitions whose classification failed server-side are simply absent.
type SetClassification struct {
	SessionID       string            `json:"session_id,omitempty"`
	SetNumber       int               `json:"set_number"`
	Exercise        string            `json:"exercise"`
	Classifications []*Classification `json:"classifications"`
}

// ModelInfo describes one model available on the classification service.
type ModelInfo struct {
	ExerciseType string `json:"exercise_type"`
	ModelFile    string `json:"model_file"`
	Loaded       bool   `json:"loaded"`
}

// Classifier is the remote classification collaborator.
type Classifier interface {
	ClassifySet(ctx context.Context, exercise string, reps []*RepSummary) (*SetClassification, error)
}

// HTTPClassifierOptions configures an HTTPClassifier.
type HTTPClassifierOptions struct {
	// BaseURL of the classification service, without a trailing slash.
	BaseURL string

	// Timeout bounds one request. Defaults to 15s.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClassifier talks to the ML classification service. One ClassifySet
// call classifies a whole set in a single batch round trip.
type HTTPClassifier struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClassifier creates a classification service client.
func NewHTTPClassifier(opts HTTPClassifierOptions) (*HTTPClassifier, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("classifier base URL required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPClassifier{
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
		client:  opts.HTTPClient,
		logger:  opts.Logger,
	}, nil
}

// classifyItem is one element of the batch-classify request body.
type classifyItem struct {
	ExerciseType string             `json:"exercise_type"`
	Features     map[string]float64 `json:"features"`
}

// classifyResult is one element of the batch-classify response. Failed items
// carry Error instead of a prediction.
type classifyResult struct {
	Prediction    int       `json:"prediction"`
	ClassName     string    `json:"class_name"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	ExerciseType  string    `json:"exercise_type"`
	ModelUsed     string    `json:"model_used"`
	Error         string    `json:"error"`
}

// ClassifySet classifies every repetition of a set with one batch request.
// Per-repetition errors reported by the service leave the matching rep
// unclassified without failing the whole set.
func (c *HTTPClassifier) ClassifySet(ctx context.Context, exercise string, reps []*RepSummary) (*SetClassification, error) {
	if len(reps) == 0 {
		return nil, fmt.Errorf("no repetitions to classify")
	}
	items := make([]classifyItem, 0, len(reps))
	for _, rep := range reps {
		items = append(items, classifyItem{
			ExerciseType: exercise,
			Features:     rep.Features,
		})
	}
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/batch-classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify request failed: status %d", resp.StatusCode)
	}

	var decoded struct {
		Results []classifyResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode classify response: %w", err)
	}
	if len(decoded.Results) != len(reps) {
		return nil, fmt.Errorf("classify response has %d results for %d reps",
			len(decoded.Results), len(reps))
	}

	result := &SetClassification{
		SetNumber: reps[0].SetNumber,
		Exercise:  exercise,
	}
	for i, item := range decoded.Results {
		if item.Error != "" {
			c.logger.Warn("repetition classification failed",
				"rep_number", reps[i].RepNumber, "error", item.Error)
			continue
		}
		result.Classifications = append(result.Classifications, &Classification{
			RepNumber:     reps[i].RepNumber,
			Prediction:    item.Prediction,
			Label:         item.ClassName,
			Confidence:    item.Confidence,
			Probabilities: item.Probabilities,
		})
	}
	return result, nil
}

// ListModels returns the models available on the classification service.
func (c *HTTPClassifier) ListModels(ctx context.Context) ([]*ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build models request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models request failed: status %d", resp.StatusCode)
	}
	var decoded struct {
		Models []*ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	return decoded.Models, nil
}

// Health checks the service's health endpoint. The same endpoint serves as
// the default connectivity heartbeat target.
func (c *HTTPClassifier) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health request failed: status %d", resp.StatusCode)
	}
	return nil
}
