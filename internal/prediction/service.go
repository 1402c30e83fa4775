// Package prediction orchestrates face location, normalization and
// classification for a saved upload.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Brownie44l1/fer-web/internal/preprocess"
	"gonum.org/v1/gonum/floats"
)

// Display labels for results that carry no emotion.
const (
	LabelModelNotLoaded = "Model not loaded"
	LabelError          = "Error"
)

// ErrShapeMismatch is returned when the classifier output does not have one
// probability per label.
var ErrShapeMismatch = errors.New("classifier output does not match label count")

type Status int

const (
	StatusOK Status = iota
	StatusModelNotLoaded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusModelNotLoaded:
		return "model_not_loaded"
	default:
		return "error"
	}
}

// Result is either a successful (Label, Confidence) pair or a tagged
// failure. Callers branch on Status, never on Label.
type Result struct {
	Label      string
	Confidence float64 // percent, 0..100
	Status     Status
	Err        error
	Scores     map[string]float64
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Classifier maps a normalized (1, H, W, 1) tensor to one probability per
// label.
type Classifier interface {
	Classify(ctx context.Context, input []float32) ([]float32, error)
}

// Normalizer is satisfied by *preprocess.Normalizer.
type Normalizer interface {
	NormalizeFile(path string) (*preprocess.Tensor, error)
}

type Service struct {
	classifier Classifier
	normalizer Normalizer
	labels     []string
}

// NewService wires the pipeline. A nil classifier puts the service in
// degraded mode where every call returns StatusModelNotLoaded.
func NewService(classifier Classifier, normalizer Normalizer, labels []string) *Service {
	return &Service{
		classifier: classifier,
		normalizer: normalizer,
		labels:     labels,
	}
}

func (s *Service) ModelLoaded() bool {
	return s.classifier != nil
}

// Labels returns the label order used to decode classifier output.
func (s *Service) Labels() []string {
	return s.labels
}

// Predict never returns an error; failures are folded into the Result and
// logged.
func (s *Service) Predict(ctx context.Context, imagePath string) Result {
	if s.classifier == nil {
		return Result{Label: LabelModelNotLoaded, Status: StatusModelNotLoaded}
	}

	res, err := s.predict(ctx, imagePath)
	if err != nil {
		slog.Error("prediction failed", "path", imagePath, "error", err)
		return Result{Label: LabelError, Status: StatusError, Err: err}
	}
	return res
}

func (s *Service) predict(ctx context.Context, imagePath string) (Result, error) {
	tensor, err := s.normalizer.NormalizeFile(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("preprocessing: %w", err)
	}

	probs, err := s.classifier.Classify(ctx, tensor.Data)
	if err != nil {
		return Result{}, fmt.Errorf("classification: %w", err)
	}

	return Decode(probs, s.labels)
}

// Decode picks the most probable label. Ties go to the lowest index.
func Decode(probs []float32, labels []string) (Result, error) {
	if len(probs) != len(labels) || len(labels) == 0 {
		return Result{}, fmt.Errorf("%w: %d outputs, %d labels", ErrShapeMismatch, len(probs), len(labels))
	}

	values := make([]float64, len(probs))
	scores := make(map[string]float64, len(probs))
	for i, p := range probs {
		v := float64(p)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("classifier returned non-finite probability at index %d", i)
		}
		values[i] = v
		scores[labels[i]] = v
	}

	idx := floats.MaxIdx(values)
	confidence := math.Min(math.Max(values[idx]*100, 0), 100)

	return Result{
		Label:      labels[idx],
		Confidence: confidence,
		Status:     StatusOK,
		Scores:     scores,
	}, nil
}
