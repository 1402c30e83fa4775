// Package evaluation measures the deployed pipeline against a labelled
// dataset split, the same way the training job evaluates on its test set but
// through the serving preprocessing.
package evaluation

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Brownie44l1/fer-web/internal/dataset"
	"github.com/Brownie44l1/fer-web/internal/prediction"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// Predictor is satisfied by *prediction.Service.
type Predictor interface {
	Predict(ctx context.Context, imagePath string) prediction.Result
}

type LabelStats struct {
	Support   int     `yaml:"support"`
	Predicted int     `yaml:"predicted"`
	Correct   int     `yaml:"correct"`
	Precision float64 `yaml:"precision"`
	Recall    float64 `yaml:"recall"`
}

type Report struct {
	Split          string                    `yaml:"split"`
	Total          int                       `yaml:"total"`
	Correct        int                       `yaml:"correct"`
	Failures       int                       `yaml:"failures"`
	Accuracy       float64                   `yaml:"accuracy"`
	MeanConfidence float64                   `yaml:"mean_confidence"`
	PerLabel       map[string]*LabelStats    `yaml:"per_label"`
	Confusion      map[string]map[string]int `yaml:"confusion"`
}

type Options struct {
	Split string
	// Progress receives a progress bar when non-nil.
	Progress io.Writer
}

// Evaluate predicts every sample. Failed predictions count against accuracy
// and are tallied separately.
func Evaluate(ctx context.Context, p Predictor, samples []dataset.Sample, opts Options) (*Report, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to evaluate")
	}

	r := &Report{
		Split:     opts.Split,
		Total:     len(samples),
		PerLabel:  make(map[string]*LabelStats),
		Confusion: make(map[string]map[string]int),
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(samples),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("evaluating "+opts.Split),
			progressbar.OptionShowCount(),
		)
	}

	confidences := make([]float64, 0, len(samples))
	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := p.Predict(ctx, sample.Path)
		r.stats(sample.Label).Support++

		if !res.OK() {
			r.Failures++
			slog.Debug("evaluation sample failed", "path", sample.Path, "status", res.Status.String())
		} else {
			confidences = append(confidences, res.Confidence)
			r.stats(res.Label).Predicted++
			if r.Confusion[sample.Label] == nil {
				r.Confusion[sample.Label] = make(map[string]int)
			}
			r.Confusion[sample.Label][res.Label]++
			if res.Label == sample.Label {
				r.Correct++
				r.stats(sample.Label).Correct++
			}
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	r.Accuracy = float64(r.Correct) / float64(r.Total)
	if len(confidences) > 0 {
		r.MeanConfidence = stat.Mean(confidences, nil)
	}
	for _, s := range r.PerLabel {
		if s.Predicted > 0 {
			s.Precision = float64(s.Correct) / float64(s.Predicted)
		}
		if s.Support > 0 {
			s.Recall = float64(s.Correct) / float64(s.Support)
		}
	}

	return r, nil
}

func (r *Report) stats(label string) *LabelStats {
	s, ok := r.PerLabel[label]
	if !ok {
		s = &LabelStats{}
		r.PerLabel[label] = s
	}
	return s
}

func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
