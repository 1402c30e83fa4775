package cli

import (
	"log/slog"

	"github.com/Brownie44l1/fer-web/internal/config"
	"github.com/Brownie44l1/fer-web/internal/facedetect"
	"github.com/Brownie44l1/fer-web/internal/model"
	"github.com/Brownie44l1/fer-web/internal/prediction"
	"github.com/Brownie44l1/fer-web/internal/preprocess"
	"github.com/Brownie44l1/fer-web/internal/worker"
)

// pipeline is the prediction service plus the resources behind it.
type pipeline struct {
	service *prediction.Service
	pool    *worker.Pool
	locator *facedetect.CascadeLocator
}

// newPipeline never fails. A model that cannot be loaded leaves the service
// in degraded mode, and a missing cascade means every image is classified
// whole-frame.
func newPipeline(cfg *config.Config) *pipeline {
	p := &pipeline{}

	meta, err := model.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		slog.Error("invalid model metadata, using defaults", "path", cfg.MetadataPath, "err", err)
		meta = model.DefaultMetadata()
	}

	var classifier prediction.Classifier
	sessions, err := model.LoadSessions(cfg.ORTLibraryPath, cfg.ModelPath, meta, cfg.InferenceWorkers)
	if err != nil {
		slog.Error("model not loaded, predictions disabled", "path", cfg.ModelPath, "err", err)
	} else {
		runners := make([]worker.Runner, len(sessions))
		for i, s := range sessions {
			runners[i] = s
		}
		pool, err := worker.NewPool(runners)
		if err != nil {
			slog.Error("failed to start inference workers", "err", err)
			for _, s := range sessions {
				s.Close()
			}
			model.DestroyEnvironment()
		} else {
			p.pool = pool
			classifier = pool
		}
	}

	var locator preprocess.FaceLocator
	cascade, err := facedetect.NewCascadeLocator(cfg.CascadePath, preprocess.DefaultDetectorParams())
	if err != nil {
		slog.Warn("face detector unavailable, using whole frame", "path", cfg.CascadePath, "err", err)
	} else {
		p.locator = cascade
		locator = cascade
	}

	normalizer := preprocess.NewNormalizer(locator, meta.ImageSize)
	p.service = prediction.NewService(classifier, normalizer, meta.Classes)
	return p
}

func (p *pipeline) Close() {
	if p.pool != nil {
		p.pool.Close()
		model.DestroyEnvironment()
	}
	if p.locator != nil {
		if err := p.locator.Close(); err != nil {
			slog.Error("failed to close face detector", "err", err)
		}
	}
}
