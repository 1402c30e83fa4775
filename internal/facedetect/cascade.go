// Package facedetect wraps OpenCV's Haar cascade face detector.
package facedetect

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/Brownie44l1/fer-web/internal/preprocess"
	"gocv.io/x/gocv"
)

// CascadeLocator implements preprocess.FaceLocator. OpenCV classifiers are
// not safe for concurrent use, so calls are serialized.
type CascadeLocator struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	params     preprocess.DetectorParams
}

// NewCascadeLocator loads a cascade XML file such as
// haarcascade_frontalface_default.xml.
func NewCascadeLocator(cascadePath string, params preprocess.DetectorParams) (*CascadeLocator, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier from %s", cascadePath)
	}

	slog.Info("face detector initialized", "cascade", cascadePath,
		"scale_factor", params.ScaleFactor, "min_neighbors", params.MinNeighbors, "min_size", params.MinSize)

	return &CascadeLocator{classifier: classifier, params: params}, nil
}

func (l *CascadeLocator) Locate(gray *image.Gray) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	minSize := image.Pt(l.params.MinSize, l.params.MinSize)

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.classifier.DetectMultiScaleWithParams(mat,
		l.params.ScaleFactor, l.params.MinNeighbors, 0, minSize, image.Point{}), nil
}

func (l *CascadeLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.classifier.Close()
}
