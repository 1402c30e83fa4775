package prediction

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/fer-web/internal/model"
	"github.com/Brownie44l1/fer-web/internal/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	probs []float32
	err   error
	input []float32
}

func (f *fakeClassifier) Classify(ctx context.Context, input []float32) ([]float32, error) {
	f.input = input
	return f.probs, f.err
}

type panicNormalizer struct{ t *testing.T }

func (p panicNormalizer) NormalizeFile(path string) (*preprocess.Tensor, error) {
	p.t.Fatalf("normalizer must not run, got %s", path)
	return nil, nil
}

func labels() []string {
	meta := model.DefaultMetadata()
	return meta.Classes
}

func writeJPEG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{200, 180, 160, 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, img, nil))
	path := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestPredictModelNotLoaded(t *testing.T) {
	svc := NewService(nil, panicNormalizer{t}, labels())

	res := svc.Predict(context.Background(), "/nonexistent/path.jpg")
	assert.Equal(t, StatusModelNotLoaded, res.Status)
	assert.Equal(t, LabelModelNotLoaded, res.Label)
	assert.Equal(t, 0.0, res.Confidence)
	assert.False(t, res.OK())
	assert.False(t, svc.ModelLoaded())
}

func TestPredictHappyPath(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	clf := &fakeClassifier{probs: []float32{0.01, 0.01, 0.02, 0.9, 0.02, 0.02, 0.02}}
	svc := NewService(clf, preprocess.NewNormalizer(nil, preprocess.DefaultSize), labels())

	res := svc.Predict(context.Background(), path)
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, "Happy", res.Label)
	assert.InDelta(t, 90.0, res.Confidence, 1e-4)
	assert.Len(t, clf.input, 48*48)
	assert.Len(t, res.Scores, 7)
	assert.True(t, model.IsLabel(res.Label))
}

func TestPredictCorruptImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.jpg")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0644))

	svc := NewService(&fakeClassifier{}, preprocess.NewNormalizer(nil, preprocess.DefaultSize), labels())

	res := svc.Predict(context.Background(), path)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, LabelError, res.Label)
	assert.Equal(t, 0.0, res.Confidence)
	assert.ErrorIs(t, res.Err, preprocess.ErrDecode)
}

func TestPredictClassifierFailure(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	svc := NewService(&fakeClassifier{err: errors.New("backend down")},
		preprocess.NewNormalizer(nil, preprocess.DefaultSize), labels())

	res := svc.Predict(context.Background(), path)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, LabelError, res.Label)
}

func TestPredictShapeMismatch(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	svc := NewService(&fakeClassifier{probs: []float32{0.5, 0.5}},
		preprocess.NewNormalizer(nil, preprocess.DefaultSize), labels())

	res := svc.Predict(context.Background(), path)
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, ErrShapeMismatch)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		probs      []float32
		label      string
		confidence float64
		wantErr    bool
	}{
		{"argmax", []float32{0.1, 0, 0, 0, 0, 0.7, 0.2}, "Surprise", 70, false},
		{"tie goes to lowest index", []float32{0, 0.4, 0.4, 0.1, 0.1, 0, 0}, "Disgust", 40, false},
		{"clamped above 100", []float32{0, 0, 0, 0, 0, 0, 1.5}, "Neutral", 100, false},
		{"clamped below 0", []float32{-1, -2, -3, -4, -5, -6, -7}, "Angry", 0, false},
		{"nan rejected", []float32{float32NaN(), 0, 0, 0, 0, 0, 0}, "", 0, true},
		{"wrong length", []float32{1}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Decode(tt.probs, labels())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.label, res.Label)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-4)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 100.0)
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "model_not_loaded", StatusModelNotLoaded.String())
	assert.Equal(t, "error", StatusError.String())
}

func float32NaN() float32 {
	zero := float32(0)
	return zero / zero
}
