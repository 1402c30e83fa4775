package facedetect

import (
	"image"
	"os"
	"testing"

	"github.com/Brownie44l1/fer-web/internal/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeLocatorBlankImage(t *testing.T) {
	path := os.Getenv("CASCADE_PATH")
	if path == "" {
		t.Skip("CASCADE_PATH not set")
	}

	loc, err := NewCascadeLocator(path, preprocess.DefaultDetectorParams())
	require.NoError(t, err)
	defer loc.Close()

	faces, err := loc.Locate(image.NewGray(image.Rect(0, 0, 200, 200)))
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestNewCascadeLocatorMissingFile(t *testing.T) {
	if os.Getenv("CASCADE_PATH") == "" {
		t.Skip("OpenCV tests run only when CASCADE_PATH is set")
	}

	_, err := NewCascadeLocator("does-not-exist.xml", preprocess.DefaultDetectorParams())
	assert.Error(t, err)
}
