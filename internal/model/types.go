package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Label is one emotion class. The order of Labels matches the output index
// convention of the trained network; reordering it silently mislabels results.
type Label string

const (
	Angry    Label = "Angry"
	Disgust  Label = "Disgust"
	Fear     Label = "Fear"
	Happy    Label = "Happy"
	Sad      Label = "Sad"
	Surprise Label = "Surprise"
	Neutral  Label = "Neutral"
)

// Labels is the classifier's output order.
var Labels = []Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

// ImageSize is the square input resolution of the reference network.
const ImageSize = 48

// IsLabel reports whether s names one of the known emotions.
func IsLabel(s string) bool {
	for _, l := range Labels {
		if string(l) == s {
			return true
		}
	}
	return false
}

// Metadata describes the exported network. It is optional on disk; the
// defaults describe the reference Keras model exported to ONNX.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

func DefaultMetadata() Metadata {
	classes := make([]string, len(Labels))
	for i, l := range Labels {
		classes[i] = string(l)
	}
	return Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, ImageSize, ImageSize, 1},
		OutputShape: []int64{1, int64(len(Labels))},
		Classes:     classes,
		ImageSize:   ImageSize,
	}
}

// LoadMetadata reads path over the defaults. An empty path or a missing file
// yields the defaults.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}

	metaFile, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return meta, meta.Validate()
}

// Validate checks that the shapes and the class list agree with each other
// and with the preprocessing pipeline.
func (m Metadata) Validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("metadata: input and output names are required")
	}
	if len(m.InputShape) != 4 || m.InputShape[0] != 1 || m.InputShape[3] != 1 {
		return fmt.Errorf("metadata: input shape %v, want (1, H, W, 1)", m.InputShape)
	}
	if m.InputShape[1] != int64(m.ImageSize) || m.InputShape[2] != int64(m.ImageSize) {
		return fmt.Errorf("metadata: input shape %v does not match image size %d", m.InputShape, m.ImageSize)
	}
	if len(m.OutputShape) != 2 || m.OutputShape[0] != 1 {
		return fmt.Errorf("metadata: output shape %v, want (1, classes)", m.OutputShape)
	}
	if int64(len(m.Classes)) != m.OutputShape[1] {
		return fmt.Errorf("metadata: %d classes for %d outputs", len(m.Classes), m.OutputShape[1])
	}
	// Output index i always means Labels[i]; a reordered list would mislabel
	// every prediction.
	if len(m.Classes) != len(Labels) {
		return fmt.Errorf("metadata: %d classes, want %d", len(m.Classes), len(Labels))
	}
	for i, class := range m.Classes {
		if class != string(Labels[i]) {
			return fmt.Errorf("metadata: class %d is %q, want %q", i, class, Labels[i])
		}
	}
	return nil
}

// InputSize is the number of float32 values one input tensor holds.
func (m Metadata) InputSize() int {
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}
