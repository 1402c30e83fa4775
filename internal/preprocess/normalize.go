// Package preprocess turns an uploaded photo into the (1, 48, 48, 1) tensor
// the emotion network expects: grayscale, crop to the first located face,
// resize, scale to [0, 1].
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Face detector parameters of the reference configuration.
const (
	FaceScaleFactor  = 1.1
	FaceMinNeighbors = 5
	FaceMinSize      = 30
)

// DefaultSize is the side of the square network input.
const DefaultSize = 48

// MaxPixels bounds the decoded size of an input image. Larger images are
// rejected from their header before any pixel memory is allocated.
const MaxPixels = 1 << 26

// ErrDecode is returned when the input is not a decodable image.
var ErrDecode = errors.New("image could not be decoded")

// FaceLocator finds candidate face boxes in a grayscale image. Boxes are
// returned in the detector's native order; only the first one is used.
type FaceLocator interface {
	Locate(gray *image.Gray) ([]image.Rectangle, error)
}

// DetectorParams configures a FaceLocator.
type DetectorParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		ScaleFactor:  FaceScaleFactor,
		MinNeighbors: FaceMinNeighbors,
		MinSize:      FaceMinSize,
	}
}

// Tensor is a single-item NHWC batch with one channel.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// Normalizer is safe for concurrent use if its FaceLocator is.
type Normalizer struct {
	locator FaceLocator
	size    int
}

// NewNormalizer returns a Normalizer producing size x size tensors. A nil
// locator behaves as one that never finds a face.
func NewNormalizer(locator FaceLocator, size int) *Normalizer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Normalizer{locator: locator, size: size}
}

// NormalizeFile decodes the image at path and normalizes it.
func (n *Normalizer) NormalizeFile(path string) (*Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d image exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	slog.Debug("image decoded", "path", path, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	return n.Normalize(img)
}

// Normalize runs the pipeline on an already decoded image.
func (n *Normalizer) Normalize(img image.Image) (*Tensor, error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	gray := Grayscale(img)

	roi, err := n.regionOfInterest(gray)
	if err != nil {
		return nil, err
	}

	resized := resize.Resize(uint(n.size), uint(n.size), roi, resize.Bilinear)

	return n.toTensor(resized), nil
}

// regionOfInterest crops to the first located face, or returns the whole
// frame when nothing was found.
func (n *Normalizer) regionOfInterest(gray *image.Gray) (image.Image, error) {
	if n.locator == nil {
		return gray, nil
	}

	faces, err := n.locator.Locate(gray)
	if err != nil {
		return nil, fmt.Errorf("face location failed: %w", err)
	}
	if len(faces) == 0 {
		slog.Debug("no face found, using whole frame")
		return gray, nil
	}

	face := faces[0].Intersect(gray.Bounds())
	if face.Empty() {
		slog.Debug("face box outside image, using whole frame", "box", faces[0])
		return gray, nil
	}

	slog.Debug("face located", "box", face, "candidates", len(faces))
	return gray.SubImage(face), nil
}

func (n *Normalizer) toTensor(img image.Image) *Tensor {
	b := img.Bounds()
	data := make([]float32, n.size*n.size)

	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			data[idx] = float32(g.Y) / 255.0
			idx++
		}
	}

	return &Tensor{
		Shape: [4]int64{1, int64(n.size), int64(n.size), 1},
		Data:  data,
	}
}

// Grayscale converts img to 8-bit luma (ITU-R 601 weights) anchored at the
// origin, so locator boxes share its coordinate space.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
