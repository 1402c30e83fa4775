// Package dataset reads the image tree the emotion network is trained and
// evaluated on:
//
//	root/{train,validation,test}/<emotion>/*.jpg
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Splits in the order the training job uses them.
var Splits = []string{"train", "validation", "test"}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Sample is one labelled image.
type Sample struct {
	Path  string
	Label string
}

// Loader maps emotion directories to labels case-insensitively.
type Loader struct {
	root   string
	labels map[string]string
}

func NewLoader(root string, labels []string) *Loader {
	byName := make(map[string]string, len(labels))
	for _, l := range labels {
		byName[strings.ToLower(l)] = l
	}
	return &Loader{root: root, labels: byName}
}

// Load returns every sample of split, sorted by path. Directories that do
// not name a known emotion are skipped with a warning.
func (l *Loader) Load(split string) ([]Sample, error) {
	dir := filepath.Join(l.root, split)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read split %q: %w", split, err)
	}

	var samples []Sample
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label, ok := l.labels[strings.ToLower(entry.Name())]
		if !ok {
			slog.Warn("skipping unknown emotion directory", "split", split, "dir", entry.Name())
			continue
		}

		classDir := filepath.Join(dir, entry.Name())
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", classDir, err)
		}
		for _, f := range files {
			if f.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			samples = append(samples, Sample{Path: filepath.Join(classDir, f.Name()), Label: label})
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Path < samples[j].Path })
	slog.Debug("split loaded", "split", split, "samples", len(samples))
	return samples, nil
}

// SplitStats counts samples per label in one split.
type SplitStats struct {
	Split   string         `yaml:"split"`
	Total   int            `yaml:"total"`
	ByLabel map[string]int `yaml:"by_label"`
}

// Stats summarizes every split present under root. Missing splits are
// omitted; a root with no split at all is an error.
func (l *Loader) Stats() ([]SplitStats, error) {
	var stats []SplitStats
	for _, split := range Splits {
		samples, err := l.Load(split)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s := SplitStats{Split: split, Total: len(samples), ByLabel: make(map[string]int)}
		for _, sample := range samples {
			s.ByLabel[sample.Label]++
		}
		stats = append(stats, s)
	}

	if len(stats) == 0 {
		return nil, fmt.Errorf("no train, validation or test directory under %s", l.root)
	}
	return stats, nil
}
