// Package data provides the dataset abstraction used by the training driver
// and an implementation backed by directories of image files.
package data

import (
	"image"
	"io"
)

// Sample is one input for the model: the source-domain image, its file path
// and, for aligned datasets, the corresponding target-domain image.
type Sample struct {
	// Path of the source image file.
	Path string

	// Input image, in the source domain.
	Input image.Image

	// Target image, in the target domain. Nil for unaligned datasets.
	Target image.Image
}

// Batch of samples, as consumed by Model.SetInput.
type Batch struct {
	Samples []*Sample
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Samples) }

// Paths returns the source file paths of all samples in the batch.
func (b *Batch) Paths() []string {
	paths := make([]string, 0, len(b.Samples))
	for _, sample := range b.Samples {
		paths = append(paths, sample.Path)
	}
	return paths
}

// Dataset yields batches of samples. Implementations may prefetch in the
// background, but Yield and Reset are always called from a single goroutine.
type Dataset interface {
	// Name of the dataset, for display (e.g. "train", "val").
	Name() string

	// Yield returns the next batch. It returns io.EOF after the last batch of
	// an epoch; the next Yield after Reset starts a new epoch.
	Yield() (*Batch, error)

	// Reset restarts the dataset from the beginning (reshuffling, if the
	// dataset shuffles).
	Reset() error

	// Len returns the number of samples in one epoch.
	Len() int
}

// Exhaust is a helper for consumers that iterate a whole epoch: it calls fn
// for every batch until the dataset yields io.EOF, then resets the dataset.
func Exhaust(ds Dataset, fn func(batch *Batch) error) error {
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			return ds.Reset()
		}
		if err != nil {
			return err
		}
		if err = fn(batch); err != nil {
			return err
		}
	}
}
