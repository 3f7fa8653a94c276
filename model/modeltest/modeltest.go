// Package modeltest provides a deterministic in-memory model.Model for
// testing the training driver without any networks behind it.
package modeltest

import (
	"image"
	"image/color"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/model"
)

// Fake is a model.Model that records every call made to it and produces
// small deterministic images as visuals. The zero value is usable.
type Fake struct {
	// Mode is "train" or "eval", toggled by Train and Eval.
	Mode string

	// SavedTags and LoadedTags record SaveNetworks / LoadNetworks calls in
	// order, including repetitions.
	SavedTags  []string
	LoadedTags []string

	// OptimizeCalls, TestCalls and LRUpdates count the respective calls.
	OptimizeCalls int
	TestCalls     int
	LRUpdates     int

	// Losses returned by CurrentLosses. Optional.
	Losses map[string]float64

	// SaveErr, when set, is returned by SaveNetworks.
	SaveErr error

	batch *data.Batch
}

// NewFake returns a Fake in training mode.
func NewFake() *Fake {
	return &Fake{Mode: "train", Losses: map[string]float64{"loss_G": 1.5, "loss_D": 0.5}}
}

// SetInput implements model.Model.
func (f *Fake) SetInput(batch *data.Batch) { f.batch = batch }

// OptimizeParameters implements model.Model.
func (f *Fake) OptimizeParameters() error {
	f.OptimizeCalls++
	return nil
}

// Eval implements model.Model.
func (f *Fake) Eval() { f.Mode = "eval" }

// Train implements model.Model.
func (f *Fake) Train() { f.Mode = "train" }

// Test implements model.Model.
func (f *Fake) Test() error {
	f.TestCalls++
	return nil
}

// solidImage returns an 8x8 image of a color derived from seed, so different
// samples produce different but reproducible pixels.
func solidImage(seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	c := color.RGBA{R: uint8(37 * seed), G: uint8(91 * seed), B: uint8(173 * seed), A: 255}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// CurrentVisuals implements model.Model: it returns real and fake visuals
// for both directions, like an unpaired translation model does.
func (f *Fake) CurrentVisuals() model.Visuals {
	seed := f.TestCalls + f.OptimizeCalls
	return model.Visuals{
		"real_A": solidImage(seed),
		"fake_B": solidImage(seed + 1),
		"real_B": solidImage(seed + 2),
		"fake_A": solidImage(seed + 3),
	}
}

// ImagePaths implements model.Model.
func (f *Fake) ImagePaths() []string {
	if f.batch == nil {
		return nil
	}
	return f.batch.Paths()
}

// CurrentLosses implements model.Model.
func (f *Fake) CurrentLosses() map[string]float64 { return f.Losses }

// SaveNetworks implements model.Model.
func (f *Fake) SaveNetworks(tag string) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.SavedTags = append(f.SavedTags, tag)
	return nil
}

// LoadNetworks implements model.Model.
func (f *Fake) LoadNetworks(tag string) error {
	f.LoadedTags = append(f.LoadedTags, tag)
	return nil
}

// UpdateLearningRate implements model.Model.
func (f *Fake) UpdateLearningRate() { f.LRUpdates++ }

var _ model.Model = (*Fake)(nil)
