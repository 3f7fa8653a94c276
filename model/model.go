// Package model defines the interface the training driver requires from an
// image-to-image translation model.
//
// The driver never looks inside the model: network architectures, the
// optimizer and automatic differentiation are capabilities of the Model
// implementation. The interface enumerates exactly the operations the
// training loop and the evaluation controller exercise.
package model

import (
	"fmt"
	"image"

	"github.com/gomlx/img2img/data"
)

// Visuals maps a semantic visual label (e.g. "real_A", "fake_B") to the
// corresponding generated or input image. It is produced transiently by
// CurrentVisuals for the last batch set with SetInput, and is not retained
// by the Model.
type Visuals map[string]image.Image

// Checkpoint tags used by the training loop. SaveNetworks fully overwrites
// any previous checkpoint saved under the same tag.
const (
	// TagLatest is rewritten on the save_latest_freq cadence and at
	// epoch-boundary saves.
	TagLatest = "latest"

	// TagBestValFID marks the parameters with the smallest validation FID
	// observed so far.
	TagBestValFID = "smallest_val_fid"
)

// IterTag returns the checkpoint tag for a specific iteration count,
// e.g. "iter_0005000".
func IterTag(iteration int) string {
	return fmt.Sprintf("iter_%07d", iteration)
}

// EpochTag returns the checkpoint tag for an epoch-boundary save.
func EpochTag(epoch int) string {
	return fmt.Sprintf("%d", epoch)
}

// Model is the contract between the training driver and a translation model.
//
// The driver holds exclusive access: no method is ever called concurrently
// with another.
type Model interface {
	// SetInput stores the batch the next OptimizeParameters or Test call
	// operates on.
	SetInput(batch *data.Batch)

	// OptimizeParameters runs forward, computes losses, backpropagates and
	// updates the network weights for the current input.
	OptimizeParameters() error

	// Eval switches the networks to inference mode (e.g. freezes batch-norm
	// statistics and disables dropout). It must not mutate trained parameters.
	Eval()

	// Train switches the networks back to training mode.
	Train()

	// Test runs the forward pass only, without gradients, for the current
	// input.
	Test() error

	// CurrentVisuals returns the visuals of the last executed batch.
	CurrentVisuals() Visuals

	// ImagePaths returns the source file paths of the samples in the last
	// batch set with SetInput.
	ImagePaths() []string

	// CurrentLosses returns the current named loss values, for display.
	CurrentLosses() map[string]float64

	// SaveNetworks persists the model parameters under the given tag,
	// fully overwriting a previous save with the same tag. The write is
	// atomic at the file level.
	SaveNetworks(tag string) error

	// LoadNetworks restores the model parameters saved under the given tag.
	LoadNetworks(tag string) error

	// UpdateLearningRate advances the learning-rate schedule by one epoch.
	UpdateLearningRate()
}
