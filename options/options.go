// Package options holds the configuration surface of the training and
// translation binaries.
//
// Options are registered as flags, in the same spirit as the model and
// dataset hyperparameters: the binaries call RegisterFlags before
// flag.Parse, then Validate once, and pass the resulting *Options around
// untouched.
package options

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/gomlx/img2img/support/fsutil"
	"github.com/pkg/errors"
)

// Direction of the translation: which of the two image domains is the source
// and which is the target.
type Direction string

const (
	AtoB Direction = "AtoB"
	BtoA Direction = "BtoA"
)

// TargetVisual returns the visual label of the generated image in the target
// domain for this direction.
func (d Direction) TargetVisual() string {
	if d == BtoA {
		return "fake_A"
	}
	return "fake_B"
}

// TargetDomain returns the suffix ("A" or "B") of the dataset subdirectories
// holding target-domain images for this direction.
func (d Direction) TargetDomain() string {
	if d == BtoA {
		return "A"
	}
	return "B"
}

// SourceDomain returns the suffix of the dataset subdirectories holding
// source-domain images for this direction.
func (d Direction) SourceDomain() string {
	if d == BtoA {
		return "B"
	}
	return "A"
}

// ParseDirection converts a string to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case AtoB, BtoA:
		return Direction(s), nil
	}
	return "", errors.Errorf("invalid direction %q, must be one of %q or %q", s, AtoB, BtoA)
}

// Options for a training or translation run. The zero value is not usable;
// create it with RegisterFlags (binaries) or Default (tests).
type Options struct {
	// Dataroot is the root of the dataset: it is expected to contain the
	// {train,val,test}{A,B} subdirectories.
	Dataroot string

	// Name of the experiment. It decides where checkpoints and logs are stored.
	Name string

	// Model architecture name (e.g. "pix2pix", "cycle_gan"). Passed through to
	// the model factory.
	Model string

	// DatasetMode selects how samples are loaded (e.g. "aligned", "unaligned").
	DatasetMode string

	// Direction of the translation, AtoB or BtoA.
	Direction Direction

	// BatchSize used for training. Evaluation subsets always use batch size 1.
	BatchSize int

	// Cadences, all in iterations (the iteration counter advances by BatchSize
	// each optimization step).
	PrintFreq      int
	DisplayFreq    int
	UpdateHTMLFreq int
	ValFreq        int
	SaveLatestFreq int

	// SaveEpochFreq is in epochs.
	SaveEpochFreq int

	// NumValImages caps how many images of each evaluation subset are
	// translated and scored per evaluation pass. Zero means the full
	// train/val splits.
	NumValImages int

	// EpochCount is the starting epoch (useful when resuming),
	// NEpochs the number of epochs at the initial learning rate and
	// NEpochsDecay the number of epochs over which it decays to zero.
	EpochCount   int
	NEpochs      int
	NEpochsDecay int

	// CheckpointsDir is the parent directory of all experiments.
	CheckpointsDir string

	// ContinueTrain makes the model load the "latest" checkpoint before training.
	ContinueTrain bool

	// FIDCommand is the external command used to compute the distributional
	// distance between two image directories. The command is invoked as
	// `<FIDCommand> <referenceDir> <generatedDir>` and must print the scalar
	// distance as the last number of its output.
	FIDCommand string

	// Epoch is the checkpoint tag to load for standalone translation
	// (typically "latest" or an epoch number).
	Epoch string

	directionFlag string
}

// Default returns Options with the same default values the flags use.
// Mostly useful for tests.
func Default() *Options {
	return &Options{
		Model:          "pix2pix",
		DatasetMode:    "aligned",
		Direction:      AtoB,
		BatchSize:      1,
		PrintFreq:      100,
		DisplayFreq:    400,
		UpdateHTMLFreq: 1000,
		ValFreq:        5000,
		SaveLatestFreq: 5000,
		SaveEpochFreq:  5,
		EpochCount:     1,
		NEpochs:        100,
		NEpochsDecay:   100,
		CheckpointsDir: "./checkpoints",
		FIDCommand:     "fidelity",
		Epoch:          "latest",
	}
}

// RegisterFlags registers all options on the given flag set (use
// flag.CommandLine for the default one) and returns the Options that will be
// populated when the flag set is parsed. Call Validate after parsing.
func RegisterFlags(fs *flag.FlagSet) *Options {
	o := Default()
	fs.StringVar(&o.Dataroot, "dataroot", o.Dataroot, "Root directory of the dataset, with subdirectories like trainA, trainB, valA, valB.")
	fs.StringVar(&o.Name, "name", o.Name, "Name of the experiment: decides where checkpoints, logs and translations are stored.")
	fs.StringVar(&o.Model, "model", o.Model, "Model architecture to train (e.g. pix2pix, cycle_gan).")
	fs.StringVar(&o.DatasetMode, "dataset_mode", o.DatasetMode, "How dataset samples are loaded (aligned, unaligned).")
	fs.StringVar(&o.directionFlag, "direction", string(o.Direction), "Translation direction, AtoB or BtoA.")
	fs.IntVar(&o.BatchSize, "batch_size", o.BatchSize, "Training batch size.")
	fs.IntVar(&o.PrintFreq, "print_freq", o.PrintFreq, "Print training losses every this many iterations.")
	fs.IntVar(&o.DisplayFreq, "display_freq", o.DisplayFreq, "Display current results every this many iterations.")
	fs.IntVar(&o.UpdateHTMLFreq, "update_html_freq", o.UpdateHTMLFreq, "Save displayed results every this many iterations.")
	fs.IntVar(&o.ValFreq, "val_freq", o.ValFreq, "Run evaluation (translate fixed subsets and compute FID) every this many iterations.")
	fs.IntVar(&o.SaveLatestFreq, "save_latest_freq", o.SaveLatestFreq, "Save the latest model every this many iterations.")
	fs.IntVar(&o.SaveEpochFreq, "save_epoch_freq", o.SaveEpochFreq, "Save a checkpoint tagged by epoch number every this many epochs.")
	fs.IntVar(&o.NumValImages, "num_val_images", o.NumValImages, "Number of images per evaluation subset; 0 evaluates the full train/val splits.")
	fs.IntVar(&o.EpochCount, "epoch_count", o.EpochCount, "The starting epoch count.")
	fs.IntVar(&o.NEpochs, "n_epochs", o.NEpochs, "Number of epochs with the initial learning rate.")
	fs.IntVar(&o.NEpochsDecay, "n_epochs_decay", o.NEpochsDecay, "Number of epochs over which the learning rate decays to zero.")
	fs.StringVar(&o.CheckpointsDir, "checkpoints_dir", o.CheckpointsDir, "Parent directory where experiments store their checkpoints.")
	fs.BoolVar(&o.ContinueTrain, "continue_train", o.ContinueTrain, "Continue training: load the latest model before training.")
	fs.StringVar(&o.FIDCommand, "fid_command", o.FIDCommand, "External command computing the FID between two image directories.")
	fs.StringVar(&o.Epoch, "epoch", o.Epoch, "Checkpoint tag to load for standalone translation.")
	return o
}

// Validate checks the options for consistency and resolves derived values
// (direction, "~" in paths). It must be called once after flag parsing.
func (o *Options) Validate() error {
	if o.directionFlag != "" {
		direction, err := ParseDirection(o.directionFlag)
		if err != nil {
			return err
		}
		o.Direction = direction
	}
	if o.Dataroot == "" {
		return errors.New("dataroot must be set")
	}
	if o.Name == "" {
		return errors.New("an experiment name must be set")
	}
	if o.BatchSize <= 0 {
		return errors.Errorf("batch_size must be positive, got %d", o.BatchSize)
	}
	for _, freq := range []struct {
		name  string
		value int
	}{
		{"print_freq", o.PrintFreq},
		{"display_freq", o.DisplayFreq},
		{"update_html_freq", o.UpdateHTMLFreq},
		{"val_freq", o.ValFreq},
		{"save_latest_freq", o.SaveLatestFreq},
		{"save_epoch_freq", o.SaveEpochFreq},
	} {
		if freq.value <= 0 {
			return errors.Errorf("%s must be positive, got %d", freq.name, freq.value)
		}
	}
	if o.NumValImages < 0 {
		return errors.Errorf("num_val_images must be >= 0, got %d", o.NumValImages)
	}
	if o.EpochCount < 1 {
		return errors.Errorf("epoch_count must be at least 1, got %d", o.EpochCount)
	}
	if o.NEpochs+o.NEpochsDecay < o.EpochCount {
		return errors.Errorf("n_epochs+n_epochs_decay (%d) is smaller than epoch_count (%d), nothing to train",
			o.NEpochs+o.NEpochsDecay, o.EpochCount)
	}
	var err error
	if o.Dataroot, err = fsutil.ReplaceTildeInDir(o.Dataroot); err != nil {
		return err
	}
	if o.CheckpointsDir, err = fsutil.ReplaceTildeInDir(o.CheckpointsDir); err != nil {
		return err
	}
	return nil
}

// RunDir returns the directory of this experiment,
// `<checkpoints_dir>/<name>`, where checkpoints, logs and translations live.
func (o *Options) RunDir() string {
	return filepath.Join(o.CheckpointsDir, o.Name)
}

// TranslationsDir returns the directory under which evaluation translation
// snapshots are written.
func (o *Options) TranslationsDir() string {
	return filepath.Join(o.RunDir(), "translations")
}

// ReferenceDir returns the directory with the ground-truth target-domain
// images for the given phase ("train" or "val"). For the AtoB convention
// these are `<dataroot>/trainB` and `<dataroot>/valB`.
func (o *Options) ReferenceDir(phase string) string {
	return filepath.Join(o.Dataroot, fmt.Sprintf("%s%s", phase, o.Direction.TargetDomain()))
}

// TotalEpochs returns the last epoch of the run (inclusive).
func (o *Options) TotalEpochs() int {
	return o.NEpochs + o.NEpochsDecay
}
