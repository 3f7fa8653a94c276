package options

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() *Options {
	o := Default()
	o.Dataroot = "/data/facades"
	o.Name = "facades_pix2pix"
	return o
}

func TestValidate(t *testing.T) {
	o := validOptions()
	require.NoError(t, o.Validate())

	o = validOptions()
	o.Dataroot = ""
	assert.Error(t, o.Validate())

	o = validOptions()
	o.Name = ""
	assert.Error(t, o.Validate())

	o = validOptions()
	o.BatchSize = 0
	assert.Error(t, o.Validate())

	o = validOptions()
	o.ValFreq = -5
	assert.Error(t, o.Validate())

	o = validOptions()
	o.NumValImages = -1
	assert.Error(t, o.Validate())

	o = validOptions()
	o.NumValImages = 0 // Zero means the full splits and is valid.
	assert.NoError(t, o.Validate())

	o = validOptions()
	o.EpochCount = 300 // Past n_epochs+n_epochs_decay: nothing to train.
	assert.Error(t, o.Validate())
}

func TestDirection(t *testing.T) {
	direction, err := ParseDirection("AtoB")
	require.NoError(t, err)
	assert.Equal(t, "fake_B", direction.TargetVisual())
	assert.Equal(t, "B", direction.TargetDomain())
	assert.Equal(t, "A", direction.SourceDomain())

	direction, err = ParseDirection("BtoA")
	require.NoError(t, err)
	assert.Equal(t, "fake_A", direction.TargetVisual())
	assert.Equal(t, "A", direction.TargetDomain())
	assert.Equal(t, "B", direction.SourceDomain())

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestFlagsAndPaths(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--dataroot", "/data/maps",
		"--name", "maps_cyclegan",
		"--direction", "BtoA",
		"--val_freq", "2500",
		"--num_val_images", "64",
		"--checkpoints_dir", "/ckpt",
	}))
	require.NoError(t, o.Validate())

	assert.Equal(t, BtoA, o.Direction)
	assert.Equal(t, 2500, o.ValFreq)
	assert.Equal(t, 64, o.NumValImages)
	assert.Equal(t, filepath.Join("/ckpt", "maps_cyclegan"), o.RunDir())
	assert.Equal(t, filepath.Join("/ckpt", "maps_cyclegan", "translations"), o.TranslationsDir())
	// BtoA translates towards domain A: references are trainA/valA.
	assert.Equal(t, filepath.Join("/data/maps", "trainA"), o.ReferenceDir("train"))
	assert.Equal(t, filepath.Join("/data/maps", "valA"), o.ReferenceDir("val"))
	assert.Equal(t, 200, o.TotalEpochs())
}
