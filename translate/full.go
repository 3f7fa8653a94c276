package translate

import (
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/model"
	"github.com/gomlx/img2img/options"
	"github.com/gomlx/img2img/support/fsutil"
)

// FullRun translates entire datasets with a trained model, outside the
// training loop. Outputs land under
// `translations/<name>/epoch-<tag>/{<split>,full}/<direction>/`: one
// directory per split, plus a "full" directory merging all splits.
type FullRun struct {
	model     model.Model
	direction options.Direction
	outRoot   string
}

// NewFullRun prepares the output tree for a standalone translation run.
// outDir is the root "translations" directory, name the experiment name and
// epochTag the checkpoint tag that was loaded (e.g. "latest", "35").
func NewFullRun(m model.Model, direction options.Direction, outDir, name, epochTag string) (*FullRun, error) {
	outRoot := filepath.Join(outDir, name, "epoch-"+epochTag)
	if err := fsutil.EnsureDir(outRoot); err != nil {
		return nil, err
	}
	return &FullRun{model: m, direction: direction, outRoot: outRoot}, nil
}

// OutRoot returns the root directory of this run's outputs.
func (r *FullRun) OutRoot() string { return r.outRoot }

// Translate runs inference over the dataset and writes each selected visual
// twice: under the split's own directory and under the shared "full"
// directory. The model must already be in inference mode.
func (r *FullRun) Translate(ds data.Dataset, split string) error {
	splitDir := filepath.Join(r.outRoot, split, string(r.direction))
	fullDir := filepath.Join(r.outRoot, "full", string(r.direction))
	for _, dir := range []string{splitDir, fullDir} {
		if err := fsutil.EnsureDir(dir); err != nil {
			return err
		}
	}
	klog.Infof("processing %s...", split)
	count := 0
	return data.Exhaust(ds, func(batch *data.Batch) error {
		r.model.SetInput(batch)
		if err := r.model.Test(); err != nil {
			return errors.WithMessagef(err, "inference failed on %v", batch.Paths())
		}
		visuals := SelectVisuals(r.model.CurrentVisuals(), r.direction)
		imagePaths := r.model.ImagePaths()
		if len(imagePaths) == 0 {
			return errors.Errorf("model returned no image paths for batch %v", batch.Paths())
		}
		if count%5 == 0 {
			klog.V(1).Infof("processing (%04d)-th image... %s", count, imagePaths[0])
		}
		count++
		if err := SaveVisuals(splitDir, visuals, imagePaths[0]); err != nil {
			return err
		}
		return SaveVisuals(fullDir, visuals, imagePaths[0])
	})
}
