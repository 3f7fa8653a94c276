// Package translate writes model translations (generated images) to disk:
// the per-iteration evaluation snapshots used for FID scoring during
// training, and whole-dataset translations for a trained model.
package translate

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/model"
	"github.com/gomlx/img2img/options"
)

// SelectVisuals filters the model visuals to only those matching the target
// of the translation direction: labels containing "fake_B" for AtoB, "fake_A"
// for BtoA.
func SelectVisuals(visuals model.Visuals, direction options.Direction) model.Visuals {
	targetLabel := direction.TargetVisual()
	selected := make(model.Visuals, 1)
	for label, img := range visuals {
		if strings.Contains(label, targetLabel) {
			selected[label] = img
		}
	}
	return selected
}

// SaveVisuals writes each visual as `<basename>_<label>.png` in imageDir,
// where basename is the source image file name without extension.
func SaveVisuals(imageDir string, visuals model.Visuals, imagePath string) error {
	base := filepath.Base(imagePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	labels := maps.Keys(visuals)
	sort.Strings(labels)
	for _, label := range labels {
		savePath := filepath.Join(imageDir, fmt.Sprintf("%s_%s.png", base, label))
		if err := imaging.Save(visuals[label], savePath); err != nil {
			return errors.Wrapf(err, "failed to save visual %q of %q to %q", label, imagePath, savePath)
		}
	}
	return nil
}

// translateDataset runs inference over the whole dataset and saves the
// selected visuals of every sample into imageDir.
//
// The model must already be in inference mode.
func translateDataset(m model.Model, ds data.Dataset, direction options.Direction, imageDir string) error {
	count := 0
	return data.Exhaust(ds, func(batch *data.Batch) error {
		m.SetInput(batch)
		if err := m.Test(); err != nil {
			return errors.WithMessagef(err, "inference failed on %v", batch.Paths())
		}
		visuals := SelectVisuals(m.CurrentVisuals(), direction)
		imagePaths := m.ImagePaths()
		if len(imagePaths) == 0 {
			return errors.Errorf("model returned no image paths for batch %v", batch.Paths())
		}
		if count%10 == 0 {
			klog.V(1).Infof("processing (%04d)-th image... %s", count, imagePaths[0])
		}
		count++
		return SaveVisuals(imageDir, visuals, imagePaths[0])
	})
}
