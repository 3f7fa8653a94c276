package translate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/model"
	"github.com/gomlx/img2img/options"
	"github.com/gomlx/img2img/support/fsutil"
)

// CompleteSentinel is written inside a snapshot directory only after every
// image of the split was saved. Its presence, not the directory's, is the
// signal the snapshot is already materialized: a crash mid-snapshot leaves
// the directory without the sentinel, and the snapshot is regenerated.
const CompleteSentinel = ".complete"

// SnapshotWriter materializes evaluation snapshots: one directory of
// generated PNGs per split per iteration, under
// `<translations>/<split>/iter_<7-digit-iteration>/`.
type SnapshotWriter struct {
	translationsDir string
	direction       options.Direction
}

// NewSnapshotWriter creates a SnapshotWriter rooted at the experiment's
// translations directory.
func NewSnapshotWriter(translationsDir string, direction options.Direction) *SnapshotWriter {
	return &SnapshotWriter{translationsDir: translationsDir, direction: direction}
}

// Dir returns the snapshot directory of a split at an iteration. Snapshot
// directories are unique per iteration and never overwritten.
func (w *SnapshotWriter) Dir(split string, iteration int) string {
	return filepath.Join(w.translationsDir, split, fmt.Sprintf("iter_%07d", iteration))
}

// IsComplete reports whether the snapshot of the split at the iteration was
// fully written.
func (w *SnapshotWriter) IsComplete(split string, iteration int) (bool, error) {
	return fsutil.FileExists(filepath.Join(w.Dir(split, iteration), CompleteSentinel))
}

// Write generates the snapshot of one split: it runs inference for every
// sample of the dataset and saves the direction's generated visual for each.
// If the snapshot is already complete it does nothing and returns
// created=false. The model must already be in inference mode.
func (w *SnapshotWriter) Write(m model.Model, ds data.Dataset, split string, iteration int) (dir string, created bool, err error) {
	dir = w.Dir(split, iteration)
	complete, err := w.IsComplete(split, iteration)
	if err != nil {
		return "", false, err
	}
	if complete {
		klog.Infof("snapshot %s already materialized, skipping", dir)
		return dir, false, nil
	}
	if err = fsutil.EnsureDir(dir); err != nil {
		return "", false, err
	}
	klog.Infof("translating %s...", split)
	if err = translateDataset(m, ds, w.direction, dir); err != nil {
		return "", false, errors.WithMessagef(err, "snapshot of split %q at iteration %d", split, iteration)
	}
	sentinelPath := filepath.Join(dir, CompleteSentinel)
	if err = os.WriteFile(sentinelPath, nil, 0664); err != nil {
		return "", false, errors.Wrapf(err, "failed to write snapshot sentinel %q", sentinelPath)
	}
	return dir, true, nil
}
