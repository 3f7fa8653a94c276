package train

import (
	"context"
	"math"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/fid"
	"github.com/gomlx/img2img/metriclog"
	"github.com/gomlx/img2img/model"
	"github.com/gomlx/img2img/options"
	"github.com/gomlx/img2img/translate"
)

// Best tracks the smallest validation FID observed so far. It is an explicit
// value passed into and returned from Evaluator.Run, so the evaluation logic
// can be exercised without a training loop around it.
type Best struct {
	Record metriclog.Record
	Found  bool
}

// FID returns the best value so far, or +Inf if no evaluation happened yet,
// so that the first measured value always wins the strict-improvement test.
func (b Best) FID() float64 {
	if !b.Found {
		return math.Inf(1)
	}
	return b.Record.FID
}

// Outcome of one evaluation pass.
type Outcome struct {
	// Iteration at which the evaluation ran.
	Iteration int

	// TrainFID and ValFID are the distances of the generated snapshots
	// against the reference sets.
	TrainFID, ValFID float64

	// Promoted is true when ValFID strictly improved on the best so far and
	// the model was saved as the new best checkpoint.
	Promoted bool
}

// Evaluator runs the periodic held-out evaluation: it regenerates
// translations for fixed train/val subsets, scores them against the
// reference image sets, appends the scores to the metric logs and promotes
// the model to the "smallest_val_fid" checkpoint when the validation score
// strictly improves.
type Evaluator struct {
	scorer    fid.Scorer
	snapshots *translate.SnapshotWriter

	// Canonical (non-augmented, batch 1, stable order) subsets.
	trainSubset, valSubset data.Dataset

	// Fixed reference directories; they never change across iterations.
	refTrainDir, refValDir string

	trainLog, valLog *metriclog.Log
	bestMarker       *metriclog.BestMarker
}

// NewEvaluator assembles an Evaluator from the run's options. trainSubset and
// valSubset must be canonical datasets: no augmentation, no shuffling, batch
// size 1.
func NewEvaluator(opts *options.Options, scorer fid.Scorer, trainSubset, valSubset data.Dataset) *Evaluator {
	runDir := opts.RunDir()
	return &Evaluator{
		scorer:      scorer,
		snapshots:   translate.NewSnapshotWriter(opts.TranslationsDir(), opts.Direction),
		trainSubset: trainSubset,
		valSubset:   valSubset,
		refTrainDir: opts.ReferenceDir("train"),
		refValDir:   opts.ReferenceDir("val"),
		trainLog:    metriclog.NewLog(filepath.Join(runDir, metriclog.TrainLogFile)),
		valLog:      metriclog.NewLog(filepath.Join(runDir, metriclog.ValLogFile)),
		bestMarker:  metriclog.NewBestMarker(filepath.Join(runDir, metriclog.BestValFIDFile)),
	}
}

// LoadBest reads the best-marker persisted by a previous run, so a resumed
// training does not demote an already better checkpoint.
func (e *Evaluator) LoadBest() (Best, error) {
	record, found, err := e.bestMarker.Read()
	if err != nil {
		return Best{}, err
	}
	return Best{Record: record, Found: found}, nil
}

// Run executes one evaluation pass at the given iteration and returns the
// updated best-tracking state.
//
// The model is switched to inference mode for the duration of the pass and
// back to training mode before returning, also on error. Any filesystem or
// scoring failure is returned as-is: evaluation has no retry or partial-skip
// path, the caller aborts the run.
func (e *Evaluator) Run(ctx context.Context, m model.Model, iteration int, best Best) (Outcome, Best, error) {
	outcome := Outcome{Iteration: iteration}
	m.Eval()
	defer m.Train()

	trainDir, _, err := e.snapshots.Write(m, e.trainSubset, "train", iteration)
	if err != nil {
		return outcome, best, err
	}
	valDir, _, err := e.snapshots.Write(m, e.valSubset, "val", iteration)
	if err != nil {
		return outcome, best, err
	}

	if outcome.TrainFID, err = e.scorer.Distance(ctx, e.refTrainDir, trainDir); err != nil {
		return outcome, best, errors.WithMessagef(err, "scoring train snapshot at iteration %d", iteration)
	}
	if outcome.ValFID, err = e.scorer.Distance(ctx, e.refValDir, valDir); err != nil {
		return outcome, best, errors.WithMessagef(err, "scoring val snapshot at iteration %d", iteration)
	}

	if err = e.trainLog.Append(metriclog.Record{Iteration: iteration, FID: outcome.TrainFID}); err != nil {
		return outcome, best, err
	}
	valRecord := metriclog.Record{Iteration: iteration, FID: outcome.ValFID}
	if err = e.valLog.Append(valRecord); err != nil {
		return outcome, best, err
	}
	klog.Infof("evaluation@%d: train FID %.4f, val FID %.4f (best so far %.4f)",
		iteration, outcome.TrainFID, outcome.ValFID, best.FID())

	// Strict improvement only: a tie does not overwrite the best checkpoint.
	if outcome.ValFID < best.FID() {
		klog.Infof("saving the %s model", model.TagBestValFID)
		if err = m.SaveNetworks(model.TagBestValFID); err != nil {
			return outcome, best, errors.WithMessagef(err, "saving best checkpoint at iteration %d", iteration)
		}
		if err = e.bestMarker.Replace(valRecord); err != nil {
			return outcome, best, err
		}
		best = Best{Record: valRecord, Found: true}
		outcome.Promoted = true
	}
	return outcome, best, nil
}

// Attach registers the evaluator on the loop's val_freq cadence. The best
// state is loaded from a previous run's marker and threaded through the
// evaluation calls.
//
// The evaluation is recorded against the crossed val_freq multiple, not the
// raw counter: when the batch size does not divide val_freq the counter
// overshoots the multiple, and tagging snapshots and log records with the
// multiple keeps them aligned across runs with different batch sizes.
func (e *Evaluator) Attach(ctx context.Context, loop *Loop) error {
	best, err := e.LoadBest()
	if err != nil {
		return err
	}
	loop.EveryNIterations(loop.Opts.ValFreq, "evaluation", 50,
		func(loop *Loop, _ *data.Batch) error {
			iteration := LastMultiple(loop.Iteration, loop.Opts.ValFreq)
			_, newBest, err := e.Run(ctx, loop.Model, iteration, best)
			if err != nil {
				return err
			}
			best = newBest
			return nil
		})
	return nil
}
