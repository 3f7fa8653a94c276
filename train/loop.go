// Package train drives image-to-image translation training: the epoch and
// iteration loop, the cadence hooks attached to it, and the periodic
// evaluation that selects the best checkpoint.
package train

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/model"
	"github.com/gomlx/img2img/options"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but
// negative values are ok.
type Priority int

// OnIterationFn is the type of per-iteration hooks. It is called after every
// optimization step, once the iteration counter has been advanced.
type OnIterationFn func(loop *Loop, batch *data.Batch) error

// OnEpochEndFn is the type of epoch-boundary hooks.
type OnEpochEndFn func(loop *Loop) error

// Loop runs the training of a translation model over epochs, invoking
// Model.OptimizeParameters for every batch and the registered hooks after
// every step.
//
// In itself it doesn't do much beyond the epoch-boundary checkpointing and
// the learning-rate schedule: evaluation, loss printing and display are
// attached as hooks -- see Evaluator and the visualizer package.
//
// The public attributes are meant for reading only.
type Loop struct {
	// Model being trained.
	Model model.Model

	// Opts of the run.
	Opts *options.Options

	// Iteration is the total number of training iterations so far. It
	// advances by the batch size at every step and never decreases. It is not
	// persisted across restarts: a resumed run restarts it at 0.
	Iteration int

	// PrevIteration is the counter value before the current step, used by
	// cadence tests (see Crossed).
	PrevIteration int

	// EpochIteration is the iteration count within the current epoch.
	EpochIteration int

	// Epoch currently running, from Opts.EpochCount to Opts.TotalEpochs()
	// inclusive.
	Epoch int

	// StepDurations collected during training, one entry per optimization step.
	StepDurations []time.Duration

	onIteration *priorityHooks[*hookWithName[OnIterationFn]]
	onEpochEnd  *priorityHooks[*hookWithName[OnEpochEndFn]]
}

// NewLoop creates a training loop for the model.
func NewLoop(m model.Model, opts *options.Options) *Loop {
	return &Loop{
		Model:       m,
		Opts:        opts,
		onIteration: newPriorityHooks[*hookWithName[OnIterationFn]](),
		onEpochEnd:  newPriorityHooks[*hookWithName[OnEpochEndFn]](),
	}
}

// OnIteration adds a hook with the given priority and name (for error
// reporting) to each training iteration.
func (loop *Loop) OnIteration(name string, priority Priority, fn OnIterationFn) {
	loop.onIteration.Add(priority, &hookWithName[OnIterationFn]{name: name, fn: fn})
}

// OnEpochEnd adds a hook with the given priority and name to the end of each
// epoch, after the epoch-boundary checkpoint and the learning-rate update.
func (loop *Loop) OnEpochEnd(name string, priority Priority, fn OnEpochEndFn) {
	loop.onEpochEnd.Add(priority, &hookWithName[OnEpochEndFn]{name: name, fn: fn})
}

// EveryNIterations registers an iteration hook that fires whenever the
// iteration counter crosses a multiple of freq. The counter advances by the
// batch size, so the hook may fire at a counter value slightly past the
// multiple; it never silently skips one.
func (loop *Loop) EveryNIterations(freq int, name string, priority Priority, fn OnIterationFn) {
	fullName := fmt.Sprintf("EveryNIterations(%d): %s", freq, name)
	loop.OnIteration(fullName, priority, func(loop *Loop, batch *data.Batch) error {
		if !Crossed(loop.PrevIteration, loop.Iteration, freq) {
			return nil
		}
		return fn(loop, batch)
	})
}

// Run trains over all configured epochs. The dataset is iterated once per
// epoch and Reset at each epoch boundary.
func (loop *Loop) Run(ds data.Dataset) error {
	klog.Infof("The number of training images = %d", ds.Len())
	for loop.Epoch = loop.Opts.EpochCount; loop.Epoch <= loop.Opts.TotalEpochs(); loop.Epoch++ {
		epochStart := time.Now()
		loop.EpochIteration = 0
		if err := loop.runEpoch(ds); err != nil {
			return errors.WithMessagef(err, "epoch %d (iteration %d)", loop.Epoch, loop.Iteration)
		}
		if err := loop.endOfEpoch(); err != nil {
			return errors.WithMessagef(err, "end of epoch %d", loop.Epoch)
		}
		klog.Infof("End of epoch %d / %d \t Time Taken: %d sec",
			loop.Epoch, loop.Opts.TotalEpochs(), int(time.Since(epochStart).Seconds()))
	}
	return nil
}

func (loop *Loop) runEpoch(ds data.Dataset) error {
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			return ds.Reset()
		}
		if err != nil {
			return errors.WithMessage(err, "failed reading from dataset")
		}
		if err = loop.step(batch); err != nil {
			return err
		}
	}
}

// step runs one optimization step and the iteration hooks.
func (loop *Loop) step(batch *data.Batch) error {
	start := time.Now()
	loop.Model.SetInput(batch)
	if err := loop.Model.OptimizeParameters(); err != nil {
		return errors.WithMessage(err, "failed optimization step")
	}
	loop.StepDurations = append(loop.StepDurations, time.Since(start))

	loop.PrevIteration = loop.Iteration
	loop.Iteration += batch.Size()
	loop.EpochIteration += batch.Size()

	var err error
	loop.onIteration.Enumerate(func(hook *hookWithName[OnIterationFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, batch)
		if err != nil {
			err = errors.WithMessagef(err, "OnIteration(hook %q)", hook.name)
		}
	})
	return err
}

func (loop *Loop) endOfEpoch() error {
	if loop.Epoch%loop.Opts.SaveEpochFreq == 0 {
		klog.Infof("saving the model at the end of epoch %d, iters %d", loop.Epoch, loop.Iteration)
		if err := loop.Model.SaveNetworks(model.TagLatest); err != nil {
			return err
		}
		if err := loop.Model.SaveNetworks(model.EpochTag(loop.Epoch)); err != nil {
			return err
		}
	}
	loop.Model.UpdateLearningRate()

	var err error
	loop.onEpochEnd.Enumerate(func(hook *hookWithName[OnEpochEndFn]) {
		if err != nil {
			return
		}
		err = hook.fn(loop)
		if err != nil {
			err = errors.WithMessagef(err, "OnEpochEnd(hook %q)", hook.name)
		}
	})
	return err
}

// AttachLatestCheckpointing registers the save_latest_freq cadence: saving
// the model under the "latest" tag and under an iteration tag.
func (loop *Loop) AttachLatestCheckpointing() {
	loop.EveryNIterations(loop.Opts.SaveLatestFreq, "save latest model", 100,
		func(loop *Loop, _ *data.Batch) error {
			klog.Infof("saving the latest model (epoch %d, total_iters %d)", loop.Epoch, loop.Iteration)
			klog.Infof("%s", loop.Opts.Name)
			if err := loop.Model.SaveNetworks(model.TagLatest); err != nil {
				return err
			}
			return loop.Model.SaveNetworks(model.IterTag(loop.Iteration))
		})
}

// MedianStepDuration returns the median duration of a training step, or 1ms
// if no step was recorded, to avoid divisions by zero.
func (loop *Loop) MedianStepDuration() time.Duration {
	if len(loop.StepDurations) == 0 {
		return time.Millisecond
	}
	times := make([]time.Duration, len(loop.StepDurations))
	copy(times, loop.StepDurations)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times[len(times)/2]
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks of type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// Enumerate calls fn for all registered hooks in priority order.
func (h *priorityHooks[H]) Enumerate(fn func(hook H)) {
	keys := make([]Priority, 0, len(h.hooks))
	for key := range h.hooks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		for _, hook := range h.hooks[key] {
			fn(hook)
		}
	}
}
