// Package visualizer displays training progress on the command line and
// keeps the textual loss log of a run.
//
// It replaces the visdom/HTML dashboard of the original training scripts
// with a progress bar, periodic loss print-outs appended to `loss_log.txt`,
// and current-visuals snapshots saved under the experiment's display
// directory on the display cadence.
package visualizer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/options"
	"github.com/gomlx/img2img/support/fsutil"
	"github.com/gomlx/img2img/train"
	"github.com/gomlx/img2img/translate"
)

// LossLogFile is the name of the textual loss log within the experiment
// directory.
const LossLogFile = "loss_log.txt"

// Visualizer attaches console display and loss logging to a training loop.
type Visualizer struct {
	opts        *options.Options
	bar         *progressbar.ProgressBar
	lossLogPath string
	displayDir  string
	start       time.Time
}

// New creates a Visualizer for the run and writes the loss-log session
// header, as a separator between (resumed) runs appending to the same file.
func New(opts *options.Options) (*Visualizer, error) {
	runDir := opts.RunDir()
	if err := fsutil.EnsureDir(runDir); err != nil {
		return nil, err
	}
	v := &Visualizer{
		opts:        opts,
		lossLogPath: filepath.Join(runDir, LossLogFile),
		displayDir:  filepath.Join(runDir, "display"),
		start:       time.Now(),
	}
	header := fmt.Sprintf("================ Training Loss (%s) ================\n",
		time.Now().Format("2006-01-02 15:04:05"))
	if err := v.appendLossLog(header); err != nil {
		return nil, err
	}
	return v, nil
}

// Attach registers the visualizer's hooks on the loop: progress bar on every
// iteration, loss printing on print_freq and visuals display on display_freq.
func (v *Visualizer) Attach(loop *train.Loop) {
	v.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Training: "),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("iters"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	loop.OnIteration("progress bar", -10, func(loop *train.Loop, batch *data.Batch) error {
		_ = v.bar.Add(batch.Size())
		return nil
	})
	loop.EveryNIterations(v.opts.PrintFreq, "print losses", 0, v.printCurrentLosses)
	loop.EveryNIterations(v.opts.DisplayFreq, "display results", 10, v.displayCurrentResults)
	loop.OnEpochEnd("finish progress line", -10, func(loop *train.Loop) error {
		fmt.Println()
		return nil
	})
}

// printCurrentLosses prints the model's current losses to the console and
// appends them to the loss log, in the original scripts' format:
//
//	(epoch: 3, iters: 4400, time: 0.081) loss_D: 0.412 loss_G: 1.733
func (v *Visualizer) printCurrentLosses(loop *train.Loop, _ *data.Batch) error {
	losses := loop.Model.CurrentLosses()
	names := maps.Keys(losses)
	sort.Strings(names)
	var sb strings.Builder
	fmt.Fprintf(&sb, "(epoch: %d, iters: %d, time: %.3f) ",
		loop.Epoch, loop.EpochIteration, loop.MedianStepDuration().Seconds())
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %.3f ", name, losses[name])
	}
	message := sb.String()
	klog.Info(message)
	return v.appendLossLog(message + "\n")
}

// displayCurrentResults saves the current visuals under the display
// directory. This fires on the display_freq cadence; the images are only
// persisted (instead of just refreshed in place) when the update_html_freq
// cadence is crossed as well.
func (v *Visualizer) displayCurrentResults(loop *train.Loop, _ *data.Batch) error {
	saveResult := train.Crossed(loop.PrevIteration, loop.Iteration, v.opts.UpdateHTMLFreq)
	visuals := loop.Model.CurrentVisuals()
	imagePaths := loop.Model.ImagePaths()
	if len(visuals) == 0 || len(imagePaths) == 0 {
		return nil
	}
	dir := filepath.Join(v.displayDir, "current")
	if saveResult {
		dir = filepath.Join(v.displayDir, fmt.Sprintf("epoch_%03d", loop.Epoch))
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		return err
	}
	if err := translate.SaveVisuals(dir, visuals, imagePaths[0]); err != nil {
		return errors.WithMessagef(err, "displaying current results at iteration %d", loop.Iteration)
	}
	return nil
}

func (v *Visualizer) appendLossLog(text string) error {
	f, err := os.OpenFile(v.lossLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return errors.Wrapf(err, "failed to open loss log %q", v.lossLogPath)
	}
	if _, err = f.WriteString(text); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to append to loss log %q", v.lossLogPath)
	}
	return errors.Wrapf(f.Close(), "failed to close loss log %q", v.lossLogPath)
}

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// Summary returns an end-of-run table with the run totals.
func (v *Visualizer) Summary(loop *train.Loop) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	table.Row("Experiment", v.opts.Name)
	table.Row("Epochs", fmt.Sprintf("%d", loop.Epoch-1))
	table.Row("Total iterations", humanize.Comma(int64(loop.Iteration)))
	table.Row("Median step duration", loop.MedianStepDuration().Round(time.Millisecond).String())
	table.Row("Elapsed", time.Since(v.start).Round(time.Second).String())
	return table.Render()
}
