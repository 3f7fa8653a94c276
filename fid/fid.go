// Package fid abstracts the distributional image-similarity metric used to
// score generated translations against reference images.
//
// The metric itself (a Fréchet-distance style comparison in a learned feature
// space) is an external capability: the default implementation shells out to
// a fidelity command, the equivalent of the torch-fidelity package used by
// the original training scripts.
package fid

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Scorer computes a scalar distributional distance between the images in two
// directories. Lower means the two image sets are more similar.
type Scorer interface {
	// Distance compares the reference and generated directories. Both must
	// exist and hold enough images for the metric's statistics; anything else
	// is an error and aborts the run.
	Distance(ctx context.Context, referenceDir, generatedDir string) (float64, error)
}

// CommandScorer runs an external command to compute the distance. The command
// is invoked as `name arg... <referenceDir> <generatedDir>` and must print
// the scalar distance as the last number on its standard output -- the
// convention of the common FID command-line tools.
type CommandScorer struct {
	name string
	args []string
}

// NewCommandScorer creates a CommandScorer from a command line, e.g.
// "python -m pytorch_fid" or "fidelity --fid". It fails on an empty command.
func NewCommandScorer(commandLine string) (*CommandScorer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("empty FID command")
	}
	return &CommandScorer{name: fields[0], args: fields[1:]}, nil
}

// Distance implements Scorer.
func (s *CommandScorer) Distance(ctx context.Context, referenceDir, generatedDir string) (float64, error) {
	args := make([]string, 0, len(s.args)+2)
	args = append(args, s.args...)
	args = append(args, referenceDir, generatedDir)
	klog.V(1).Infof("computing FID: %s %s", s.name, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, s.name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, errors.Wrapf(err, "FID command %q failed with output:\n%s", s.name, output)
	}
	value, err := ParseDistance(string(output))
	if err != nil {
		return 0, errors.WithMessagef(err, "parsing output of FID command %q", s.name)
	}
	return value, nil
}

var numberRegex = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

// ParseDistance extracts the metric value from the command output: the last
// number printed. Tools differ in their surrounding text ("FID: 12.34",
// "frechet_inception_distance: 12.34"), but all print the score last.
func ParseDistance(output string) (float64, error) {
	matches := numberRegex.FindAllString(output, -1)
	if len(matches) == 0 {
		return 0, errors.Errorf("no number found in FID command output:\n%s", output)
	}
	value, err := strconv.ParseFloat(matches[len(matches)-1], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %q as the FID value", matches[len(matches)-1])
	}
	return value, nil
}

var _ Scorer = (*CommandScorer)(nil)
