// Package subprocess implements model.Model backed by an external worker
// process, typically a Python program wrapping the actual networks.
//
// The driver and the worker speak a line-delimited JSON protocol over the
// worker's stdin/stdout: one request object per line, one response object
// per line, strictly in order. Images cross the boundary PNG-encoded in
// base64. The worker owns the networks, the optimizer and the checkpoint
// files; the driver owns everything else.
package subprocess

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/model"
)

// Config of the worker process.
type Config struct {
	// Command line starting the worker, e.g.
	// "python worker.py". The driver appends
	// `--model <Model> --direction <Direction> --checkpoints_dir <RunDir>`.
	Command string

	// Model architecture the worker should build (e.g. "pix2pix").
	Model string

	// Direction of the translation, "AtoB" or "BtoA".
	Direction string

	// RunDir is the experiment directory where the worker stores its
	// checkpoint files.
	RunDir string

	// ContinueTrain makes the worker load its "latest" checkpoint on start.
	ContinueTrain bool
}

// request is one protocol message from driver to worker.
type request struct {
	Op     string            `json:"op"`
	Tag    string            `json:"tag,omitempty"`
	Paths  []string          `json:"paths,omitempty"`
	Images map[string]string `json:"images,omitempty"` // path -> base64 PNG
}

// response is one protocol message from worker to driver.
type response struct {
	OK      bool               `json:"ok"`
	Error   string             `json:"error,omitempty"`
	Losses  map[string]float64 `json:"losses,omitempty"`
	Visuals map[string]string  `json:"visuals,omitempty"` // label -> base64 PNG
}

// Model drives a worker process. It implements model.Model. It is not safe
// for concurrent use, matching the driver's single-writer discipline.
type Model struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	batch   *data.Batch
	visuals model.Visuals
	losses  map[string]float64
}

// New starts the worker process and, if configured, makes it load the
// "latest" checkpoint.
func New(config Config) (*Model, error) {
	fields := strings.Fields(config.Command)
	if len(fields) == 0 {
		return nil, errors.New("empty model worker command")
	}
	args := append(fields[1:],
		"--model", config.Model,
		"--direction", config.Direction,
		"--checkpoints_dir", config.RunDir)
	cmd := exec.Command(fields[0], args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open worker stdout")
	}
	// The worker's diagnostics (e.g. Python tracebacks) go straight to the
	// driver's stderr, so a dying worker explains itself.
	cmd.Stderr = os.Stderr
	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start model worker %q", config.Command)
	}
	klog.V(1).Infof("started model worker: %s %s", fields[0], strings.Join(args, " "))
	m := &Model{
		config: config,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}
	if config.ContinueTrain {
		if err = m.LoadNetworks(model.TagLatest); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Close asks the worker to exit and waits for it.
func (m *Model) Close() error {
	_, _ = m.roundTrip(request{Op: "quit"})
	_ = m.stdin.Close()
	return errors.Wrap(m.cmd.Wait(), "model worker did not exit cleanly")
}

// roundTrip sends one request line and reads one response line.
func (m *Model) roundTrip(req request) (*response, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode request %q", req.Op)
	}
	line = append(line, '\n')
	if _, err = m.stdin.Write(line); err != nil {
		return nil, errors.Wrapf(err, "failed to send request %q to model worker", req.Op)
	}
	replyLine, err := m.stdout.ReadBytes('\n')
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read worker response to %q", req.Op)
	}
	var reply response
	if err = json.Unmarshal(replyLine, &reply); err != nil {
		return nil, errors.Wrapf(err, "malformed worker response to %q: %s", req.Op, replyLine)
	}
	if !reply.OK {
		return nil, errors.Errorf("model worker failed on %q: %s", req.Op, reply.Error)
	}
	return &reply, nil
}

// mustRoundTrip is for the mode toggles, which the model.Model interface
// does not allow to fail: a broken worker pipe there is unrecoverable.
func (m *Model) mustRoundTrip(req request) {
	if _, err := m.roundTrip(req); err != nil {
		exceptions.Panicf("model worker broken: %+v", err)
	}
}

// SetInput implements model.Model. The batch images are shipped to the
// worker PNG-encoded.
func (m *Model) SetInput(batch *data.Batch) {
	m.batch = batch
	m.visuals = nil
	m.losses = nil
	images := make(map[string]string, batch.Size())
	for _, sample := range batch.Samples {
		encoded, err := EncodeImage(sample.Input)
		if err != nil {
			exceptions.Panicf("failed to encode input %q: %+v", sample.Path, err)
		}
		images[sample.Path] = encoded
		if sample.Target != nil {
			encoded, err = EncodeImage(sample.Target)
			if err != nil {
				exceptions.Panicf("failed to encode target of %q: %+v", sample.Path, err)
			}
			images["target:"+sample.Path] = encoded
		}
	}
	m.mustRoundTrip(request{Op: "set_input", Paths: batch.Paths(), Images: images})
}

// OptimizeParameters implements model.Model.
func (m *Model) OptimizeParameters() error {
	reply, err := m.roundTrip(request{Op: "optimize"})
	if err != nil {
		return err
	}
	m.losses = reply.Losses
	return nil
}

// Test implements model.Model: forward pass only.
func (m *Model) Test() error {
	reply, err := m.roundTrip(request{Op: "test"})
	if err != nil {
		return err
	}
	visuals, err := DecodeVisuals(reply.Visuals)
	if err != nil {
		return err
	}
	m.visuals = visuals
	return nil
}

// Eval implements model.Model.
func (m *Model) Eval() { m.mustRoundTrip(request{Op: "eval"}) }

// Train implements model.Model.
func (m *Model) Train() { m.mustRoundTrip(request{Op: "train"}) }

// UpdateLearningRate implements model.Model.
func (m *Model) UpdateLearningRate() { m.mustRoundTrip(request{Op: "update_learning_rate"}) }

// CurrentVisuals implements model.Model. Visuals of the last Test call; the
// optimize path does not fetch visuals unless the worker sent them.
func (m *Model) CurrentVisuals() model.Visuals {
	if m.visuals == nil {
		reply, err := m.roundTrip(request{Op: "visuals"})
		if err != nil {
			klog.Errorf("failed to fetch current visuals: %+v", err)
			return nil
		}
		visuals, err := DecodeVisuals(reply.Visuals)
		if err != nil {
			klog.Errorf("failed to decode current visuals: %+v", err)
			return nil
		}
		m.visuals = visuals
	}
	return m.visuals
}

// ImagePaths implements model.Model.
func (m *Model) ImagePaths() []string {
	if m.batch == nil {
		return nil
	}
	return m.batch.Paths()
}

// CurrentLosses implements model.Model.
func (m *Model) CurrentLosses() map[string]float64 { return m.losses }

// SaveNetworks implements model.Model. The worker must overwrite any
// previous checkpoint saved under the same tag, atomically.
func (m *Model) SaveNetworks(tag string) error {
	_, err := m.roundTrip(request{Op: "save", Tag: tag})
	return err
}

// LoadNetworks implements model.Model.
func (m *Model) LoadNetworks(tag string) error {
	_, err := m.roundTrip(request{Op: "load", Tag: tag})
	return err
}

// EncodeImage converts an image to the base64 PNG representation used on the
// wire.
func EncodeImage(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", errors.Wrap(err, "failed to encode image as PNG")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeImage is the inverse of EncodeImage.
func DecodeImage(encoded string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to base64-decode image")
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode PNG image")
	}
	return img, nil
}

// DecodeVisuals decodes a worker visuals map (label -> base64 PNG).
func DecodeVisuals(encoded map[string]string) (model.Visuals, error) {
	visuals := make(model.Visuals, len(encoded))
	for label, b64 := range encoded {
		img, err := DecodeImage(b64)
		if err != nil {
			return nil, errors.WithMessagef(err, "visual %q", label)
		}
		visuals[label] = img
	}
	return visuals, nil
}

var _ model.Model = (*Model)(nil)
