// img2img_train trains an image-to-image translation model: it drives the
// epoch/iteration loop, periodically evaluates the model with a FID score on
// held-out translations and keeps the best checkpoint up to date.
//
// Example:
//
//	img2img_train --dataroot ./datasets/facades --name facades_pix2pix \
//	    --model pix2pix --direction BtoA --val_freq 5000 \
//	    --model_command "python worker.py" --fid_command "fidelity --fid"
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/fid"
	"github.com/gomlx/img2img/model/subprocess"
	"github.com/gomlx/img2img/options"
	"github.com/gomlx/img2img/support/fsutil"
	"github.com/gomlx/img2img/train"
	"github.com/gomlx/img2img/visualizer"
)

var flagModelCommand = flag.String("model_command", "python worker.py",
	"Command starting the model worker process that implements the networks.")

func main() {
	opts := options.RegisterFlags(flag.CommandLine)
	klog.InitFlags(nil)
	flag.Parse()
	must.M(opts.Validate())
	must.M(fsutil.EnsureDir(opts.RunDir()))

	sourceDomain := opts.Direction.SourceDomain()

	// Augmented training stream.
	trainDS := must.M1(data.NewImageFolder(opts.Dataroot, "train", opts.DatasetMode, sourceDomain)).
		BatchSize(opts.BatchSize).Shuffle().WithAugmentation()
	// Canonical subsets for evaluation: stable order, batch 1, no
	// augmentation, capped by num_val_images.
	trainSubset := must.M1(data.NewImageFolder(opts.Dataroot, "train", opts.DatasetMode, sourceDomain)).
		Limit(opts.NumValImages)
	valSubset := must.M1(data.NewImageFolder(opts.Dataroot, "val", opts.DatasetMode, sourceDomain)).
		Limit(opts.NumValImages)

	m := must.M1(subprocess.New(subprocess.Config{
		Command:       *flagModelCommand,
		Model:         opts.Model,
		Direction:     string(opts.Direction),
		RunDir:        opts.RunDir(),
		ContinueTrain: opts.ContinueTrain,
	}))
	scorer := must.M1(fid.NewCommandScorer(opts.FIDCommand))

	loop := train.NewLoop(m, opts)
	viz := must.M1(visualizer.New(opts))
	viz.Attach(loop)
	evaluator := train.NewEvaluator(opts, scorer, trainSubset, valSubset)
	must.M(evaluator.Attach(context.Background(), loop))
	loop.AttachLatestCheckpointing()

	must.M(loop.Run(trainDS))
	fmt.Println(viz.Summary(loop))
	must.M(m.Close())
}
