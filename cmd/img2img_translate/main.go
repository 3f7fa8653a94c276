// img2img_translate runs a trained translation model over whole datasets and
// saves the generated images, outside the training loop.
//
// Outputs land under `translations/<name>/epoch-<tag>/{train,test,full}/`.
package main

import (
	"flag"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/model/subprocess"
	"github.com/gomlx/img2img/options"
	"github.com/gomlx/img2img/translate"
)

var (
	flagModelCommand = flag.String("model_command", "python worker.py",
		"Command starting the model worker process that implements the networks.")
	flagOutDir = flag.String("results_dir", "translations", "Root directory for the translated images.")
)

func main() {
	opts := options.RegisterFlags(flag.CommandLine)
	klog.InitFlags(nil)
	flag.Parse()
	must.M(opts.Validate())

	sourceDomain := opts.Direction.SourceDomain()
	trainDS := must.M1(data.NewImageFolder(opts.Dataroot, "train", opts.DatasetMode, sourceDomain))
	testDS := must.M1(data.NewImageFolder(opts.Dataroot, "test", opts.DatasetMode, sourceDomain))
	klog.Infof("%d train images, %d test images", trainDS.Len(), testDS.Len())

	m := must.M1(subprocess.New(subprocess.Config{
		Command:   *flagModelCommand,
		Model:     opts.Model,
		Direction: string(opts.Direction),
		RunDir:    opts.RunDir(),
	}))
	must.M(m.LoadNetworks(opts.Epoch))
	m.Eval()

	run := must.M1(translate.NewFullRun(m, opts.Direction, *flagOutDir, opts.Name, opts.Epoch))
	must.M(run.Translate(trainDS, "train"))
	must.M(run.Translate(testDS, "test"))
	klog.Infof("translations saved under %s", run.OutRoot())
	must.M(m.Close())
}
