// img2img_plot renders the FID history of a training run -- the train and
// val metric logs plus the best-so-far marker -- into a chart.
package main

import (
	"flag"
	"path/filepath"

	"github.com/janpfeifer/must"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"github.com/gomlx/img2img/metriclog"
	"github.com/gomlx/img2img/support/fsutil"
)

var (
	flagRunDir = flag.String("run_dir", "", "Experiment directory, `<checkpoints_dir>/<name>`, holding train_log.txt and val_log.txt.")
	flagOutput = flag.String("output", "fid_history.png", "Output image file; the extension picks the format (png, svg, pdf).")
)

func toXYs(records []metriclog.Record) plotter.XYs {
	xys := make(plotter.XYs, len(records))
	for ii, record := range records {
		xys[ii].X = float64(record.Iteration)
		xys[ii].Y = record.FID
	}
	return xys
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagRunDir == "" {
		klog.Exitf("--run_dir must be set")
	}
	runDir := fsutil.MustReplaceTildeInDir(*flagRunDir)

	trainRecords := must.M1(metriclog.NewLog(filepath.Join(runDir, metriclog.TrainLogFile)).Records())
	valRecords := must.M1(metriclog.NewLog(filepath.Join(runDir, metriclog.ValLogFile)).Records())
	if len(trainRecords) == 0 && len(valRecords) == 0 {
		klog.Exitf("no metric records found in %s", runDir)
	}

	p := plot.New()
	p.Title.Text = filepath.Base(runDir)
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "FID"
	must.M(plotutil.AddLinePoints(p,
		"train", toXYs(trainRecords),
		"val", toXYs(valRecords)))

	best, found := must.M2(metriclog.NewBestMarker(filepath.Join(runDir, metriclog.BestValFIDFile)).Read())
	if found {
		scatter := must.M1(plotter.NewScatter(toXYs([]metriclog.Record{best})))
		p.Add(scatter)
		p.Legend.Add("best", scatter)
	}

	must.M(p.Save(8*vg.Inch, 4*vg.Inch, *flagOutput))
	klog.Infof("wrote %s", *flagOutput)
}
