package train

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot file names written into the project directory.
const (
	LossPlotFile     = "loss.svg"
	AccuracyPlotFile = "accuracy.svg"
)

const plotSize = 6 * vg.Inch

type series struct {
	name string
	pts  plotter.XYs
}

// SavePlots writes the loss and accuracy curves of h into dir.
//
// The loss plot has one point per training iteration plus the epoch means
// placed at the iteration that closed each epoch.
func SavePlots(h *History, dir string) error {
	batch := make(plotter.XYs, len(h.IterLoss))
	for i, l := range h.IterLoss {
		batch[i].X = float64(i + 1)
		batch[i].Y = l
	}
	if err := savePlot(filepath.Join(dir, LossPlotFile), "Loss", "iteration", "loss",
		series{"batch", batch},
		series{"epoch mean", epochPoints(h, true, func(s EpochStats) float64 { return s.Loss })},
	); err != nil {
		return err
	}
	return savePlot(filepath.Join(dir, AccuracyPlotFile), "Accuracy", "epoch", "accuracy %",
		series{"train", epochPoints(h, false, func(s EpochStats) float64 { return 100 * s.TrainAcc })},
		series{"test", epochPoints(h, false, func(s EpochStats) float64 { return 100 * s.TestAcc })},
	)
}

// epochPoints maps every epoch to a point, with x at the epoch's last
// iteration when byIter is set and at the 1-based epoch number otherwise.
func epochPoints(h *History, byIter bool, value func(EpochStats) float64) plotter.XYs {
	pts := make(plotter.XYs, len(h.Epochs))
	for i, e := range h.Epochs {
		pts[i].X = float64(e.Epoch + 1)
		if byIter {
			pts[i].X = float64(e.Iter)
		}
		pts[i].Y = value(e)
	}
	return pts
}

func savePlot(path, title, xlabel, ylabel string, lines ...series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, s := range lines {
		if len(s.pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(s.pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", title, err)
		}
		l.Width = 2
		l.Color = plotutil.Color(i)
		p.Add(l)
		p.Legend.Add(s.name, l)
	}

	if err := p.Save(plotSize, plotSize*3/4, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
