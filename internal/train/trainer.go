// Package train drives the epoch/iteration loop: a training pass of
// forward, loss, backward, update and zero_grad over every batch, then an
// evaluation pass, with checkpoints and plots written to the project
// directory.
package train

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/neolearn/neolearn/internal/checkpoint"
	"github.com/neolearn/neolearn/internal/data"
	"github.com/neolearn/neolearn/internal/nn"
	"github.com/neolearn/neolearn/internal/optim"
)

// Checkpoint file names written into the project directory.
const (
	LastCheckpoint = "last.nlck"
	BestCheckpoint = "best.nlck"
)

// ErrInvalidOptions is returned by New for unusable options.
var ErrInvalidOptions = errors.New("train: invalid options")

// Options configures a training run.
type Options struct {
	Epochs     int    // total epochs; the run covers [StartEpoch, Epochs)
	StartEpoch int    // first epoch to run, from a resumed checkpoint
	Project    string // output directory
	NoSave     bool   // skip last/best checkpoints
	NoPlot     bool   // skip loss/accuracy plots
	LogEvery   int    // iterations between progress records, 0 disables

	// History of the epochs before StartEpoch, usually HistoryFromRecord
	// of the resumed checkpoint. Nil starts a fresh history.
	History *History
}

// Trainer owns one training run.
//
// Example:
//
//	tr, err := train.New(model, adam, trainLoader, testLoader, train.Options{
//	    Epochs:  16,
//	    Project: "runs/mnist",
//	}, slog.Default())
//	history, err := tr.Run()
type Trainer struct {
	model *nn.Model
	opt   *optim.Adam
	train *data.Loader
	test  *data.Loader
	opts  Options
	log   *slog.Logger
}

// New creates a trainer. A nil logger discards progress records.
func New(model *nn.Model, opt *optim.Adam, train, test *data.Loader, opts Options, logger *slog.Logger) (*Trainer, error) {
	if model == nil || opt == nil || train == nil || test == nil {
		return nil, fmt.Errorf("%w: model, optimizer and both loaders are required", ErrInvalidOptions)
	}
	if opts.Epochs < 1 || opts.StartEpoch < 0 || opts.LogEvery < 0 {
		return nil, fmt.Errorf("%w: epochs %d, start epoch %d, log every %d",
			ErrInvalidOptions, opts.Epochs, opts.StartEpoch, opts.LogEvery)
	}
	if (!opts.NoSave || !opts.NoPlot) && opts.Project == "" {
		return nil, fmt.Errorf("%w: project directory is required unless saving and plotting are disabled", ErrInvalidOptions)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Trainer{model: model, opt: opt, train: train, test: test, opts: opts, log: logger}, nil
}

// Run trains from StartEpoch to Epochs and returns the history, including
// any epochs carried in Options.History.
//
// After each epoch the full training state is saved to last.nlck, and to
// best.nlck when the test accuracy is at least the best so far. The saved
// epoch is the next one to run.
func (t *Trainer) Run() (*History, error) {
	if !t.opts.NoSave || !t.opts.NoPlot {
		if err := os.MkdirAll(t.opts.Project, 0o755); err != nil {
			return nil, fmt.Errorf("create project dir: %w", err)
		}
	}

	t.log.Info("training started",
		"epochs", t.opts.Epochs,
		"start_epoch", t.opts.StartEpoch,
		"params", t.model.NumParams(),
		"batches", t.train.Len(),
		"project", t.opts.Project)

	history := NewHistory()
	if t.opts.History != nil {
		history = t.opts.History.Clone()
	}
	for epoch := t.opts.StartEpoch; epoch < t.opts.Epochs; epoch++ {
		loss, trainAcc, err := t.trainEpoch(epoch, history)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		testAcc, err := t.Evaluate(t.test)
		if err != nil {
			return history, fmt.Errorf("epoch %d evaluation: %w", epoch, err)
		}

		stats := EpochStats{
			Epoch:    epoch,
			Iter:     len(history.IterLoss),
			Loss:     loss,
			TrainAcc: trainAcc,
			TestAcc:  testAcc,
		}
		improved := history.Record(stats)
		t.log.Info("epoch finished",
			"epoch", epoch+1,
			"loss", loss,
			"train_acc", trainAcc,
			"test_acc", testAcc,
			"best_acc", history.BestAcc)

		if !t.opts.NoSave {
			if err := t.saveCheckpoints(epoch, improved, history); err != nil {
				return history, err
			}
		}
	}

	if !t.opts.NoPlot && len(history.Epochs) > 0 {
		if err := SavePlots(history, t.opts.Project); err != nil {
			return history, err
		}
	}
	return history, nil
}

// trainEpoch runs one pass over the training loader, appending every batch
// loss to h.
func (t *Trainer) trainEpoch(epoch int, h *History) (float64, float64, error) {
	var calc Calculator
	for i, batch := range t.train.All() {
		logits, err := t.model.Forward(batch.X)
		if err != nil {
			return 0, 0, err
		}
		l, err := t.model.Loss(logits, batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		calc.AddLoss(l)
		h.AddIteration(l)
		calc.AddAccuracy(nn.CountCorrect(logits, batch.Labels), len(batch.Labels))

		if _, err := t.model.Backward(); err != nil {
			return 0, 0, err
		}
		if err := t.opt.Update(); err != nil {
			return 0, 0, err
		}
		t.opt.ZeroGrad()

		if t.opts.LogEvery > 0 && (i+1)%t.opts.LogEvery == 0 {
			t.log.Info("iteration",
				"epoch", epoch+1,
				"iter", i+1,
				"of", t.train.Len(),
				"loss", calc.Loss(),
				"acc", calc.Accuracy())
		}
	}
	return calc.Loss(), calc.Accuracy(), nil
}

// Evaluate returns the accuracy of the model over one pass of loader.
func (t *Trainer) Evaluate(loader *data.Loader) (float64, error) {
	var calc Calculator
	for _, batch := range loader.All() {
		logits, err := t.model.Forward(batch.X)
		if err != nil {
			return 0, err
		}
		calc.AddAccuracy(nn.CountCorrect(logits, batch.Labels), len(batch.Labels))
	}
	return calc.Accuracy(), nil
}

func (t *Trainer) saveCheckpoints(epoch int, improved bool, h *History) error {
	rec := checkpoint.Capture(t.model, t.opt, epoch+1)
	h.Export(rec)
	last := filepath.Join(t.opts.Project, LastCheckpoint)
	if err := checkpoint.Save(last, rec); err != nil {
		return fmt.Errorf("save %s: %w", last, err)
	}
	if improved {
		best := filepath.Join(t.opts.Project, BestCheckpoint)
		if err := checkpoint.Save(best, rec); err != nil {
			return fmt.Errorf("save %s: %w", best, err)
		}
		t.log.Info("best checkpoint saved", "epoch", epoch+1, "path", best)
	}
	return nil
}
