package train

import (
	"bytes"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neolearn/neolearn/internal/checkpoint"
	"github.com/neolearn/neolearn/internal/data"
	"github.com/neolearn/neolearn/internal/nn"
	"github.com/neolearn/neolearn/internal/optim"
	"github.com/neolearn/neolearn/internal/tensor"
)

type fixture struct {
	model       *nn.Model
	opt         *optim.Adam
	train, test *data.Loader
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	rng := rand.New(rand.NewSource(0))
	ds, err := data.Blobs(data.BlobsConfig{Samples: 120, Classes: 3, Features: 4, Spread: 0.3}, rng, tensor.CPU)
	require.NoError(t, err)
	trainSet, testSet, err := ds.Split(0.25, rng)
	require.NoError(t, err)

	model, err := nn.NewModel(nn.ModelConfig{
		Kind:       nn.KindLinear,
		InputShape: []int{4},
		Hidden:     []int{8},
		Classes:    3,
		Init:       nn.InitXavier,
	}, tensor.CPU, rng)
	require.NoError(t, err)

	trainLoader, err := data.NewLoader(trainSet, 16, true, rng)
	require.NoError(t, err)
	testLoader, err := data.NewLoader(testSet, 32, false, nil)
	require.NoError(t, err)

	return fixture{
		model: model,
		opt:   optim.NewAdam(model, optim.AdamConfig{LR: 0.05}),
		train: trainLoader,
		test:  testLoader,
	}
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.model, f.opt, f.train, f.test, Options{Epochs: 0, NoSave: true, NoPlot: true}, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = New(f.model, f.opt, f.train, f.test, Options{Epochs: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions, "project required when saving")

	_, err = New(f.model, f.opt, nil, f.test, Options{Epochs: 1, NoSave: true, NoPlot: true}, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestRun_LearnsAndWritesArtifacts(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "run")
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	tr, err := New(f.model, f.opt, f.train, f.test, Options{Epochs: 8, Project: dir, LogEvery: 2}, logger)
	require.NoError(t, err)
	h, err := tr.Run()
	require.NoError(t, err)

	require.Len(t, h.Epochs, 8)
	first, last := h.Epochs[0], h.Epochs[7]
	assert.Less(t, last.Loss, first.Loss)
	assert.Greater(t, last.TestAcc, 0.8)
	assert.GreaterOrEqual(t, h.BestAcc, last.TestAcc)

	for _, name := range []string{LastCheckpoint, BestCheckpoint, LossPlotFile, AccuracyPlotFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.Contains(t, logs.String(), "epoch finished")
	assert.Contains(t, logs.String(), "iteration")

	rec, err := checkpoint.Load(filepath.Join(dir, LastCheckpoint))
	require.NoError(t, err)
	assert.Equal(t, 8, rec.Epoch, "last checkpoint names the next epoch")
	assert.Equal(t, f.opt.Iter(), rec.Iter)
	for i, p := range f.model.Params() {
		assert.Equal(t, p.Data(), rec.Params[i].Data())
	}
	assert.Equal(t, h.BestAcc, rec.BestAcc)
	assert.Equal(t, h.BestEpoch, rec.BestEpoch)
	assert.Len(t, rec.History, 8)
	assert.Equal(t, h.IterLoss, rec.IterLoss)
}

func TestRun_RecordsIterationLosses(t *testing.T) {
	f := newFixture(t)
	tr, err := New(f.model, f.opt, f.train, f.test, Options{Epochs: 3, NoSave: true, NoPlot: true}, nil)
	require.NoError(t, err)
	h, err := tr.Run()
	require.NoError(t, err)

	perEpoch := f.train.Len()
	require.Len(t, h.IterLoss, 3*perEpoch)
	for i, e := range h.Epochs {
		assert.Equal(t, (i+1)*perEpoch, e.Iter)
		mean := 0.0
		for _, l := range h.IterLoss[i*perEpoch : (i+1)*perEpoch] {
			mean += l
		}
		assert.InDelta(t, mean/float64(perEpoch), e.Loss, 1e-12)
	}
}

func TestRun_NoSaveNoPlot(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "run")
	tr, err := New(f.model, f.opt, f.train, f.test, Options{Epochs: 1, Project: dir, NoSave: true, NoPlot: true}, nil)
	require.NoError(t, err)
	_, err = tr.Run()
	require.NoError(t, err)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "run")
	tr, err := New(f.model, f.opt, f.train, f.test, Options{Epochs: 2, Project: dir, NoPlot: true}, nil)
	require.NoError(t, err)
	_, err = tr.Run()
	require.NoError(t, err)

	model, opt, rec, err := checkpoint.Resume(filepath.Join(dir, LastCheckpoint), tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, f.opt.Iter(), opt.Iter())

	tr, err = New(model, opt, f.train, f.test, Options{
		Epochs:     4,
		StartEpoch: rec.Epoch,
		Project:    dir,
		History:    HistoryFromRecord(rec),
	}, nil)
	require.NoError(t, err)
	h, err := tr.Run()
	require.NoError(t, err)
	require.Len(t, h.Epochs, 4)
	for i, e := range h.Epochs {
		assert.Equal(t, i, e.Epoch)
	}
	assert.Len(t, h.IterLoss, 4*f.train.Len())
	assert.Equal(t, 2*f.train.Len()*2, opt.Iter())
	assert.FileExists(t, filepath.Join(dir, LossPlotFile))
}

func TestRun_ResumeKeepsBestAccuracy(t *testing.T) {
	f := newFixture(t)
	prior := NewHistory()
	prior.Record(EpochStats{Epoch: 0, TestAcc: 1.5})

	dir := filepath.Join(t.TempDir(), "run")
	tr, err := New(f.model, f.opt, f.train, f.test, Options{
		Epochs:     2,
		StartEpoch: 1,
		Project:    dir,
		NoPlot:     true,
		History:    prior,
	}, nil)
	require.NoError(t, err)
	h, err := tr.Run()
	require.NoError(t, err)

	assert.Equal(t, 1.5, h.BestAcc)
	assert.Equal(t, 0, h.BestEpoch)
	assert.FileExists(t, filepath.Join(dir, LastCheckpoint))
	assert.NoFileExists(t, filepath.Join(dir, BestCheckpoint), "a worse epoch must not replace the best checkpoint")
	assert.Len(t, prior.Epochs, 1, "options history is not mutated")
}

func TestHistory_RecordRoundTrip(t *testing.T) {
	h := NewHistory()
	h.AddIteration(0.9)
	h.AddIteration(0.7)
	h.Record(EpochStats{Epoch: 0, Iter: 2, Loss: 0.8, TrainAcc: 0.5, TestAcc: 0.6})

	rec := &checkpoint.Record{}
	h.Export(rec)
	assert.Equal(t, h, HistoryFromRecord(rec))
}

func TestHistory_Record(t *testing.T) {
	h := NewHistory()
	assert.True(t, h.Record(EpochStats{Epoch: 0, TestAcc: 0.5}))
	assert.False(t, h.Record(EpochStats{Epoch: 1, TestAcc: 0.4}))
	assert.True(t, h.Record(EpochStats{Epoch: 2, TestAcc: 0.5}), "ties count as best")
	assert.Equal(t, 2, h.BestEpoch)
	assert.Equal(t, 0.5, h.BestAcc)
}

func TestCalculator(t *testing.T) {
	var c Calculator
	assert.Zero(t, c.Loss())
	assert.Zero(t, c.Accuracy())

	c.AddLoss(1)
	c.AddLoss(3)
	c.AddAccuracy(3, 4)
	c.AddAccuracy(1, 4)
	assert.Equal(t, 2.0, c.Loss())
	assert.Equal(t, 0.5, c.Accuracy())

	c.Reset()
	assert.Zero(t, c.Loss())
}
