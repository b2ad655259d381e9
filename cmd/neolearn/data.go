package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/neolearn/neolearn/internal/config"
	"github.com/neolearn/neolearn/internal/data"
	"github.com/neolearn/neolearn/internal/device"
	"github.com/neolearn/neolearn/internal/nn"
	"github.com/neolearn/neolearn/internal/tensor"
)

const mnistClasses = 10

// errDataMismatch is returned when the configured data cannot feed a
// resumed model.
var errDataMismatch = errors.New("data does not match checkpoint")

// adoptLayout points the data settings of cfg at the layout a checkpoint
// was trained on: its model kind and, for synthetic data, its feature and
// class counts.
func adoptLayout(cfg *config.Config, mc nn.ModelConfig) error {
	cfg.Model = mc.Kind
	if cfg.DataDir != "" {
		if mc.Classes != mnistClasses {
			return fmt.Errorf("%w: checkpoint has %d classes, MNIST has %d", errDataMismatch, mc.Classes, mnistClasses)
		}
		return nil
	}
	features := 1
	for _, d := range mc.InputShape {
		features *= d
	}
	cfg.Synthetic.Features = features
	cfg.Synthetic.Classes = mc.Classes
	return nil
}

// fitInput views every sample of ds as shape, failing when the element
// counts differ.
func fitInput(ds data.Dataset, shape []int) (data.Dataset, error) {
	have := ds.SampleShape()
	if have.Equal(tensor.Shape(shape)) {
		return ds, nil
	}
	if have.NumElements() != tensor.Shape(shape).NumElements() {
		return data.Dataset{}, fmt.Errorf("%w: samples are %v, model expects %v", errDataMismatch, have, shape)
	}
	return ds.Reshape(shape...), nil
}

// loadData reads MNIST from cfg.DataDir, or generates blobs when it is
// empty, and moves both splits onto the transfer's device.
func loadData(cfg *config.Config, rng *rand.Rand, tr device.Transfer) (trainSet, testSet data.Dataset, classes int, err error) {
	conv := cfg.Model == nn.KindConv
	if cfg.DataDir != "" {
		trainSet, testSet, err = data.LoadMNIST(cfg.DataDir, !conv, tensor.CPU)
		classes = mnistClasses
	} else {
		trainSet, testSet, err = synthetic(cfg.Synthetic, conv, rng)
		classes = cfg.Synthetic.Classes
	}
	if err != nil {
		return data.Dataset{}, data.Dataset{}, 0, err
	}

	moved, err := tr.ToDevice(trainSet.X, testSet.X)
	if err != nil {
		return data.Dataset{}, data.Dataset{}, 0, fmt.Errorf("move data to %s: %w", tr.Device(), err)
	}
	trainSet.X, testSet.X = moved[0], moved[1]
	return trainSet, testSet, classes, nil
}

// synthetic builds the blobs problem. Conv models view each sample as a
// single-channel square image, so Features must be a perfect square.
func synthetic(s config.Synthetic, conv bool, rng *rand.Rand) (data.Dataset, data.Dataset, error) {
	ds, err := data.Blobs(data.BlobsConfig{
		Samples:  s.Samples,
		Classes:  s.Classes,
		Features: s.Features,
		Spread:   s.Spread,
	}, rng, tensor.CPU)
	if err != nil {
		return data.Dataset{}, data.Dataset{}, err
	}
	if conv {
		side := int(math.Round(math.Sqrt(float64(s.Features))))
		if side*side != s.Features {
			return data.Dataset{}, data.Dataset{}, fmt.Errorf("conv on synthetic data needs a square feature count, got %d", s.Features)
		}
		ds = ds.Reshape(1, side, side)
	}
	return ds.Split(s.TestFraction, rng)
}

func newLoader(ds data.Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*data.Loader, error) {
	l, err := data.NewLoader(ds, batchSize, shuffle, rng)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return l, nil
}
