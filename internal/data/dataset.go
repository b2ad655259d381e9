// Package data provides the datasets and mini-batch loaders that feed the
// trainer: an in-memory Dataset, a shuffling Loader, the MNIST IDX reader
// and a synthetic blob generator.
package data

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/neolearn/neolearn/internal/tensor"
)

// Errors returned by dataset and loader constructors.
var (
	ErrEmptyBatch       = errors.New("data: empty dataset or batch")
	ErrInvalidBatchSize = errors.New("data: batch size must be at least 1")
	ErrLabelCount       = errors.New("data: label count does not match samples")
)

// Dataset is an in-memory set of samples with integer class labels.
// X has the samples along its first axis.
type Dataset struct {
	X      *tensor.Tensor
	Labels []int
}

// NewDataset validates that x and labels describe the same samples.
func NewDataset(x *tensor.Tensor, labels []int) (Dataset, error) {
	if len(x.Shape()) == 0 || x.Dim(0) == 0 {
		return Dataset{}, ErrEmptyBatch
	}
	if x.Dim(0) != len(labels) {
		return Dataset{}, fmt.Errorf("%w: %d samples, %d labels", ErrLabelCount, x.Dim(0), len(labels))
	}
	return Dataset{X: x, Labels: labels}, nil
}

// Len returns the number of samples.
func (d Dataset) Len() int { return len(d.Labels) }

// SampleShape returns the shape of one sample (X's shape without the batch axis).
func (d Dataset) SampleShape() tensor.Shape {
	return d.X.Shape()[1:].Clone()
}

// Reshape returns the dataset with every sample viewed as shape.
// Panics if the element count differs.
func (d Dataset) Reshape(shape ...int) Dataset {
	dims := append([]int{d.Len()}, shape...)
	return Dataset{X: d.X.Reshape(dims...), Labels: d.Labels}
}

// Gather copies the samples at idx into a new batch, in idx order.
func (d Dataset) Gather(idx []int) Batch {
	width := d.X.NumElements() / d.Len()
	src := d.X.Data()
	buf := make([]float64, len(idx)*width)
	labels := make([]int, len(idx))
	for i, j := range idx {
		copy(buf[i*width:(i+1)*width], src[j*width:(j+1)*width])
		labels[i] = d.Labels[j]
	}
	shape := append(tensor.Shape{len(idx)}, d.SampleShape()...)
	return Batch{X: tensor.New(buf, shape, d.X.Device()), Labels: labels}
}

// Split shuffles the samples with rng and returns (train, test) where test
// holds round(testFraction*n) samples.
func (d Dataset) Split(testFraction float64, rng *rand.Rand) (Dataset, Dataset, error) {
	n := d.Len()
	nTest := int(testFraction*float64(n) + 0.5)
	if nTest < 1 || nTest >= n {
		return Dataset{}, Dataset{}, fmt.Errorf("%w: cannot split %d samples with test fraction %g", ErrEmptyBatch, n, testFraction)
	}
	perm := rng.Perm(n)
	test := d.Gather(perm[:nTest])
	train := d.Gather(perm[nTest:])
	return Dataset(train), Dataset(test), nil
}

// Batch is one mini-batch of samples and labels.
type Batch struct {
	X      *tensor.Tensor
	Labels []int
}
