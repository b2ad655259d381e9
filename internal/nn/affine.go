package nn

import (
	"fmt"
	"math/rand"

	"github.com/neolearn/neolearn/internal/tensor"
)

// Affine implements a fully connected layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x is the input flattened to [batch_size, in_features]
//   - W is the weight matrix with shape [in_features, out_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Inputs of rank above 2 (e.g. a conv feature map [N, C, H, W]) are
// flattened on the way in, and the input gradient is reshaped back to the
// original shape on the way out.
//
// Example:
//
//	layer, _ := nn.NewAffine(784, 128, init, rng, tensor.CPU)
//	y, err := layer.Forward(x) // x: [32, 784] or [32, 1, 28, 28]
type Affine struct {
	in, out int
	weight  *tensor.Tensor // [in, out]
	bias    *tensor.Tensor // [out]
	device  tensor.Device

	x       *tensor.Tensor // flattened input cache
	inShape tensor.Shape
}

// NewAffine creates a fully connected layer. Weights follow init with
// fan-in in and fan-out out. Biases start at zero.
func NewAffine(in, out int, winit Init, rng *rand.Rand, dev tensor.Device) (*Affine, error) {
	if in < 1 || out < 1 {
		return nil, fmt.Errorf("%w: affine %d -> %d", ErrInvalidConfig, in, out)
	}
	return &Affine{
		in:     in,
		out:    out,
		weight: winit.Weights(tensor.Shape{in, out}, in, out, rng, dev),
		bias:   tensor.Zeros(tensor.Shape{out}, dev),
		device: dev,
	}, nil
}

// Name implements Layer.
func (a *Affine) Name() string { return "affine" }

// Forward computes x @ W + b.
func (a *Affine) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkDevice(a, x, a.device); err != nil {
		return nil, err
	}
	shape := x.Shape()
	if len(shape) < 2 || x.NumElements()/shape[0] != a.in {
		return nil, fmt.Errorf("%w: affine expects [N, %d] (or [N, ...] flattening to it), got %v",
			ErrShapeMismatch, a.in, shape)
	}

	x2 := x.Flatten2D()
	y := tensor.MatMul(x2, a.weight)
	tensor.AddRowVector(y, a.bias)

	a.x = x2
	a.inShape = shape.Clone()
	return y, nil
}

// Backward computes:
//
//	dW = xᵀ @ dy
//	db = Σ_rows dy
//	dx = dy @ Wᵀ, reshaped to the Forward input shape
func (a *Affine) Backward(dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	if a.x == nil {
		return nil, nil, fmt.Errorf("%w: affine", ErrNoForwardCache)
	}
	if err := checkDevice(a, dy, a.device); err != nil {
		return nil, nil, err
	}
	if !dy.Shape().Equal(tensor.Shape{a.x.Dim(0), a.out}) {
		return nil, nil, fmt.Errorf("%w: affine upstream gradient %v, want [%d %d]",
			ErrShapeMismatch, dy.Shape(), a.x.Dim(0), a.out)
	}

	dW := tensor.MatMulTransA(a.x, dy)
	db := tensor.SumRows(dy)
	dx := tensor.MatMulTransB(dy, a.weight).Reshape(a.inShape...)

	a.x, a.inShape = nil, nil
	return dx, []*tensor.Tensor{dW, db}, nil
}

// Params returns [W, b].
func (a *Affine) Params() []*tensor.Tensor {
	return []*tensor.Tensor{a.weight, a.bias}
}

// AcquireGrad implements Layer.
func (a *Affine) AcquireGrad() bool { return true }

// Weight returns the weight matrix [in, out].
func (a *Affine) Weight() *tensor.Tensor { return a.weight }

// Bias returns the bias vector [out].
func (a *Affine) Bias() *tensor.Tensor { return a.bias }

// InFeatures returns the flattened input width.
func (a *Affine) InFeatures() int { return a.in }

// OutFeatures returns the output width.
func (a *Affine) OutFeatures() int { return a.out }

func checkDevice(l Layer, x *tensor.Tensor, dev tensor.Device) error {
	if x.Device() != dev {
		return fmt.Errorf("%w: %s on %s got input on %s", ErrDeviceMismatch, l.Name(), dev, x.Device())
	}
	return nil
}
