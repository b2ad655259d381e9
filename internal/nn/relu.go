package nn

import (
	"fmt"

	"github.com/neolearn/neolearn/internal/tensor"
)

// ReLU applies max(0, x) element-wise.
//
// Backward passes the upstream gradient through where the input was
// strictly positive and zeroes it elsewhere (so ReLU'(0) = 0).
type ReLU struct {
	device tensor.Device
	mask   []bool
	shape  tensor.Shape
}

// NewReLU creates a ReLU activation on dev.
func NewReLU(dev tensor.Device) *ReLU {
	return &ReLU{device: dev}
}

// Name implements Layer.
func (r *ReLU) Name() string { return "relu" }

// Forward computes max(0, x) and records the positive mask.
func (r *ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkDevice(r, x, r.device); err != nil {
		return nil, err
	}
	in := x.Data()
	out := make([]float64, len(in))
	mask := make([]bool, len(in))
	for i, v := range in {
		if v > 0 {
			out[i] = v
			mask[i] = true
		}
	}
	r.mask = mask
	r.shape = x.Shape().Clone()
	return tensor.New(out, r.shape.Clone(), r.device), nil
}

// Backward masks dy with the cached positive mask.
func (r *ReLU) Backward(dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	if r.mask == nil {
		return nil, nil, fmt.Errorf("%w: relu", ErrNoForwardCache)
	}
	if err := checkDevice(r, dy, r.device); err != nil {
		return nil, nil, err
	}
	if !dy.Shape().Equal(r.shape) {
		return nil, nil, fmt.Errorf("%w: relu upstream gradient %v, want %v", ErrShapeMismatch, dy.Shape(), r.shape)
	}
	g := dy.Data()
	dx := make([]float64, len(g))
	for i, keep := range r.mask {
		if keep {
			dx[i] = g[i]
		}
	}
	shape := r.shape
	r.mask, r.shape = nil, nil
	return tensor.New(dx, shape, r.device), nil, nil
}

// Params returns nil: ReLU has no parameters.
func (r *ReLU) Params() []*tensor.Tensor { return nil }

// AcquireGrad implements Layer.
func (r *ReLU) AcquireGrad() bool { return false }
