// Package nn implements the differentiable layers and the Model that
// composes them.
//
// This package provides:
//   - Layer interface: Forward/Backward contract with hand-derived gradients
//   - Affine: fully connected layer
//   - ReLU: rectified linear activation
//   - Conv2D: 2D convolution via im2col
//   - SoftmaxWithLoss: fused softmax + cross-entropy loss
//   - Model: ordered layers plus the parameter/gradient registry
//
// Layers do not accumulate gradients themselves. Backward returns the
// parameter gradients as values and the Model harvests them into its
// registry, so accumulation and reset are explicit Model operations.
package nn

import (
	"github.com/neolearn/neolearn/internal/tensor"
)

// Layer is the contract every differentiable unit implements.
//
// Forward caches whatever Backward needs. Backward consumes that cache: it
// may run at most once per Forward, and a second call fails with
// ErrNoForwardCache.
//
//	y, err := layer.Forward(x)
//	dx, grads, err := layer.Backward(dy) // grads[i] pairs with Params()[i]
type Layer interface {
	// Name identifies the layer kind (e.g. "affine", "conv2d").
	Name() string

	// Forward computes the layer output and caches state for Backward.
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)

	// Backward returns the gradient with respect to the layer input and
	// the gradients with respect to each owned parameter, in Params order.
	Backward(dy *tensor.Tensor) (dx *tensor.Tensor, grads []*tensor.Tensor, err error)

	// Params returns the trainable parameter tensors (nil if none).
	Params() []*tensor.Tensor

	// AcquireGrad reports whether the layer owns trainable parameters.
	AcquireGrad() bool
}
