// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Trainable interface: the parameter/gradient registry an optimizer reads
//   - Optimizer interface: Base interface for all optimizers
//   - Adam: Adaptive Moment Estimation
//
// Example usage:
//
//	opt := optim.NewAdam(model, optim.AdamConfig{LR: 0.001})
//
//	for _, batch := range loader.All() {
//	    logits, _ := model.Forward(batch.X)
//	    model.Loss(logits, batch.Labels)
//	    model.Backward()
//
//	    if err := opt.Update(); err != nil {
//	        return err
//	    }
//	    opt.ZeroGrad()
//	}
package optim

import (
	"errors"

	"github.com/neolearn/neolearn/internal/tensor"
)

// ErrRegistryMisaligned is returned by Update when parameters, gradients
// and moments do not line up index-for-index.
var ErrRegistryMisaligned = errors.New("optim: parameter registry misaligned")

// ErrInvalidState is returned by LoadState for out-of-range hyperparameters.
var ErrInvalidState = errors.New("optim: invalid optimizer state")

// Trainable is the registry view an optimizer works against.
//
// Params and Grads must be aligned: Grads()[i] is the gradient of Params()[i].
// *nn.Model implements Trainable.
type Trainable interface {
	Params() []*tensor.Tensor
	Grads() []*tensor.Tensor
	ZeroGrad()
}

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Update: Apply gradient updates to parameters
//   - ZeroGrad: Clear the model's gradients before the next iteration
//   - LR/SetLR: Get or change the learning rate
type Optimizer interface {
	// Update applies one step of gradient updates to all parameters in place.
	Update() error

	// ZeroGrad clears the model's gradient accumulators. Optimizer state
	// is left untouched.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float64

	// SetLR changes the learning rate for subsequent updates.
	SetLR(lr float64)
}
