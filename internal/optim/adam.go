package optim

import (
	"fmt"
	"math"

	"github.com/neolearn/neolearn/internal/tensor"
)

// Default Adam hyperparameters.
const (
	DefaultLR    = 0.001
	DefaultBeta1 = 0.9
	DefaultBeta2 = 0.999
	DefaultEps   = 1e-8
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)   // Parameter update
//
// Moments are allocated lazily on the first Update, one per registry entry,
// and are index-aligned with the model's Params.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	model Trainable
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int              // Timestep for bias correction
	m     []*tensor.Tensor // First moment estimates
	v     []*tensor.Tensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
//
// A zero field means "use the default", so NewAdam cannot be given a zero
// beta or epsilon directly. State restored through LoadState is applied
// verbatim, zeros included.
type AdamConfig struct {
	LR    float64 // Learning rate (default: 0.001)
	Beta1 float64 // First moment decay (default: 0.9)
	Beta2 float64 // Second moment decay (default: 0.999)
	Eps   float64 // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer over model's registry.
func NewAdam(model Trainable, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = DefaultLR
	}
	if config.Beta1 == 0 {
		config.Beta1 = DefaultBeta1
	}
	if config.Beta2 == 0 {
		config.Beta2 = DefaultBeta2
	}
	if config.Eps == 0 {
		config.Eps = DefaultEps
	}
	return &Adam{
		model: model,
		lr:    config.LR,
		beta1: config.Beta1,
		beta2: config.Beta2,
		eps:   config.Eps,
	}
}

// Update performs a single optimization step.
//
// The registry is validated before any state changes, so a failed Update
// leaves parameters, moments and the step counter untouched.
func (a *Adam) Update() error {
	params, grads := a.model.Params(), a.model.Grads()
	if len(params) != len(grads) {
		return fmt.Errorf("%w: %d params, %d grads", ErrRegistryMisaligned, len(params), len(grads))
	}
	if a.m == nil {
		a.m = make([]*tensor.Tensor, len(params))
		a.v = make([]*tensor.Tensor, len(params))
		for i, p := range params {
			a.m[i] = tensor.ZerosLike(p)
			a.v[i] = tensor.ZerosLike(p)
		}
	}
	if len(a.m) != len(params) || len(a.v) != len(params) {
		return fmt.Errorf("%w: %d params, %d/%d moments", ErrRegistryMisaligned, len(params), len(a.m), len(a.v))
	}
	for i, p := range params {
		n := p.NumElements()
		if grads[i].NumElements() != n || a.m[i].NumElements() != n || a.v[i].NumElements() != n {
			return fmt.Errorf("%w: entry %d has %d elements, grad %d, moments %d/%d", ErrRegistryMisaligned,
				i, n, grads[i].NumElements(), a.m[i].NumElements(), a.v[i].NumElements())
		}
	}

	a.t++
	biasCorrection1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for i, p := range params {
		a.updateParameter(p.Data(), grads[i].Data(), a.m[i].Data(), a.v[i].Data(), biasCorrection1, biasCorrection2)
	}
	return nil
}

// updateParameter performs Adam update for a single parameter.
func (a *Adam) updateParameter(param, grad, m, v []float64, biasCorrection1, biasCorrection2 float64) {
	for i, g := range grad {
		m[i] = a.beta1*m[i] + (1.0-a.beta1)*g
		v[i] = a.beta2*v[i] + (1.0-a.beta2)*g*g

		mHat := m[i] / biasCorrection1
		vHat := v[i] / biasCorrection2

		param[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}

// ZeroGrad clears the model's gradient accumulators. Moments are kept.
func (a *Adam) ZeroGrad() {
	a.model.ZeroGrad()
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR changes the learning rate.
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// Iter returns the number of completed updates.
func (a *Adam) Iter() int { return a.t }

// State is a host-independent snapshot of Adam's hyperparameters and moments.
// M and V are nil before the first Update.
type State struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64
	Iter  int
	M     []*tensor.Tensor
	V     []*tensor.Tensor
}

// State returns a deep copy of the optimizer state.
func (a *Adam) State() State {
	return State{
		LR:    a.lr,
		Beta1: a.beta1,
		Beta2: a.beta2,
		Eps:   a.eps,
		Iter:  a.t,
		M:     cloneAll(a.m),
		V:     cloneAll(a.v),
	}
}

// LoadState replaces the optimizer state with a deep copy of s. Moments
// must be index-aligned with the model's Params; a mismatch surfaces as
// ErrRegistryMisaligned here or on the next Update.
//
// Hyperparameters are taken as given, without default substitution, and
// must satisfy lr > 0, 0 <= beta < 1, eps >= 0 and iter >= 0.
func (a *Adam) LoadState(s State) error {
	if !(s.LR > 0) || s.Beta1 < 0 || s.Beta1 >= 1 || s.Beta2 < 0 || s.Beta2 >= 1 || s.Eps < 0 || s.Iter < 0 {
		return fmt.Errorf("%w: lr %g beta1 %g beta2 %g eps %g iter %d",
			ErrInvalidState, s.LR, s.Beta1, s.Beta2, s.Eps, s.Iter)
	}
	if len(s.M) != len(s.V) {
		return fmt.Errorf("%w: %d first moments, %d second moments", ErrRegistryMisaligned, len(s.M), len(s.V))
	}
	if s.M != nil && len(s.M) != len(a.model.Params()) {
		return fmt.Errorf("%w: %d moments for %d params", ErrRegistryMisaligned, len(s.M), len(a.model.Params()))
	}
	a.lr, a.beta1, a.beta2, a.eps, a.t = s.LR, s.Beta1, s.Beta2, s.Eps, s.Iter
	a.m, a.v = cloneAll(s.M), cloneAll(s.V)
	return nil
}

func cloneAll(ts []*tensor.Tensor) []*tensor.Tensor {
	if ts == nil {
		return nil
	}
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
