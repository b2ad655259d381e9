package nn

import (
	"fmt"
	"math"

	"github.com/neolearn/neolearn/internal/tensor"
)

// SoftmaxWithLoss fuses softmax and cross-entropy.
//
// For logits z [N, K] and integer labels t:
//
//	p_i  = softmax(z_i)
//	L    = -1/N Σ_i log p_i[t_i]
//	dL/dz = (p - onehot(t)) / N
//
// Per-row log-probabilities are computed as z[t] - logsumexp(z) with the
// row max subtracted, so large logits do not overflow.
type SoftmaxWithLoss struct {
	probs  *tensor.Tensor
	labels []int
}

// NewSoftmaxWithLoss creates the loss layer.
func NewSoftmaxWithLoss() *SoftmaxWithLoss {
	return &SoftmaxWithLoss{}
}

// Forward returns the mean cross-entropy of logits against labels and
// caches the probabilities for Backward.
func (s *SoftmaxWithLoss) Forward(logits *tensor.Tensor, labels []int) (float64, error) {
	shape := logits.Shape()
	if len(shape) != 2 {
		return 0, fmt.Errorf("%w: softmax loss expects [N, K] logits, got %v", ErrShapeMismatch, shape)
	}
	n, k := shape[0], shape[1]
	if len(labels) != n {
		return 0, fmt.Errorf("%w: %d labels for %d rows", ErrShapeMismatch, len(labels), n)
	}
	for i, t := range labels {
		if t < 0 || t >= k {
			return 0, fmt.Errorf("%w: label[%d] = %d with %d classes", ErrInvalidLabel, i, t, k)
		}
	}

	z := logits.Data()
	p := make([]float64, len(z))
	maxes := tensor.RowMax(logits)
	var total float64
	for i := 0; i < n; i++ {
		row, out := z[i*k:(i+1)*k], p[i*k:(i+1)*k]
		var sum float64
		for j, v := range row {
			e := math.Exp(v - maxes[i])
			out[j] = e
			sum += e
		}
		for j := range out {
			out[j] /= sum
		}
		total += math.Log(sum) + maxes[i] - row[labels[i]]
	}

	s.probs = tensor.New(p, shape, logits.Device())
	s.labels = append([]int(nil), labels...)
	return total / float64(n), nil
}

// Backward returns dL/dlogits = (softmax - onehot) / N.
func (s *SoftmaxWithLoss) Backward() (*tensor.Tensor, error) {
	if s.probs == nil {
		return nil, fmt.Errorf("%w: softmax loss", ErrNoForwardCache)
	}
	n, k := s.probs.Dim(0), s.probs.Dim(1)
	p := s.probs.Data()
	dx := make([]float64, len(p))
	scale := float64(n)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			v := p[i*k+j]
			if j == s.labels[i] {
				v -= 1
			}
			dx[i*k+j] = v / scale
		}
	}
	out := tensor.New(dx, s.probs.Shape(), s.probs.Device())
	s.probs, s.labels = nil, nil
	return out, nil
}

// Probs returns the probabilities cached by the last Forward, or nil.
func (s *SoftmaxWithLoss) Probs() *tensor.Tensor { return s.probs }
