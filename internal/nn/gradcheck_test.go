package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/neolearn/neolearn/internal/tensor"
)

const (
	fdStep = 1e-6
	fdTol  = 1e-4
)

// numericGrad estimates ∇f at x0 with central differences.
func numericGrad(f func([]float64) float64, x0 []float64) []float64 {
	return fd.Gradient(nil, f, x0, &fd.Settings{Formula: fd.Central, Step: fdStep})
}

// requireGradClose compares analytic and numeric gradients element-wise
// with a relative tolerance.
func requireGradClose(t *testing.T, name string, analytic, numeric []float64) {
	t.Helper()
	require.Len(t, analytic, len(numeric), name)
	for i := range analytic {
		a, n := analytic[i], numeric[i]
		scale := math.Max(1, math.Abs(a)+math.Abs(n))
		require.LessOrEqualf(t, math.Abs(a-n)/scale, fdTol,
			"%s[%d]: analytic %.8g numeric %.8g", name, i, a, n)
	}
}

// projection returns a random R and the scalar L = Σ y·R, so dL/dy = R.
func projection(rng *rand.Rand, shape tensor.Shape) (*tensor.Tensor, func(y *tensor.Tensor) float64) {
	r := tensor.Normal(shape, 1, rng, tensor.CPU)
	return r, func(y *tensor.Tensor) float64 { return floats.Dot(y.Data(), r.Data()) }
}

// checkLayerGrads verifies dx and every parameter gradient of l at x.
func checkLayerGrads(t *testing.T, l Layer, x *tensor.Tensor, rng *rand.Rand) {
	t.Helper()

	y, err := l.Forward(x)
	require.NoError(t, err)
	r, loss := projection(rng, y.Shape())
	dx, grads, err := l.Backward(r)
	require.NoError(t, err)
	require.Len(t, grads, len(l.Params()))

	forward := func() float64 {
		out, err := l.Forward(x)
		require.NoError(t, err)
		return loss(out)
	}

	x0 := append([]float64(nil), x.Data()...)
	num := numericGrad(func(v []float64) float64 {
		copy(x.Data(), v)
		return forward()
	}, x0)
	copy(x.Data(), x0)
	requireGradClose(t, l.Name()+" dx", dx.Data(), num)

	for i, p := range l.Params() {
		p0 := append([]float64(nil), p.Data()...)
		num := numericGrad(func(v []float64) float64 {
			copy(p.Data(), v)
			return forward()
		}, p0)
		copy(p.Data(), p0)
		requireGradClose(t, l.Name()+" param", grads[i].Data(), num)
	}
}
