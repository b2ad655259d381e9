package optim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neolearn/neolearn/internal/nn"
	"github.com/neolearn/neolearn/internal/tensor"
)

type fakeModel struct {
	params, grads []*tensor.Tensor
}

func (f *fakeModel) Params() []*tensor.Tensor { return f.params }
func (f *fakeModel) Grads() []*tensor.Tensor  { return f.grads }
func (f *fakeModel) ZeroGrad() {
	for _, g := range f.grads {
		g.Zero()
	}
}

func vec(vals ...float64) *tensor.Tensor {
	return tensor.New(vals, tensor.Shape{len(vals)}, tensor.CPU)
}

func TestNewAdam_Defaults(t *testing.T) {
	a := NewAdam(&fakeModel{}, AdamConfig{})
	s := a.State()
	assert.Equal(t, DefaultLR, s.LR)
	assert.Equal(t, DefaultBeta1, s.Beta1)
	assert.Equal(t, DefaultBeta2, s.Beta2)
	assert.Equal(t, DefaultEps, s.Eps)
	assert.Equal(t, 0, s.Iter)
	assert.Nil(t, s.M)
}

func TestAdam_FirstStep(t *testing.T) {
	// At t=1 bias correction makes m_hat = g and v_hat = g², so each
	// parameter moves by lr * g / (|g| + eps).
	m := &fakeModel{
		params: []*tensor.Tensor{vec(1, -2), vec(0.5)},
		grads:  []*tensor.Tensor{vec(0.5, -4), vec(2)},
	}
	a := NewAdam(m, AdamConfig{LR: 0.1})
	require.NoError(t, a.Update())

	assert.InDelta(t, 0.9, m.params[0].Data()[0], 1e-7)
	assert.InDelta(t, -1.9, m.params[0].Data()[1], 1e-7)
	assert.InDelta(t, 0.4, m.params[1].Data()[0], 1e-7)
	assert.Equal(t, 1, a.Iter())

	s := a.State()
	require.Len(t, s.M, 2)
	assert.InDelta(t, 0.05, s.M[0].Data()[0], 1e-15)
	assert.InDelta(t, 0.001*16, s.V[0].Data()[1], 1e-15)
}

func TestAdam_SecondStep(t *testing.T) {
	m := &fakeModel{params: []*tensor.Tensor{vec(0)}, grads: []*tensor.Tensor{vec(1)}}
	a := NewAdam(m, AdamConfig{LR: 0.01})
	require.NoError(t, a.Update())
	m.grads[0].Data()[0] = 3
	require.NoError(t, a.Update())

	// Hand computation of the second step.
	m1 := 0.9*0.1 + 0.1*3
	v1 := 0.999*0.001 + 0.001*9
	mHat := m1 / (1 - 0.9*0.9)
	vHat := v1 / (1 - 0.999*0.999)
	want := -0.01*1/(1+1e-8) - 0.01*mHat/(math.Sqrt(vHat)+1e-8)
	assert.InDelta(t, want, m.params[0].Data()[0], 1e-12)
}

func TestAdam_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p0 := tensor.Normal(tensor.Shape{4, 3}, 1, rng, tensor.CPU)
	g := tensor.Normal(tensor.Shape{4, 3}, 1, rng, tensor.CPU)

	run := func() []float64 {
		m := &fakeModel{params: []*tensor.Tensor{p0.Clone()}, grads: []*tensor.Tensor{g.Clone()}}
		a := NewAdam(m, AdamConfig{LR: 0.05})
		for i := 0; i < 5; i++ {
			require.NoError(t, a.Update())
		}
		return m.params[0].Data()
	}
	assert.Equal(t, run(), run())
}

func TestAdam_RegistryMisaligned(t *testing.T) {
	m := &fakeModel{params: []*tensor.Tensor{vec(1), vec(2)}, grads: []*tensor.Tensor{vec(0)}}
	a := NewAdam(m, AdamConfig{})
	assert.ErrorIs(t, a.Update(), ErrRegistryMisaligned)
	assert.Equal(t, 0, a.Iter(), "failed update must not advance the step counter")

	m = &fakeModel{params: []*tensor.Tensor{vec(1, 2)}, grads: []*tensor.Tensor{vec(0)}}
	a = NewAdam(m, AdamConfig{})
	assert.ErrorIs(t, a.Update(), ErrRegistryMisaligned)
	assert.Equal(t, []float64{1, 2}, m.params[0].Data())

	m = &fakeModel{params: []*tensor.Tensor{vec(1)}, grads: []*tensor.Tensor{vec(1)}}
	a = NewAdam(m, AdamConfig{})
	require.NoError(t, a.Update())
	m.params = append(m.params, vec(3))
	m.grads = append(m.grads, vec(3))
	assert.ErrorIs(t, a.Update(), ErrRegistryMisaligned)
}

func TestAdam_ZeroGradKeepsMoments(t *testing.T) {
	m := &fakeModel{params: []*tensor.Tensor{vec(1)}, grads: []*tensor.Tensor{vec(2)}}
	a := NewAdam(m, AdamConfig{})
	require.NoError(t, a.Update())
	a.ZeroGrad()

	assert.Equal(t, 0.0, m.grads[0].Data()[0])
	assert.NotZero(t, a.State().M[0].Data()[0])
}

func TestAdam_StateRoundTrip(t *testing.T) {
	m := &fakeModel{params: []*tensor.Tensor{vec(1, 2)}, grads: []*tensor.Tensor{vec(0.3, -0.1)}}
	a := NewAdam(m, AdamConfig{LR: 0.02, Beta1: 0.8})
	require.NoError(t, a.Update())
	require.NoError(t, a.Update())
	s := a.State()

	// The snapshot is a copy.
	s.M[0].Data()[0] = 99
	assert.NotEqual(t, 99.0, a.State().M[0].Data()[0])
	s = a.State()

	m2 := &fakeModel{params: []*tensor.Tensor{m.params[0].Clone()}, grads: []*tensor.Tensor{m.grads[0].Clone()}}
	b := NewAdam(m2, AdamConfig{})
	require.NoError(t, b.LoadState(s))
	assert.Equal(t, 0.02, b.LR())
	assert.Equal(t, 2, b.Iter())

	require.NoError(t, a.Update())
	require.NoError(t, b.Update())
	assert.Equal(t, m.params[0].Data(), m2.params[0].Data())

	s.M = s.M[:0]
	assert.ErrorIs(t, b.LoadState(s), ErrRegistryMisaligned)
}

func TestAdam_LoadStateKeepsZeroHyperparameters(t *testing.T) {
	m := &fakeModel{params: []*tensor.Tensor{vec(1)}, grads: []*tensor.Tensor{vec(0.5)}}
	a := NewAdam(m, AdamConfig{})
	require.NoError(t, a.LoadState(State{LR: 0.1, Beta1: 0, Beta2: 0, Eps: 0}))

	s := a.State()
	assert.Zero(t, s.Beta1)
	assert.Zero(t, s.Beta2)
	assert.Zero(t, s.Eps)

	// With both betas and eps at zero the step is lr * sign(g).
	require.NoError(t, a.Update())
	assert.InDelta(t, 0.9, m.params[0].Data()[0], 1e-12)
}

func TestAdam_LoadStateRejectsOutOfRange(t *testing.T) {
	a := NewAdam(&fakeModel{}, AdamConfig{})
	tests := []struct {
		name string
		s    State
	}{
		{"zero lr", State{LR: 0, Beta1: 0.9, Beta2: 0.999}},
		{"beta1 one", State{LR: 0.1, Beta1: 1, Beta2: 0.999}},
		{"negative beta2", State{LR: 0.1, Beta1: 0.9, Beta2: -0.1}},
		{"negative eps", State{LR: 0.1, Beta1: 0.9, Beta2: 0.999, Eps: -1}},
		{"negative iter", State{LR: 0.1, Beta1: 0.9, Beta2: 0.999, Iter: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, a.LoadState(tt.s), ErrInvalidState)
		})
	}
	assert.Equal(t, DefaultBeta1, a.State().Beta1, "rejected state is not applied")
}

func TestAdam_SetLR(t *testing.T) {
	a := NewAdam(&fakeModel{}, AdamConfig{})
	a.SetLR(0.5)
	assert.Equal(t, 0.5, a.LR())
	var _ Optimizer = a
}

// A two-layer network on a fixed separable batch must keep lowering its
// loss once training is underway.
func TestAdam_TrainsSmallNetwork(t *testing.T) {
	winit, err := nn.ParseInit(nn.InitXavier)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(0))
	l1, err := nn.NewAffine(4, 3, winit, rng, tensor.CPU)
	require.NoError(t, err)
	l2, err := nn.NewAffine(3, 2, winit, rng, tensor.CPU)
	require.NoError(t, err)

	// Positive weights and inputs keep every hidden unit active.
	copy(l1.Weight().Data(), []float64{
		0.5, 0.3, 0.4,
		0.2, 0.6, 0.3,
		0.4, 0.2, 0.5,
		0.3, 0.5, 0.2,
	})
	copy(l2.Weight().Data(), []float64{
		0.1, -0.1,
		-0.2, 0.2,
		0.15, 0.05,
	})

	model, err := nn.Compose(tensor.CPU, l1, nn.NewReLU(tensor.CPU), l2)
	require.NoError(t, err)

	x := tensor.New([]float64{
		1.0, 0.1, 0.9, 0.2,
		0.9, 0.2, 1.0, 0.1,
		0.1, 1.0, 0.2, 0.9,
		0.2, 0.9, 0.1, 1.0,
	}, tensor.Shape{4, 4}, tensor.CPU)
	labels := []int{0, 0, 1, 1}

	opt := NewAdam(model, AdamConfig{LR: 0.01})
	losses := make([]float64, 0, 50)
	for i := 0; i < 50; i++ {
		logits, err := model.Forward(x)
		require.NoError(t, err)
		loss, err := model.Loss(logits, labels)
		require.NoError(t, err)
		losses = append(losses, loss)

		_, err = model.Backward()
		require.NoError(t, err)
		require.NoError(t, opt.Update())
		opt.ZeroGrad()
	}

	for i := 41; i < 50; i++ {
		assert.Less(t, losses[i], losses[i-1], "iteration %d", i)
	}
	assert.Less(t, losses[49], losses[0])
}
