package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice_CopiesData(t *testing.T) {
	src := []float64{1, 2, 3, 4, 5, 6}
	x, err := FromSlice(src, Shape{2, 3}, CPU)
	require.NoError(t, err)

	src[0] = 100
	assert.Equal(t, 1.0, x.At(0, 0))
	assert.Equal(t, 6.0, x.At(1, 2))
	assert.Equal(t, CPU, x.Device())
}

func TestFromSlice_ShapeMismatch(t *testing.T) {
	_, err := FromSlice([]float64{1, 2, 3}, Shape{2, 2}, CPU)
	assert.Error(t, err)

	_, err = FromSlice(nil, Shape{0, 2}, CPU)
	assert.Error(t, err)
}

func TestReshape_SharesStorage(t *testing.T) {
	x := Zeros(Shape{2, 3, 4}, CPU)
	v := x.Reshape(6, 4)
	v.Set(7, 5, 3)

	assert.Equal(t, 7.0, x.At(1, 2, 3))
	assert.Panics(t, func() { x.Reshape(5, 5) })
}

func TestOnDevice_Copies(t *testing.T) {
	x := Full(Shape{2}, 3, CPU)
	y := x.OnDevice(WebGPU)

	y.Data()[0] = 0
	assert.Equal(t, WebGPU, y.Device())
	assert.Equal(t, 3.0, x.Data()[0])
}

func TestMatMul(t *testing.T) {
	a, _ := FromSlice([]float64{1, 2, 3, 4, 5, 6}, Shape{2, 3}, CPU)
	b, _ := FromSlice([]float64{7, 8, 9, 10, 11, 12}, Shape{3, 2}, CPU)

	c := MatMul(a, b)
	assert.Equal(t, Shape{2, 2}, c.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, c.Data())
}

func TestMatMulTransposed(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := Normal(Shape{4, 3}, 1, rng, CPU)
	b := Normal(Shape{4, 5}, 1, rng, CPU)
	c := Normal(Shape{5, 3}, 1, rng, CPU)

	// aᵀ @ b computed explicitly.
	at := Zeros(Shape{3, 4}, CPU)
	for i := 0; i < 4; i++ {
		for j := 0; j < 3; j++ {
			at.Set(a.At(i, j), j, i)
		}
	}
	assert.InDeltaSlice(t, MatMul(at, b).Data(), MatMulTransA(a, b).Data(), 1e-12)

	// a @ cᵀ computed explicitly.
	ct := Zeros(Shape{3, 5}, CPU)
	for i := 0; i < 5; i++ {
		for j := 0; j < 3; j++ {
			ct.Set(c.At(i, j), j, i)
		}
	}
	assert.InDeltaSlice(t, MatMul(a, ct).Data(), MatMulTransB(a, c).Data(), 1e-12)
}

func TestMatMul_DeviceMismatchPanics(t *testing.T) {
	a := Zeros(Shape{2, 2}, CPU)
	b := Zeros(Shape{2, 2}, WebGPU)
	assert.Panics(t, func() { MatMul(a, b) })
}

func TestRowOps(t *testing.T) {
	x, _ := FromSlice([]float64{1, 5, 2, 7, 0, 3}, Shape{2, 3}, CPU)
	v, _ := FromSlice([]float64{10, 20, 30}, Shape{3}, CPU)

	assert.Equal(t, []float64{8, 5, 5}, SumRows(x).Data())
	assert.Equal(t, []int{1, 0}, ArgmaxRows(x))
	assert.Equal(t, []float64{5, 7}, RowMax(x))

	AddRowVector(x, v)
	assert.Equal(t, []float64{11, 25, 32, 17, 20, 33}, x.Data())
}

func TestConvOutSize(t *testing.T) {
	cases := []struct {
		in, k, stride, pad int
		want               int
		exact              bool
	}{
		{28, 5, 1, 0, 24, true},
		{28, 3, 1, 1, 28, true},
		{7, 3, 2, 0, 3, true},
		{8, 3, 2, 0, 3, false},
		{4, 5, 1, 0, 0, false},
		{5, 3, 2, 1, 3, true},
	}
	for _, tc := range cases {
		got, exact := ConvOutSize(tc.in, tc.k, tc.stride, tc.pad)
		assert.Equal(t, tc.exact, exact, "%+v", tc)
		if tc.exact {
			assert.Equal(t, tc.want, got, "%+v", tc)
		}
	}
}

func TestIm2Col_KnownPatch(t *testing.T) {
	// 1x1x3x3 input, 2x2 kernel, stride 1, no padding.
	x, _ := FromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, Shape{1, 1, 3, 3}, CPU)
	col := Im2Col(x, 2, 2, 1, 0)

	require.Equal(t, Shape{4, 4}, col.Shape())
	assert.Equal(t, []float64{
		1, 2, 4, 5,
		2, 3, 5, 6,
		4, 5, 7, 8,
		5, 6, 8, 9,
	}, col.Data())
}

func TestIm2Col_Padding(t *testing.T) {
	x := Full(Shape{1, 1, 2, 2}, 1, CPU)
	col := Im2Col(x, 3, 3, 1, 1)

	require.Equal(t, Shape{4, 9}, col.Shape())
	// Each 3x3 window over a padded 2x2 of ones sees exactly four ones.
	for r := 0; r < 4; r++ {
		sum := 0.0
		for c := 0; c < 9; c++ {
			sum += col.At(r, c)
		}
		assert.Equal(t, 4.0, sum)
	}
}

// <Im2Col(x), y> == <x, Col2Im(y)> for any x, y.
func TestCol2Im_IsAdjointOfIm2Col(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, cfg := range []struct{ k, stride, pad int }{{3, 1, 1}, {2, 2, 0}, {3, 2, 1}} {
		shape := Shape{2, 3, 5, 5}
		x := Normal(shape, 1, rng, CPU)
		col := Im2Col(x, cfg.k, cfg.k, cfg.stride, cfg.pad)
		y := Normal(col.Shape(), 1, rng, CPU)

		lhs := 0.0
		for i, v := range col.Data() {
			lhs += v * y.Data()[i]
		}
		back := Col2Im(y, shape, cfg.k, cfg.k, cfg.stride, cfg.pad)
		rhs := 0.0
		for i, v := range x.Data() {
			rhs += v * back.Data()[i]
		}
		assert.InDelta(t, lhs, rhs, 1e-9, "%+v", cfg)
	}
}
