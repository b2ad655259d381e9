package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dense returns a gonum view of a 2D tensor sharing its storage.
func (t *Tensor) dense() *mat.Dense {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: expected 2D tensor, got shape %v", t.shape))
	}
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

func sameDevice(op string, a, b *Tensor) {
	if a.device != b.device {
		panic(fmt.Sprintf("tensor: %s across devices %s and %s", op, a.device, b.device))
	}
}

// MatMul computes a @ b for 2D tensors.
//
//	[M, K] @ [K, N] -> [M, N]
func MatMul(a, b *Tensor) *Tensor {
	sameDevice("matmul", a, b)
	if len(a.shape) != 2 || len(b.shape) != 2 || a.shape[1] != b.shape[0] {
		panic(fmt.Sprintf("tensor: matmul shape mismatch %v @ %v", a.shape, b.shape))
	}
	out := Zeros(Shape{a.shape[0], b.shape[1]}, a.device)
	out.dense().Mul(a.dense(), b.dense())
	return out
}

// MatMulTransA computes aᵀ @ b without materializing the transpose.
//
//	[K, M]ᵀ @ [K, N] -> [M, N]
func MatMulTransA(a, b *Tensor) *Tensor {
	sameDevice("matmul", a, b)
	if len(a.shape) != 2 || len(b.shape) != 2 || a.shape[0] != b.shape[0] {
		panic(fmt.Sprintf("tensor: matmul shape mismatch %vᵀ @ %v", a.shape, b.shape))
	}
	out := Zeros(Shape{a.shape[1], b.shape[1]}, a.device)
	out.dense().Mul(a.dense().T(), b.dense())
	return out
}

// MatMulTransB computes a @ bᵀ without materializing the transpose.
//
//	[M, K] @ [N, K]ᵀ -> [M, N]
func MatMulTransB(a, b *Tensor) *Tensor {
	sameDevice("matmul", a, b)
	if len(a.shape) != 2 || len(b.shape) != 2 || a.shape[1] != b.shape[1] {
		panic(fmt.Sprintf("tensor: matmul shape mismatch %v @ %vᵀ", a.shape, b.shape))
	}
	out := Zeros(Shape{a.shape[0], b.shape[0]}, a.device)
	out.dense().Mul(a.dense(), b.dense().T())
	return out
}

// AddRowVector adds v to every row of x in place and returns x.
//
//	[N, M] + [M] -> [N, M]
func AddRowVector(x, v *Tensor) *Tensor {
	sameDevice("add", x, v)
	if len(x.shape) != 2 || v.NumElements() != x.shape[1] {
		panic(fmt.Sprintf("tensor: cannot broadcast %v over rows of %v", v.shape, x.shape))
	}
	cols := x.shape[1]
	for r := 0; r < x.shape[0]; r++ {
		floats.Add(x.data[r*cols:(r+1)*cols], v.data)
	}
	return x
}

// SumRows reduces a 2D tensor over its first axis (column sums).
//
//	[N, M] -> [M]
func SumRows(x *Tensor) *Tensor {
	if len(x.shape) != 2 {
		panic(fmt.Sprintf("tensor: SumRows expects 2D, got %v", x.shape))
	}
	cols := x.shape[1]
	out := Zeros(Shape{cols}, x.device)
	for r := 0; r < x.shape[0]; r++ {
		floats.Add(out.data, x.data[r*cols:(r+1)*cols])
	}
	return out
}

// AddInPlace accumulates src into dst elementwise.
func AddInPlace(dst, src *Tensor) {
	sameDevice("add", dst, src)
	if len(dst.data) != len(src.data) {
		panic(fmt.Sprintf("tensor: add shape mismatch %v += %v", dst.shape, src.shape))
	}
	floats.Add(dst.data, src.data)
}

// Sum returns the sum of all elements.
func Sum(t *Tensor) float64 {
	return floats.Sum(t.data)
}

// ArgmaxRows returns the index of the largest element in each row of a 2D tensor.
func ArgmaxRows(x *Tensor) []int {
	if len(x.shape) != 2 {
		panic(fmt.Sprintf("tensor: ArgmaxRows expects 2D, got %v", x.shape))
	}
	cols := x.shape[1]
	out := make([]int, x.shape[0])
	for r := range out {
		out[r] = floats.MaxIdx(x.data[r*cols : (r+1)*cols])
	}
	return out
}

// RowMax returns the maximum of each row of a 2D tensor.
func RowMax(x *Tensor) []float64 {
	cols := x.shape[1]
	out := make([]float64, x.shape[0])
	for r := range out {
		out[r] = floats.Max(x.data[r*cols : (r+1)*cols])
	}
	return out
}
