package tensor

import (
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	t := tensor.Zeros(tensor.Shape{3, 4}, tensor.CPU)
func Zeros(shape Shape, dev Device) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(err)
	}
	return &Tensor{shape: shape.Clone(), data: make([]float64, shape.NumElements()), device: dev}
}

// ZerosLike creates a zero tensor with t's shape and device.
func ZerosLike(t *Tensor) *Tensor {
	return Zeros(t.shape, t.device)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float64, dev Device) *Tensor {
	t := Zeros(shape, dev)
	t.Fill(value)
	return t
}

// Uniform creates a tensor with values drawn from U(-bound, bound).
//
// The caller owns rng so runs are reproducible from a seed.
func Uniform(shape Shape, bound float64, rng *rand.Rand, dev Device) *Tensor {
	t := Zeros(shape, dev)
	for i := range t.data {
		t.data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return t
}

// Normal creates a tensor with values drawn from N(0, std²).
func Normal(shape Shape, std float64, rng *rand.Rand, dev Device) *Tensor {
	t := Zeros(shape, dev)
	for i := range t.data {
		t.data[i] = rng.NormFloat64() * std
	}
	return t
}
