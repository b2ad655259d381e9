// Package tensor provides the dense float64 tensor used by the neolearn layers.
//
// A Tensor owns a row-major data slice, a shape and a device tag. Matrix
// products go through gonum's mat package; reductions and in-place
// accumulation go through gonum's floats package.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major float64 array tagged with a device.
//
// Example:
//
//	x := tensor.Zeros(tensor.Shape{32, 784}, tensor.CPU)
//	w := tensor.Zeros(tensor.Shape{784, 128}, tensor.CPU)
//	y := tensor.MatMul(x, w) // [32, 128]
type Tensor struct {
	shape  Shape
	data   []float64
	device Device
}

// New wraps data without copying it.
// Panics if len(data) does not match the shape.
func New(data []float64, shape Shape, dev Device) *Tensor {
	if shape.NumElements() != len(data) {
		panic(fmt.Sprintf("tensor: shape %v requires %d elements, got %d", shape, shape.NumElements(), len(data)))
	}
	return &Tensor{shape: shape.Clone(), data: data, device: dev}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float64, shape Shape, dev Device) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return &Tensor{shape: shape.Clone(), data: buf, device: dev}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Device returns the device the tensor is tagged with.
func (t *Tensor) Device() Device {
	return t.device
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying slice (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	off := 0
	strides := t.shape.Strides()
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		off += idx * strides[i]
	}
	return off
}

// Reshape returns a view with a new shape sharing the same data.
// Panics if the element count changes.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape := Shape(dims)
	if shape.NumElements() != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v into %v", t.shape, shape))
	}
	return &Tensor{shape: shape.Clone(), data: t.data, device: t.device}
}

// Flatten2D returns a (shape[0], rest) view of the tensor.
func (t *Tensor) Flatten2D() *Tensor {
	if len(t.shape) == 0 {
		return t.Reshape(1, 1)
	}
	return t.Reshape(t.shape[0], len(t.data)/t.shape[0])
}

// Clone creates a deep copy of the tensor on the same device.
func (t *Tensor) Clone() *Tensor {
	buf := make([]float64, len(t.data))
	copy(buf, t.data)
	return &Tensor{shape: t.shape.Clone(), data: buf, device: t.device}
}

// OnDevice returns a deep copy tagged with dev.
func (t *Tensor) OnDevice(dev Device) *Tensor {
	c := t.Clone()
	c.device = dev
	return c
}

// CopyFrom overwrites t's data with src's data.
// Shapes must hold the same number of elements.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if len(src.data) != len(t.data) {
		return fmt.Errorf("tensor: copy from %v into %v", src.shape, t.shape)
	}
	copy(t.data, src.data)
	return nil
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Zero sets every element to zero.
func (t *Tensor) Zero() {
	clear(t.data)
}

// Equal reports whether both tensors have the same shape and bit-identical data.
func (t *Tensor) Equal(other *Tensor) bool {
	return t.shape.Equal(other.shape) && floats.Equal(t.data, other.data)
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float64]%v on %s", t.shape, t.device)
}
