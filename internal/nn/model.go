package nn

import (
	"fmt"
	"math/rand"

	"github.com/neolearn/neolearn/internal/tensor"
)

// RegistryEntry locates one trainable tensor: Params()[Slot] of layer Layer.
type RegistryEntry struct {
	Layer int
	Slot  int
}

// Model is an ordered list of layers terminated by SoftmaxWithLoss.
//
// The model owns the parameter registry: a fixed, ordered list of every
// trainable tensor, built once at construction by walking the layers in
// order. Grads() holds one accumulator per registry entry, aligned
// index-for-index with Params(). Backward adds each layer's returned
// gradients into those accumulators; ZeroGrad resets them. Gradients
// accumulate across Backward calls until ZeroGrad.
//
// Example:
//
//	m, _ := nn.NewModel(cfg, tensor.CPU, rand.New(rand.NewSource(0)))
//	logits, _ := m.Forward(x)
//	loss, _ := m.Loss(logits, labels)
//	m.Backward()
//	opt.Update()
//	m.ZeroGrad()
type Model struct {
	cfg      ModelConfig
	device   tensor.Device
	layers   []Layer
	loss     *SoftmaxWithLoss
	registry []RegistryEntry
	grads    []*tensor.Tensor
}

// NewModel builds the architecture described by cfg on dev, drawing
// initial weights from rng.
func NewModel(cfg ModelConfig, dev tensor.Device, rng *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	winit, _ := ParseInit(cfg.Init)

	var layers []Layer
	var err error
	switch cfg.Kind {
	case KindLinear:
		layers, err = linearLayers(cfg, winit, rng, dev)
	case KindConv:
		layers, err = convLayers(cfg, winit, rng, dev)
	}
	if err != nil {
		return nil, err
	}

	m := compose(dev, layers)
	m.cfg = cfg.Clone()
	return m, nil
}

// Compose builds a model from explicit layers. Every layer parameter must
// live on dev.
func Compose(dev tensor.Device, layers ...Layer) (*Model, error) {
	for i, l := range layers {
		for _, p := range l.Params() {
			if p.Device() != dev {
				return nil, fmt.Errorf("%w: layer %d (%s) parameter on %s, model on %s",
					ErrDeviceMismatch, i, l.Name(), p.Device(), dev)
			}
		}
	}
	return compose(dev, layers), nil
}

func compose(dev tensor.Device, layers []Layer) *Model {
	m := &Model{
		device: dev,
		layers: layers,
		loss:   NewSoftmaxWithLoss(),
	}
	for i, l := range layers {
		if !l.AcquireGrad() {
			continue
		}
		for slot, p := range l.Params() {
			m.registry = append(m.registry, RegistryEntry{Layer: i, Slot: slot})
			m.grads = append(m.grads, tensor.ZerosLike(p))
		}
	}
	return m
}

func linearLayers(cfg ModelConfig, winit Init, rng *rand.Rand, dev tensor.Device) ([]Layer, error) {
	in := tensor.Shape(cfg.InputShape).NumElements()
	var layers []Layer
	for _, h := range cfg.Hidden {
		a, err := NewAffine(in, h, winit, rng, dev)
		if err != nil {
			return nil, err
		}
		layers = append(layers, a, NewReLU(dev))
		in = h
	}
	head, err := NewAffine(in, cfg.Classes, winit, rng, dev)
	if err != nil {
		return nil, err
	}
	return append(layers, head), nil
}

func convLayers(cfg ModelConfig, winit Init, rng *rand.Rand, dev tensor.Device) ([]Layer, error) {
	c, h, w := cfg.InputShape[0], cfg.InputShape[1], cfg.InputShape[2]
	var layers []Layer
	for i, f := range cfg.Hidden {
		conv, err := NewConv2D(Conv2DConfig{
			InChannels:  c,
			OutChannels: f,
			Height:      h,
			Width:       w,
			Kernel:      cfg.Kernel,
			Stride:      cfg.Stride,
			Padding:     cfg.Padding,
		}, winit, rng, dev)
		if err != nil {
			return nil, fmt.Errorf("conv layer %d: %w", i, err)
		}
		layers = append(layers, conv, NewReLU(dev))
		out := conv.OutputShape(1)
		c, h, w = out[1], out[2], out[3]
	}
	head, err := NewAffine(c*h*w, cfg.Classes, winit, rng, dev)
	if err != nil {
		return nil, err
	}
	return append(layers, head), nil
}

// Forward runs x through every layer and returns the logits.
func (m *Model) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Device() != m.device {
		return nil, fmt.Errorf("%w: model on %s got input on %s", ErrDeviceMismatch, m.device, x.Device())
	}
	y := x
	for i, l := range m.layers {
		var err error
		if y, err = l.Forward(y); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Name(), err)
		}
	}
	return y, nil
}

// Loss computes the mean softmax cross-entropy of logits against labels.
func (m *Model) Loss(logits *tensor.Tensor, labels []int) (float64, error) {
	return m.loss.Forward(logits, labels)
}

// Backward propagates from the loss back through every layer and adds the
// parameter gradients into the registry accumulators. It returns the
// gradient with respect to the model input.
func (m *Model) Backward() (*tensor.Tensor, error) {
	dx, err := m.loss.Backward()
	if err != nil {
		return nil, err
	}
	pending := make([][]*tensor.Tensor, len(m.layers))
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		if dx, pending[i], err = l.Backward(dx); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Name(), err)
		}
	}
	if err := m.harvest(pending); err != nil {
		return nil, err
	}
	return dx, nil
}

// harvest adds per-layer gradients into the aligned accumulators.
func (m *Model) harvest(pending [][]*tensor.Tensor) error {
	for k, e := range m.registry {
		g := pending[e.Layer]
		if e.Slot >= len(g) {
			return fmt.Errorf("%w: layer %d (%s) returned %d gradients, registry expects slot %d",
				ErrShapeMismatch, e.Layer, m.layers[e.Layer].Name(), len(g), e.Slot)
		}
		if !g[e.Slot].Shape().Equal(m.grads[k].Shape()) {
			return fmt.Errorf("%w: gradient %d is %v, parameter is %v",
				ErrShapeMismatch, k, g[e.Slot].Shape(), m.grads[k].Shape())
		}
		tensor.AddInPlace(m.grads[k], g[e.Slot])
	}
	return nil
}

// Params returns the trainable tensors in registry order. The list is
// re-derived from the layers on every call.
func (m *Model) Params() []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(m.registry))
	for k, e := range m.registry {
		out[k] = m.layers[e.Layer].Params()[e.Slot]
	}
	return out
}

// Grads returns the gradient accumulators, aligned with Params.
func (m *Model) Grads() []*tensor.Tensor {
	return append([]*tensor.Tensor(nil), m.grads...)
}

// ZeroGrad resets every gradient accumulator to zero.
func (m *Model) ZeroGrad() {
	for _, g := range m.grads {
		g.Zero()
	}
}

// Registry returns a copy of the registry entries.
func (m *Model) Registry() []RegistryEntry {
	return append([]RegistryEntry(nil), m.registry...)
}

// Layers returns the model's layers in forward order.
func (m *Model) Layers() []Layer {
	return append([]Layer(nil), m.layers...)
}

// Predict returns the argmax class for every row of x.
func (m *Model) Predict(x *tensor.Tensor) ([]int, error) {
	logits, err := m.Forward(x)
	if err != nil {
		return nil, err
	}
	return tensor.ArgmaxRows(logits), nil
}

// CountCorrect returns how many rows of logits have their argmax equal to
// the label. Rows without a label count as wrong.
func CountCorrect(logits *tensor.Tensor, labels []int) int {
	hit := 0
	for i, p := range tensor.ArgmaxRows(logits) {
		if i < len(labels) && p == labels[i] {
			hit++
		}
	}
	return hit
}

// Accuracy returns the fraction of rows of logits whose argmax equals the label.
func Accuracy(logits *tensor.Tensor, labels []int) float64 {
	rows := logits.Dim(0)
	if rows == 0 {
		return 0
	}
	return float64(CountCorrect(logits, labels)) / float64(rows)
}

// NumParams returns the total number of trainable scalars.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		n += p.NumElements()
	}
	return n
}

// Config returns the architecture config. Models built with Compose
// return the zero value.
func (m *Model) Config() ModelConfig { return m.cfg.Clone() }

// Device returns the device the model lives on.
func (m *Model) Device() tensor.Device { return m.device }
