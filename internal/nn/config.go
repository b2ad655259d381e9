package nn

import (
	"fmt"
)

// Model kinds understood by NewModel.
const (
	KindLinear = "linear"
	KindConv   = "conv"
)

// ModelConfig describes a model architecture. It is stored verbatim in
// checkpoints, so every field carries json and yaml tags.
//
// A linear model is [Affine, ReLU] per hidden width followed by a final
// Affine to Classes. A conv model is [Conv2D, ReLU] per hidden width
// (used as the channel count) followed by a final Affine to Classes.
type ModelConfig struct {
	Kind       string `json:"kind" yaml:"kind"`
	InputShape []int  `json:"input_shape" yaml:"input_shape"` // per-sample shape, e.g. [784] or [1, 28, 28]
	Hidden     []int  `json:"hidden" yaml:"hidden"`
	Classes    int    `json:"classes" yaml:"classes"`
	Init       string `json:"init" yaml:"init"`

	// Conv only.
	Kernel  int `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Stride  int `json:"stride,omitempty" yaml:"stride,omitempty"`
	Padding int `json:"padding,omitempty" yaml:"padding,omitempty"`
}

// Validate checks the configuration without building layers. Conv
// geometry is checked layer by layer in NewModel.
func (c ModelConfig) Validate() error {
	if c.Kind != KindLinear && c.Kind != KindConv {
		return fmt.Errorf("%w: model kind %q", ErrInvalidConfig, c.Kind)
	}
	if len(c.InputShape) == 0 {
		return fmt.Errorf("%w: empty input shape", ErrInvalidConfig)
	}
	for _, d := range c.InputShape {
		if d < 1 {
			return fmt.Errorf("%w: input shape %v", ErrInvalidConfig, c.InputShape)
		}
	}
	for _, h := range c.Hidden {
		if h < 1 {
			return fmt.Errorf("%w: hidden sizes %v", ErrInvalidConfig, c.Hidden)
		}
	}
	if c.Classes < 1 {
		return fmt.Errorf("%w: classes %d", ErrInvalidConfig, c.Classes)
	}
	if _, err := ParseInit(c.Init); err != nil {
		return err
	}
	if c.Kind == KindConv {
		if len(c.InputShape) != 3 {
			return fmt.Errorf("%w: conv model needs [C, H, W] input shape, got %v", ErrInvalidConfig, c.InputShape)
		}
		if c.Kernel < 1 || c.Stride < 1 || c.Padding < 0 {
			return fmt.Errorf("%w: kernel %d stride %d padding %d", ErrInvalidConfig, c.Kernel, c.Stride, c.Padding)
		}
	}
	return nil
}

// Clone returns a deep copy of the config.
func (c ModelConfig) Clone() ModelConfig {
	c.InputShape = append([]int(nil), c.InputShape...)
	c.Hidden = append([]int(nil), c.Hidden...)
	return c
}
