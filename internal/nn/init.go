package nn

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"github.com/neolearn/neolearn/internal/tensor"
)

// Init selects how weight tensors are initialized.
type Init struct {
	scheme string
	std    float64
}

// Supported initialization schemes.
const (
	InitXavier = "xavier"
	InitHe     = "he"
)

// ParseInit parses "xavier", "he", or a positive decimal standard deviation.
func ParseInit(s string) (Init, error) {
	switch s {
	case InitXavier, InitHe:
		return Init{scheme: s}, nil
	}
	std, err := strconv.ParseFloat(s, 64)
	if err != nil || std <= 0 || math.IsInf(std, 0) {
		return Init{}, fmt.Errorf("%w: weight init %q (want %q, %q or a positive std)", ErrInvalidConfig, s, InitXavier, InitHe)
	}
	return Init{std: std}, nil
}

// String returns the textual form accepted by ParseInit.
func (i Init) String() string {
	if i.scheme != "" {
		return i.scheme
	}
	return strconv.FormatFloat(i.std, 'g', -1, 64)
}

// Weights creates a weight tensor for a layer with the given fan-in and fan-out.
//
//   - xavier: Glorot uniform, U(-sqrt(6/(fan_in+fan_out)), sqrt(6/(fan_in+fan_out)))
//   - he: N(0, 2/fan_in)
//   - std: N(0, std²)
func (i Init) Weights(shape tensor.Shape, fanIn, fanOut int, rng *rand.Rand, dev tensor.Device) *tensor.Tensor {
	switch i.scheme {
	case InitXavier:
		return tensor.Uniform(shape, math.Sqrt(6.0/float64(fanIn+fanOut)), rng, dev)
	case InitHe:
		return tensor.Normal(shape, math.Sqrt(2.0/float64(fanIn)), rng, dev)
	default:
		return tensor.Normal(shape, i.std, rng, dev)
	}
}
