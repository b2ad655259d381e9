package nn

import (
	"fmt"
	"math/rand"

	"github.com/neolearn/neolearn/internal/tensor"
)

// Conv2DConfig describes a 2D convolution over a fixed input geometry.
type Conv2DConfig struct {
	InChannels  int
	OutChannels int
	Height      int // input height
	Width       int // input width
	Kernel      int // square kernel size
	Stride      int
	Padding     int
}

// Conv2D implements 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Output shape: [batch, out_channels, out_height, out_width]
//
// where:
//
//	out_height = (height + 2*padding - kernel) / stride + 1
//	out_width  = (width + 2*padding - kernel) / stride + 1
//
// The division must be exact; NewConv2D rejects geometries where the
// kernel would not tile the padded input.
//
// Forward:
//
//	col = im2col(x)                      [N*OH*OW, C*K*K]
//	out = col @ Wcolᵀ + b                [N*OH*OW, F]  -> permuted to [N, F, OH, OW]
//
// Backward:
//
//	db = Σ_rows dout
//	dW = doutᵀ @ col                     reshaped to [F, C, K, K]
//	dx = col2im(dout @ Wcol)
type Conv2D struct {
	cfg        Conv2DConfig
	outH, outW int
	weight     *tensor.Tensor // [F, C, K, K]
	bias       *tensor.Tensor // [F]
	device     tensor.Device

	col   *tensor.Tensor // im2col cache
	batch int
}

// NewConv2D creates a convolution layer.
// Weights follow init with fan-in C*K*K and fan-out F*K*K. Biases start at zero.
func NewConv2D(cfg Conv2DConfig, winit Init, rng *rand.Rand, dev tensor.Device) (*Conv2D, error) {
	if cfg.InChannels < 1 || cfg.OutChannels < 1 || cfg.Kernel < 1 || cfg.Stride < 1 ||
		cfg.Padding < 0 || cfg.Height < 1 || cfg.Width < 1 {
		return nil, fmt.Errorf("%w: conv2d %+v", ErrInvalidConfig, cfg)
	}
	outH, okH := tensor.ConvOutSize(cfg.Height, cfg.Kernel, cfg.Stride, cfg.Padding)
	outW, okW := tensor.ConvOutSize(cfg.Width, cfg.Kernel, cfg.Stride, cfg.Padding)
	if !okH || !okW || outH < 1 || outW < 1 {
		return nil, fmt.Errorf("%w: conv2d kernel %d stride %d padding %d does not tile %dx%d input",
			ErrInvalidConfig, cfg.Kernel, cfg.Stride, cfg.Padding, cfg.Height, cfg.Width)
	}

	k2 := cfg.Kernel * cfg.Kernel
	return &Conv2D{
		cfg:  cfg,
		outH: outH,
		outW: outW,
		weight: winit.Weights(
			tensor.Shape{cfg.OutChannels, cfg.InChannels, cfg.Kernel, cfg.Kernel},
			cfg.InChannels*k2, cfg.OutChannels*k2, rng, dev),
		bias:   tensor.Zeros(tensor.Shape{cfg.OutChannels}, dev),
		device: dev,
	}, nil
}

// Name implements Layer.
func (c *Conv2D) Name() string { return "conv2d" }

// Forward performs the convolution.
func (c *Conv2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkDevice(c, x, c.device); err != nil {
		return nil, err
	}
	s := x.Shape()
	if len(s) != 4 || s[1] != c.cfg.InChannels || s[2] != c.cfg.Height || s[3] != c.cfg.Width {
		return nil, fmt.Errorf("%w: conv2d expects [N, %d, %d, %d], got %v",
			ErrShapeMismatch, c.cfg.InChannels, c.cfg.Height, c.cfg.Width, s)
	}

	n := s[0]
	col := tensor.Im2Col(x, c.cfg.Kernel, c.cfg.Kernel, c.cfg.Stride, c.cfg.Padding)
	out := tensor.MatMulTransB(col, c.weightCol())
	tensor.AddRowVector(out, c.bias)

	c.col = col
	c.batch = n
	return c.toNCHW(out, n), nil
}

// Backward computes input, weight and bias gradients.
func (c *Conv2D) Backward(dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	if c.col == nil {
		return nil, nil, fmt.Errorf("%w: conv2d", ErrNoForwardCache)
	}
	if err := checkDevice(c, dy, c.device); err != nil {
		return nil, nil, err
	}
	want := c.OutputShape(c.batch)
	if !dy.Shape().Equal(want) {
		return nil, nil, fmt.Errorf("%w: conv2d upstream gradient %v, want %v", ErrShapeMismatch, dy.Shape(), want)
	}

	dout := c.fromNCHW(dy)
	db := tensor.SumRows(dout)
	dW := tensor.MatMulTransA(dout, c.col).Reshape(c.weight.Shape()...)
	dcol := tensor.MatMul(dout, c.weightCol())
	dx := tensor.Col2Im(dcol,
		tensor.Shape{c.batch, c.cfg.InChannels, c.cfg.Height, c.cfg.Width},
		c.cfg.Kernel, c.cfg.Kernel, c.cfg.Stride, c.cfg.Padding)

	c.col = nil
	return dx, []*tensor.Tensor{dW, db}, nil
}

// weightCol views W as [F, C*K*K].
func (c *Conv2D) weightCol() *tensor.Tensor {
	return c.weight.Reshape(c.cfg.OutChannels, c.cfg.InChannels*c.cfg.Kernel*c.cfg.Kernel)
}

// toNCHW permutes [N*OH*OW, F] rows into [N, F, OH, OW].
func (c *Conv2D) toNCHW(out *tensor.Tensor, n int) *tensor.Tensor {
	f, p := c.cfg.OutChannels, c.outH*c.outW
	src := out.Data()
	dst := make([]float64, len(src))
	for b := 0; b < n; b++ {
		for q := 0; q < p; q++ {
			row := src[(b*p+q)*f : (b*p+q+1)*f]
			for ch, v := range row {
				dst[(b*f+ch)*p+q] = v
			}
		}
	}
	return tensor.New(dst, c.OutputShape(n), c.device)
}

// fromNCHW is the inverse permutation of toNCHW.
func (c *Conv2D) fromNCHW(dy *tensor.Tensor) *tensor.Tensor {
	n, f, p := c.batch, c.cfg.OutChannels, c.outH*c.outW
	src := dy.Data()
	dst := make([]float64, len(src))
	for b := 0; b < n; b++ {
		for ch := 0; ch < f; ch++ {
			for q := 0; q < p; q++ {
				dst[(b*p+q)*f+ch] = src[(b*f+ch)*p+q]
			}
		}
	}
	return tensor.New(dst, tensor.Shape{n * p, f}, c.device)
}

// Params returns [W, b].
func (c *Conv2D) Params() []*tensor.Tensor {
	return []*tensor.Tensor{c.weight, c.bias}
}

// AcquireGrad implements Layer.
func (c *Conv2D) AcquireGrad() bool { return true }

// Weight returns the kernel tensor [F, C, K, K].
func (c *Conv2D) Weight() *tensor.Tensor { return c.weight }

// Bias returns the bias vector [F].
func (c *Conv2D) Bias() *tensor.Tensor { return c.bias }

// OutputShape returns [n, F, OH, OW].
func (c *Conv2D) OutputShape(n int) tensor.Shape {
	return tensor.Shape{n, c.cfg.OutChannels, c.outH, c.outW}
}

// Config returns the layer geometry.
func (c *Conv2D) Config() Conv2DConfig { return c.cfg }
