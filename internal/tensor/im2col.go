package tensor

import (
	"fmt"

	"github.com/neolearn/neolearn/internal/parallel"
)

// kernelWorkers splits im2col/col2im over the batch axis. Each sample owns
// a disjoint block of rows and of the image, so results do not depend on
// scheduling.
var kernelWorkers = parallel.DefaultConfig()

// ConvOutSize returns floor((in + 2*pad - kernel)/stride) + 1 and whether the
// division was exact and the result positive.
func ConvOutSize(in, kernel, stride, pad int) (int, bool) {
	span := in + 2*pad - kernel
	if stride <= 0 || span < 0 {
		return 0, false
	}
	return span/stride + 1, span%stride == 0
}

// Im2Col transforms a [N, C, H, W] tensor into a column matrix.
//
// Output: [N * H_out * W_out, C * K_h * K_w]
//
// Each row corresponds to one output position and holds the flattened input
// patch under the kernel; positions that fall into the padding read as zero.
func Im2Col(x *Tensor, kh, kw, stride, pad int) *Tensor {
	if len(x.shape) != 4 {
		panic(fmt.Sprintf("im2col: input must be 4D [N,C,H,W], got %v", x.shape))
	}
	g := newPatchGeom(x.shape, kh, kw, stride, pad)
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("im2col: invalid output dimensions: out_h=%d, out_w=%d", g.hOut, g.wOut))
	}

	col := Zeros(Shape{g.n * g.hOut * g.wOut, g.colWidth()}, x.device)
	parallel.For(g.n, kernelWorkers, func(lo, hi int) {
		for b := lo; b < hi; b++ {
			g.visit(b, func(src, dst int) { col.data[dst] = x.data[src] })
		}
	})
	return col
}

// Col2Im is the adjoint of Im2Col: it scatters a column matrix back into a
// [N, C, H, W] tensor, summing contributions of overlapping patches.
// Contributions that land in the padding are dropped.
func Col2Im(col *Tensor, shape Shape, kh, kw, stride, pad int) *Tensor {
	if len(shape) != 4 {
		panic(fmt.Sprintf("col2im: target must be 4D [N,C,H,W], got %v", shape))
	}
	g := newPatchGeom(shape, kh, kw, stride, pad)
	if !col.shape.Equal(Shape{g.n * g.hOut * g.wOut, g.colWidth()}) {
		panic(fmt.Sprintf("col2im: column shape %v does not match target %v", col.shape, shape))
	}

	out := Zeros(shape, col.device)
	parallel.For(g.n, kernelWorkers, func(lo, hi int) {
		for b := lo; b < hi; b++ {
			g.visit(b, func(img, c int) { out.data[img] += col.data[c] })
		}
	})
	return out
}

type patchGeom struct {
	n, c, h, w  int
	kh, kw      int
	stride, pad int
	hOut, wOut  int
}

func newPatchGeom(shape Shape, kh, kw, stride, pad int) patchGeom {
	g := patchGeom{
		n: shape[0], c: shape[1], h: shape[2], w: shape[3],
		kh: kh, kw: kw, stride: stride, pad: pad,
	}
	g.hOut, _ = ConvOutSize(g.h, kh, stride, pad)
	g.wOut, _ = ConvOutSize(g.w, kw, stride, pad)
	return g
}

func (g patchGeom) colWidth() int { return g.c * g.kh * g.kw }

// visit calls f(imageIndex, columnIndex) for every in-bounds kernel tap of
// sample b, in row-major column order.
func (g patchGeom) visit(b int, f func(img, col int)) {
	width := g.colWidth()
	row := b * g.hOut * g.wOut
	for oh := 0; oh < g.hOut; oh++ {
		for ow := 0; ow < g.wOut; ow++ {
			hStart := oh*g.stride - g.pad
			wStart := ow*g.stride - g.pad
			idx := row * width
			for ch := 0; ch < g.c; ch++ {
				for i := 0; i < g.kh; i++ {
					for j := 0; j < g.kw; j++ {
						hh, ww := hStart+i, wStart+j
						if hh >= 0 && hh < g.h && ww >= 0 && ww < g.w {
							f(((b*g.c+ch)*g.h+hh)*g.w+ww, idx)
						}
						idx++
					}
				}
			}
			row++
		}
	}
}
