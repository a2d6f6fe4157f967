package layers

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Steps is the number of displacements in 0, stride, 2*stride, ..., 2*maxDisp.
func Steps(maxDisp, stride int) int { return 2*maxDisp/stride + 1 }

// Correlation1D builds a horizontal cost volume between a and b.
//
// b is padded with 2*maxDisp zero columns on the left. Output channel k is the
// channel-wise dot product of a with the window of padded b that starts at column
// k*stride, i.e. a[.., w] · b[.., w - (2*maxDisp - k*stride)]. The last channel
// therefore compares each pixel with itself. There are Steps(maxDisp, stride)
// channels, and the spatial size is that of a.
func (b *Builder) Correlation1D(name string, x1, x2 *G.Node, maxDisp, stride int) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	if err := checkCorrelation(x1, maxDisp, stride); err != nil {
		b.err = errors.Wrap(err, name)
		return nil
	}
	if !x1.Shape().Eq(x2.Shape()) {
		b.err = errors.Errorf("%s: cannot correlate %v with %v", name, x1.Shape(), x2.Shape())
		return nil
	}
	width := x1.Shape()[widthAxis]
	padded := b.PadZeros(x2, 0, 0, 2*maxDisp, 0)

	maps := make([]*G.Node, 0, Steps(maxDisp, stride))
	for d := 0; d <= 2*maxDisp; d += stride {
		window := b.Slice(padded, nil, nil, nil, sli(d, d+width))
		maps = append(maps, b.dot(x1, window))
	}
	retVal = b.Do(func() (*G.Node, error) { return G.Concat(1, maps...) })
	b.record(name, fmt.Sprintf("corr1d ±%d", maxDisp), retVal, x1, x2)
	return retVal
}

// Correlation2D builds a cost volume between x and itself over vertical and
// horizontal displacements. x is zero padded by maxDisp on all four sides; the
// output channel for vertical step i and horizontal step j is the dot product of x
// with the window of padded x starting at (i*stride1, j*stride2). There are
// Steps(maxDisp, stride1)*Steps(maxDisp, stride2) channels, vertical steps outermost.
func (b *Builder) Correlation2D(name string, x *G.Node, maxDisp, stride1, stride2 int) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	if err := checkCorrelation(x, maxDisp, stride1); err != nil {
		b.err = errors.Wrap(err, name)
		return nil
	}
	if err := checkCorrelation(x, maxDisp, stride2); err != nil {
		b.err = errors.Wrap(err, name)
		return nil
	}
	height, width := x.Shape()[heightAxis], x.Shape()[widthAxis]
	padded := b.PadZeros(x, maxDisp, maxDisp, maxDisp, maxDisp)

	maps := make([]*G.Node, 0, Steps(maxDisp, stride1)*Steps(maxDisp, stride2))
	for dy := 0; dy <= 2*maxDisp; dy += stride1 {
		for dx := 0; dx <= 2*maxDisp; dx += stride2 {
			window := b.Slice(padded, nil, nil, sli(dy, dy+height), sli(dx, dx+width))
			maps = append(maps, b.dot(x, window))
		}
	}
	retVal = b.Do(func() (*G.Node, error) { return G.Concat(1, maps...) })
	b.record(name, fmt.Sprintf("corr2d ±%d", maxDisp), retVal, x)
	return retVal
}

// dot sums a*b over the channel axis, keeping it as a unit axis.
func (b *Builder) dot(x, y *G.Node) *G.Node {
	prod := b.Do(func() (*G.Node, error) { return G.HadamardProd(x, y) })
	summed := b.Do(func() (*G.Node, error) { return G.Sum(prod, 1) })
	if b.err != nil {
		return nil
	}
	s := x.Shape()
	return b.Reshape(summed, tensor.Shape{s[0], 1, s[2], s[3]})
}

func checkCorrelation(x *G.Node, maxDisp, stride int) error {
	if x.Shape().Dims() != 4 {
		return errors.Errorf("expected a 4-D feature map, got %v", x.Shape())
	}
	if maxDisp < 0 || stride < 1 {
		return errors.Errorf("invalid displacement %d or stride %d", maxDisp, stride)
	}
	// windows of a single row or column would lose their axis when sliced
	if x.Shape()[heightAxis] < 2 || x.Shape()[widthAxis] < 2 {
		return errors.Errorf("feature map %v is too small to correlate", x.Shape())
	}
	return nil
}
