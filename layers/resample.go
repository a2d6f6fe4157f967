package layers

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

const (
	heightAxis = 2
	widthAxis  = 3
)

// zeros is a constant of zeros shaped like x, with the given axis resized to size.
func (b *Builder) zeros(x *G.Node, axis, size int) *G.Node {
	shape := x.Shape().Clone()
	shape[axis] = size
	return b.constant(shape, make([]float32, shape.TotalSize()))
}

// fill is a constant of the given shape holding v everywhere.
func (b *Builder) fill(shape tensor.Shape, v float32) *G.Node {
	data := make([]float32, shape.TotalSize())
	for i := range data {
		data[i] = v
	}
	return b.constant(shape, data)
}

// constant adds a constant to the graph. Every constant gets its own name, since
// the graph merges constants it cannot tell apart.
func (b *Builder) constant(shape tensor.Shape, data []float32) *G.Node {
	b.constants++
	v := tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(data))
	return b.g.AddNode(G.NewConstant(v, G.WithName(fmt.Sprintf("const%d", b.constants))))
}

// PadZeros pads the spatial axes of x with zeros.
func (b *Builder) PadZeros(x *G.Node, top, bottom, left, right int) *G.Node {
	if b.err != nil {
		return nil
	}
	x = b.padAxis(x, heightAxis, top, bottom)
	return b.padAxis(x, widthAxis, left, right)
}

func (b *Builder) padAxis(x *G.Node, axis, before, after int) *G.Node {
	if b.err != nil || before == 0 && after == 0 {
		return x
	}
	parts := make([]*G.Node, 0, 3)
	if before > 0 {
		parts = append(parts, b.zeros(x, axis, before))
	}
	parts = append(parts, x)
	if after > 0 {
		parts = append(parts, b.zeros(x, axis, after))
	}
	return b.Do(func() (*G.Node, error) { return G.Concat(axis, parts...) })
}

// interleave merges same-shaped xs along a spatial axis, element by element:
// for two inputs the result holds xs[0][i] at 2i and xs[1][i] at 2i+1.
func (b *Builder) interleave(axis int, xs ...*G.Node) *G.Node {
	if b.err != nil {
		return nil
	}
	shape := xs[0].Shape()
	// insert a unit axis after the interleaved one, stack along it, then fold it back in.
	expanded := make(tensor.Shape, 0, len(shape)+1)
	expanded = append(expanded, shape[:axis+1]...)
	expanded = append(expanded, 1)
	expanded = append(expanded, shape[axis+1:]...)

	stacked := make([]*G.Node, len(xs))
	for i, x := range xs {
		stacked[i] = b.Reshape(x, expanded.Clone())
	}
	merged := b.Do(func() (*G.Node, error) { return G.Concat(axis+1, stacked...) })

	to := shape.Clone()
	to[axis] *= len(xs)
	return b.Reshape(merged, to)
}

// dilate inserts stride-1 zeros after every element along both spatial axes.
func (b *Builder) dilate(x *G.Node, stride int) *G.Node {
	if b.err != nil || stride == 1 {
		return x
	}
	for _, axis := range []int{heightAxis, widthAxis} {
		xs := []*G.Node{x}
		for i := 1; i < stride; i++ {
			xs = append(xs, b.zeros(x, axis, x.Shape()[axis]))
		}
		if x = b.interleave(axis, xs...); b.err != nil {
			return nil
		}
	}
	return x
}

// UpsampleBilinear2x doubles the spatial resolution of x with bilinear
// interpolation at half-pixel centres, clamping at the borders.
// x must not be a view.
func (b *Builder) UpsampleBilinear2x(name string, x *G.Node) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	shape := x.Shape().Clone()
	planes := b.Reshape(x, tensor.Shape{shape[0] * shape[1], 1, shape[2], shape[3]})
	planes = b.upsampleAxis(planes, heightAxis)
	planes = b.upsampleAxis(planes, widthAxis)
	retVal = b.Reshape(planes, tensor.Shape{shape[0], shape[1], 2 * shape[2], 2 * shape[3]})
	b.record(name, "bilinear", retVal, x)
	return retVal
}

// upsampleAxis computes, for single channel planes,
//	out[2i]   = 0.75*x[i] + 0.25*x[i-1]
//	out[2i+1] = 0.75*x[i] + 0.25*x[i+1]
// with indices clamped to the axis. The neighbours come from fixed 3-tap
// convolutions; the taps that fall onto the zero padding are put back with masks.
func (b *Builder) upsampleAxis(x *G.Node, axis int) *G.Node {
	if b.err != nil {
		return nil
	}
	shape := x.Shape().Clone()
	n := shape[axis]

	kernel := tensor.Shape{3, 1}
	pad := []int{1, 0}
	if axis == widthAxis {
		kernel = tensor.Shape{1, 3}
		pad = []int{0, 1}
	}
	filter := func(taps ...float32) *G.Node {
		return b.constant(tensor.Shape{1, 1, kernel[0], kernel[1]}, taps)
	}
	mask := func(at int) *G.Node {
		data := make([]float32, shape.TotalSize())
		it := planeIndices(shape, axis)
		for i := range data {
			if it(i) == at {
				data[i] = 0.25
			}
		}
		return b.constant(shape, data)
	}

	side := func(taps *G.Node, edge *G.Node) *G.Node {
		conv := b.Do(func() (*G.Node, error) {
			return nnops.Conv2d(x, taps, kernel, pad, []int{1, 1}, []int{1, 1})
		})
		clamped := b.Do(func() (*G.Node, error) { return G.HadamardProd(edge, x) })
		return b.Do(func() (*G.Node, error) { return G.Add(conv, clamped) })
	}
	even := side(filter(0.25, 0.75, 0), mask(0))
	odd := side(filter(0, 0.75, 0.25), mask(n-1))
	return b.interleave(axis, even, odd)
}

// planeIndices returns a function mapping a flat row-major index of a tensor of the
// given shape to its coordinate along axis.
func planeIndices(shape tensor.Shape, axis int) func(int) int {
	stride := 1
	for _, d := range shape[axis+1:] {
		stride *= d
	}
	return func(i int) int { return (i / stride) % shape[axis] }
}
