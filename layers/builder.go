package layers

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// Float is the dtype every network in this module is built with.
var Float = G.Float32

// Slope is the negative slope of the leaky rectifiers.
const Slope = 0.1

const (
	bnMomentum = 0.9
	bnEpsilon  = 1e-5
)

// Builder builds layers onto an expression graph. The first error encountered is
// kept and every subsequent call becomes a no-op returning nil.
type Builder struct {
	g   *G.ExprGraph
	err error

	params []Param
	byName map[string]int

	norms    []normLayer
	training bool

	constants int

	blocks    []block
	producers map[*G.Node]int
}

// ConvOpts are the optional parts of a convolution block.
type ConvOpts struct {
	Bias      bool // learned per-channel bias
	BatchNorm bool // batch normalisation after the convolution
}

// NewBuilder creates a builder for g.
func NewBuilder(g *G.ExprGraph) *Builder {
	return &Builder{
		g:         g,
		byName:    make(map[string]int),
		training:  true,
		producers: make(map[*G.Node]int),
	}
}

// Graph returns the graph the builder writes to.
func (b *Builder) Graph() *G.ExprGraph { return b.g }

// Err returns the first error encountered while building.
func (b *Builder) Err() error { return b.err }

// Do runs f unless an error has already been recorded.
func (b *Builder) Do(f func() (*G.Node, error)) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	if retVal, b.err = f(); b.err != nil {
		b.err = errors.WithStack(b.err)
	}
	return
}

// Conv is a square convolution without activation. The number of input channels is
// read off x. A parameter name that was already used reuses the existing weights.
func (b *Builder) Conv(name string, x *G.Node, filterCount, size, stride, pad int, opts ConvOpts) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	featureCount := x.Shape()[1]
	filter := b.weight(name+".weight", Convolution, filterCount, featureCount, size)
	retVal = b.Do(func() (*G.Node, error) {
		return nnops.Conv2d(x, filter, tensor.Shape{size, size}, []int{pad, pad}, []int{stride, stride}, []int{1, 1})
	})
	if opts.BatchNorm {
		retVal = b.batchnorm(name+".bn", retVal)
	}
	if opts.Bias {
		retVal = b.bias(name+".bias", retVal)
	}
	b.record(name, "conv", retVal, x)
	return retVal
}

// TConv is a square transposed convolution without activation. The output is
// (H-1)*stride - 2*pad + size high (and likewise wide).
//
// It is computed as a stride 1 convolution over the input with stride-1 zeros
// inserted between elements and size-1-pad zeros around it. The filter is stored in
// that convolution's (out, in, kh, kw) layout.
func (b *Builder) TConv(name string, x *G.Node, filterCount, size, stride, pad int, bias bool) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	edge := size - 1 - pad
	trail := stride - 1
	if edge < trail {
		b.err = errors.Errorf("%s: transposed convolution with kernel %d, stride %d and padding %d is not supported", name, size, stride, pad)
		return nil
	}

	featureCount := x.Shape()[1]
	filter := b.weight(name+".weight", TransposedConvolution, filterCount, featureCount, size)

	dilated := b.dilate(x, stride)
	// dilation leaves stride-1 trailing zeros, which count towards the bottom and right padding.
	padded := b.PadZeros(dilated, edge, edge-trail, edge, edge-trail)
	retVal = b.Do(func() (*G.Node, error) {
		return nnops.Conv2d(padded, filter, tensor.Shape{size, size}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	})
	if bias {
		retVal = b.bias(name+".bias", retVal)
	}
	b.record(name, "tconv", retVal, x)
	return retVal
}

// LeakyReLU rectifies x with slope Slope for negative values.
func (b *Builder) LeakyReLU(x *G.Node) *G.Node {
	return b.Do(func() (*G.Node, error) { return G.LeakyRelu(x, Slope) })
}

// ReLU rectifies x.
func (b *Builder) ReLU(x *G.Node) *G.Node {
	return b.Do(func() (*G.Node, error) { return nnops.Rectify(x) })
}

// Concat concatenates xs along axis.
func (b *Builder) Concat(name string, axis int, xs ...*G.Node) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	retVal = b.Do(func() (*G.Node, error) { return G.Concat(axis, xs...) })
	b.record(name, "concat", retVal, xs...)
	return retVal
}

// Reshape reshapes x.
func (b *Builder) Reshape(x *G.Node, to tensor.Shape) *G.Node {
	return b.Do(func() (*G.Node, error) { return G.Reshape(x, to) })
}

// Slice slices x.
func (b *Builder) Slice(x *G.Node, slices ...tensor.Slice) *G.Node {
	return b.Do(func() (*G.Node, error) { return G.Slice(x, slices...) })
}

func (b *Builder) bias(name string, x *G.Node) *G.Node {
	if b.err != nil {
		return nil
	}
	bias := b.param(name, Bias, tensor.Shape{1, x.Shape()[1], 1, 1})
	return b.Do(func() (*G.Node, error) { return G.BroadcastAdd(x, bias, nil, []byte{0, 2, 3}) })
}

func (b *Builder) weight(name string, kind Kind, out, in, size int) *G.Node {
	return b.param(name, kind, tensor.Shape{out, in, size, size})
}

// param returns the named parameter, creating it if it does not exist yet.
func (b *Builder) param(name string, kind Kind, shape tensor.Shape) *G.Node {
	if b.err != nil {
		return nil
	}
	if i, ok := b.byName[name]; ok {
		p := b.params[i]
		if p.Kind != kind || !p.Node.Shape().Eq(shape) {
			b.err = errors.Errorf("%s: cannot reuse %v parameter of shape %v as %v of shape %v", name, p.Kind, p.Node.Shape(), kind, shape)
			return nil
		}
		return p.Node
	}
	n := G.NewTensor(b.g, Float, shape.Dims(), G.WithShape(shape.Clone()...), G.WithName(name), G.WithInit(G.Zeroes()))
	b.register(name, kind, n)
	return n
}

func (b *Builder) register(name string, kind Kind, n *G.Node) {
	if _, ok := b.byName[name]; ok {
		b.err = errors.Errorf("parameter %q registered twice", name)
		return
	}
	b.byName[name] = len(b.params)
	b.params = append(b.params, Param{Name: name, Kind: kind, Node: n})
}

func shapeString(n *G.Node) string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", n.Shape())
}
