package layers

import (
	"math"

	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Kind tags a learned parameter with the rule used to initialise it.
type Kind byte

const (
	Convolution Kind = iota
	TransposedConvolution
	NormScale
	NormShift
	Bias
	RunningMean
	RunningVar
)

func (k Kind) String() string {
	switch k {
	case Convolution:
		return "convolution"
	case TransposedConvolution:
		return "transposed convolution"
	case NormScale:
		return "normalisation scale"
	case NormShift:
		return "normalisation shift"
	case Bias:
		return "bias"
	case RunningMean:
		return "running mean"
	case RunningVar:
		return "running variance"
	}
	return "unknown"
}

// Param is a named, tagged learned parameter.
type Param struct {
	Name string
	Kind Kind
	Node *G.Node
}

// FanOut is kh*kw*out for filters, 0 otherwise.
func (p Param) FanOut() int {
	switch p.Kind {
	case Convolution, TransposedConvolution:
		s := p.Node.Shape()
		return s[0] * s[2] * s[3]
	}
	return 0
}

// Params returns every registered parameter, running statistics included, in the order they were created.
func (b *Builder) Params() []Param {
	retVal := make([]Param, len(b.params))
	copy(retVal, b.params)
	return retVal
}

// Learned reports whether parameters of this kind are learned, as opposed to
// statistics gathered while running.
func (k Kind) Learned() bool { return k != RunningMean && k != RunningVar }

// Model returns the nodes of the learned parameters.
func (b *Builder) Model() G.Nodes {
	retVal := make(G.Nodes, 0, len(b.params))
	for _, p := range b.params {
		if p.Kind.Learned() {
			retVal = append(retVal, p.Node)
		}
	}
	return retVal
}

// Init initialises every registered parameter according to its kind:
// filters are drawn from N(0, 0.02/n) with n = kh*kw*out (0.02/n is the variance),
// normalisation scales and running variances are set to 1, and normalisation shifts,
// running means and biases to 0.
func Init(params []Param, seed int64) error {
	gen := rng.NewGaussianGenerator(seed)
	for _, p := range params {
		shape := p.Node.Shape().Clone()
		data := make([]float32, shape.TotalSize())
		switch p.Kind {
		case Convolution, TransposedConvolution:
			stdev := math.Sqrt(0.02 / float64(p.FanOut()))
			for i := range data {
				data[i] = float32(gen.Gaussian(0, stdev))
			}
		case NormScale, RunningVar:
			for i := range data {
				data[i] = 1
			}
		case NormShift, Bias, RunningMean:
		default:
			return errors.Errorf("%s: unknown parameter kind %d", p.Name, p.Kind)
		}
		val := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
		if err := G.Let(p.Node, val); err != nil {
			return errors.Wrapf(err, "initialising %s", p.Name)
		}
	}
	return nil
}
