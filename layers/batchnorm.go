package layers

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// normLayer holds the nodes of one batch normalisation.
type normLayer struct {
	name string

	// per channel masks selecting the batch statistics (training) or the running ones
	train, eval *G.Node

	mean, variance    *G.Node // running statistics, read by evaluation
	nextMean, nextVar *G.Node // running statistics folded with the current batch
}

// batchnorm normalises every channel of x. In training the statistics of the batch
// are used; in evaluation the running statistics are. The running statistics are
// registered parameters, so they are saved and loaded with the weights, and are
// advanced by UpdateStats after every training pass:
//	running = momentum*running + (1-momentum)*batch
// with the unbiased batch variance.
func (b *Builder) batchnorm(name string, x *G.Node) (retVal *G.Node) {
	if b.err != nil {
		return nil
	}
	shape := x.Shape()
	if shape.Dims() != 4 {
		b.err = errors.Errorf("%s: batch normalisation expects NCHW, got %v", name, shape)
		return nil
	}
	count := shape[0] * shape[2] * shape[3]
	stat := tensor.Shape{1, shape[1], 1, 1}

	scale := b.param(name+".scale", NormScale, stat)
	shift := b.param(name+".shift", NormShift, stat)
	l := normLayer{
		name:     name,
		mean:     b.param(name+".mean", RunningMean, stat),
		variance: b.param(name+".var", RunningVar, stat),
		train:    G.NewTensor(b.g, Float, 4, G.WithShape(stat.Clone()...), G.WithName(name+".training")),
		eval:     G.NewTensor(b.g, Float, 4, G.WithShape(stat.Clone()...), G.WithName(name+".evaluation")),
	}
	if b.err != nil {
		return nil
	}
	if err := b.setMode(l); err != nil {
		b.err = err
		return nil
	}

	batchMean := b.channelMean(x, count)
	centered := b.Do(func() (*G.Node, error) { return G.BroadcastSub(x, batchMean, nil, []byte{0, 2, 3}) })
	squared := b.Do(func() (*G.Node, error) { return G.HadamardProd(centered, centered) })
	batchVar := b.channelMean(squared, count)

	mean := b.mix(l.train, batchMean, l.eval, l.mean)
	variance := b.mix(l.train, batchVar, l.eval, l.variance)
	eps := b.fill(stat, bnEpsilon)
	shifted := b.Do(func() (*G.Node, error) { return G.Add(variance, eps) })
	std := b.Do(func() (*G.Node, error) { return G.Sqrt(shifted) })

	diff := b.Do(func() (*G.Node, error) { return G.BroadcastSub(x, mean, nil, []byte{0, 2, 3}) })
	normed := b.Do(func() (*G.Node, error) { return G.BroadcastHadamardDiv(diff, std, nil, []byte{0, 2, 3}) })
	scaled := b.Do(func() (*G.Node, error) { return G.BroadcastHadamardProd(normed, scale, nil, []byte{0, 2, 3}) })
	retVal = b.Do(func() (*G.Node, error) { return G.BroadcastAdd(scaled, shift, nil, []byte{0, 2, 3}) })

	unbias := float32(1)
	if count > 1 {
		unbias = float32(count) / float32(count-1)
	}
	l.nextMean = b.mix(b.fill(stat, bnMomentum), l.mean, b.fill(stat, 1-bnMomentum), batchMean)
	l.nextVar = b.mix(b.fill(stat, bnMomentum), l.variance, b.fill(stat, (1-bnMomentum)*unbias), batchVar)
	if b.err != nil {
		return nil
	}
	b.norms = append(b.norms, l)
	return retVal
}

// channelMean averages x over the batch and spatial axes, giving a (1, C, 1, 1) node.
func (b *Builder) channelMean(x *G.Node, count int) *G.Node {
	if b.err != nil {
		return nil
	}
	c := x.Shape()[1]
	sum := x
	for _, axis := range []int{3, 2, 0} {
		along := axis
		in := sum
		sum = b.Do(func() (*G.Node, error) { return G.Sum(in, along) })
	}
	sum = b.Reshape(sum, tensor.Shape{1, c, 1, 1})
	inv := b.fill(tensor.Shape{1, c, 1, 1}, 1/float32(count))
	return b.Do(func() (*G.Node, error) { return G.HadamardProd(sum, inv) })
}

// mix is a*x + c*y, elementwise.
func (b *Builder) mix(a, x, c, y *G.Node) *G.Node {
	ax := b.Do(func() (*G.Node, error) { return G.HadamardProd(a, x) })
	cy := b.Do(func() (*G.Node, error) { return G.HadamardProd(c, y) })
	return b.Do(func() (*G.Node, error) { return G.Add(ax, cy) })
}

func (b *Builder) setMode(l normLayer) error {
	var train, eval float32 = 1, 0
	if !b.training {
		train, eval = 0, 1
	}
	for _, m := range []struct {
		n *G.Node
		v float32
	}{{l.train, train}, {l.eval, eval}} {
		data := make([]float32, m.n.Shape().TotalSize())
		for i := range data {
			data[i] = m.v
		}
		v := tensor.New(tensor.WithShape(m.n.Shape().Clone()...), tensor.WithBacking(data))
		if err := G.Let(m.n, v); err != nil {
			return errors.Wrapf(err, "%s: setting mode", l.name)
		}
	}
	return nil
}

// SetTraining selects batch statistics (true) or running statistics (false) in every
// batch normalisation.
func (b *Builder) SetTraining(training bool) error {
	b.training = training
	for _, l := range b.norms {
		if err := b.setMode(l); err != nil {
			return err
		}
	}
	return nil
}

// Training reports whether batch normalisations use the batch statistics.
func (b *Builder) Training() bool { return b.training }

// UpdateStats folds the statistics of the last training pass into the running statistics.
// It must be called after the graph has been run.
func (b *Builder) UpdateStats() error {
	for _, l := range b.norms {
		next, err := Values(l.nextMean, l.nextVar)
		if err != nil {
			return errors.Wrapf(err, "%s: reading statistics", l.name)
		}
		if err := G.Let(l.mean, next[0]); err != nil {
			return errors.Wrapf(err, "%s: updating running mean", l.name)
		}
		if err := G.Let(l.variance, next[1]); err != nil {
			return errors.Wrapf(err, "%s: updating running variance", l.name)
		}
	}
	return nil
}
