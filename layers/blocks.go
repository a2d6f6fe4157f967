package layers

import G "gorgonia.org/gorgonia"

// ConvLeaky is a bias-free convolution followed by a leaky rectifier.
func (b *Builder) ConvLeaky(name string, x *G.Node, filterCount, size, stride, pad int) *G.Node {
	conv := b.Conv(name, x, filterCount, size, stride, pad, ConvOpts{})
	return b.Alias(name, b.LeakyReLU(conv))
}

// TConvLeaky is a bias-free transposed convolution followed by a leaky rectifier.
func (b *Builder) TConvLeaky(name string, x *G.Node, filterCount, size, stride, pad int) *G.Node {
	conv := b.TConv(name, x, filterCount, size, stride, pad, false)
	return b.Alias(name, b.LeakyReLU(conv))
}

// ConvNorm is a "same" padded convolution followed by either batch normalisation or
// a bias, and a leaky rectifier.
func (b *Builder) ConvNorm(name string, batchNorm bool, x *G.Node, filterCount, size, stride int) *G.Node {
	conv := b.Conv(name, x, filterCount, size, stride, (size-1)/2, ConvOpts{Bias: !batchNorm, BatchNorm: batchNorm})
	return b.Alias(name, b.LeakyReLU(conv))
}

// Deconv doubles the resolution with a 4x4 transposed convolution with bias,
// followed by a leaky rectifier.
func (b *Builder) Deconv(name string, x *G.Node, filterCount int) *G.Node {
	conv := b.TConv(name, x, filterCount, 4, 2, 1, true)
	return b.Alias(name, b.LeakyReLU(conv))
}

// Predict is a bias-free 3x3 convolution down to filterCount channels.
func (b *Builder) Predict(name string, x *G.Node, filterCount int) *G.Node {
	return b.Conv(name, x, filterCount, 3, 1, 1, ConvOpts{})
}

// Upsample doubles the resolution of a prediction with a learned, bias-free 4x4
// transposed convolution.
func (b *Builder) Upsample(name string, x *G.Node) *G.Node {
	if b.err != nil {
		return nil
	}
	return b.TConv(name, x, x.Shape()[1], 4, 2, 1, false)
}
