package dispnet

import (
	"fmt"

	"github.com/gorgonia/crl/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Scales are the resolution divisors of the predictions, coarsest first.
var Scales = []int{64, 32, 16, 8, 4, 2, 1}

// Net is DispFulNet: a stereo disparity network with a horizontal correlation
// layer and a seven level prediction pyramid.
type Net struct {
	Config

	g *G.ExprGraph
	b *layers.Builder

	left, right *G.Node
	corr        *G.Node
	preds       []*G.Node // coarsest first
}

// New returns a new, uninitialized *Net.
func New(conf Config) *Net {
	return &Net{Config: conf}
}

// Init builds the graph and initialises the weights.
func (d *Net) Init() error {
	if !d.IsValid() {
		return errors.Errorf("invalid config %+v", d.Config)
	}
	d.reset()
	d.g = G.NewGraph()
	d.b = layers.NewBuilder(d.g)
	d.fwd()
	if err := d.b.Err(); err != nil {
		return err
	}
	return layers.Init(d.b.Params(), d.Seed)
}

func (d *Net) reset() {
	d.g = nil
	d.b = nil
	d.left, d.right = nil, nil
	d.corr = nil
	d.preds = nil
}

// decoder stage names and the number of filters of its up and refining convolutions, coarsest first.
type stage struct {
	pr, up, iconv string
	filters       int
}

func (d *Net) fwd() {
	b := d.b
	ngf := d.NGF

	// BCHW, because that is the only layout gorgonia convolves.
	d.left = G.NewTensor(d.g, layers.Float, 4, G.WithShape(d.BatchSize, d.Channels, d.Height, d.Width), G.WithName("Left"))
	d.right = G.NewTensor(d.g, layers.Float, 4, G.WithShape(d.BatchSize, d.Channels, d.Height, d.Width), G.WithName("Right"))

	names := [4]string{"conv1a", "conv1b", "conv2a", "conv2b"}
	if d.TiedEncoder {
		names = [4]string{"conv1", "conv1", "conv2", "conv2"}
	}
	conv1a := b.ConvLeaky(names[0], d.left, ngf, 7, 2, 3)
	conv1b := b.ConvLeaky(names[1], d.right, ngf, 7, 2, 3)
	conv2a := b.ConvLeaky(names[2], conv1a, 2*ngf, 5, 2, 2)
	conv2b := b.ConvLeaky(names[3], conv1b, 2*ngf, 5, 2, 2)

	d.corr = b.Correlation1D("corr", conv2a, conv2b, d.MaxDisp, d.CorrStride)
	rdi := b.Conv("conv_rdi", conv2a, ngf, 1, 1, 0, layers.ConvOpts{Bias: true})
	rdi = b.Alias("conv_rdi", b.ReLU(rdi))

	conv3 := b.ConvLeaky("conv3", b.Concat("corr_rdi", 1, d.corr, rdi), 4*ngf, 5, 2, 2)
	conv3_1 := b.ConvLeaky("conv3_1", conv3, 4*ngf, 3, 1, 1)
	conv4 := b.ConvLeaky("conv4", conv3_1, 8*ngf, 3, 2, 1)
	conv4_1 := b.ConvLeaky("conv4_1", conv4, 8*ngf, 3, 1, 1)
	conv5 := b.ConvLeaky("conv5", conv4_1, 8*ngf, 3, 2, 1)
	conv5_1 := b.ConvLeaky("conv5_1", conv5, 8*ngf, 3, 1, 1)
	conv6 := b.ConvLeaky("conv6", conv5_1, 16*ngf, 3, 2, 1)
	conv6_1 := b.ConvLeaky("conv6_1", conv6, 16*ngf, 3, 1, 1)

	stages := []stage{
		{"pr64", "upconv6", "iconv6", 8 * ngf},
		{"pr32", "upconv5", "iconv5", 4 * ngf},
		{"pr16", "upconv4", "iconv4", 2 * ngf},
		{"pr8", "upconv3", "iconv3", ngf},
		{"pr4", "upconv2", "iconv2", ngf / 2},
	}
	skips := []*G.Node{conv5_1, conv4_1, conv3_1, conv2a, conv1a}

	feat := conv6_1
	for i, s := range stages {
		pr := b.ConvLeaky(s.pr, feat, 1, 3, 1, 1)
		d.preds = append(d.preds, pr)
		up := b.TConvLeaky(s.up, feat, s.filters, 4, 2, 1)
		prUp := b.UpsampleBilinear2x(s.pr+"_up", pr)
		cat := b.Concat(fmt.Sprintf("cat%d", len(stages)+1-i), 1, up, skips[i], prUp)
		feat = b.ConvLeaky(s.iconv, cat, s.filters, 3, 1, 1)
	}

	// a 4x4 kernel has no symmetric "same" padding; the extra row and column go on the far side.
	pr2 := b.ConvLeaky("pr2", b.PadZeros(feat, 2, 1, 2, 1), 1, 4, 1, 0)
	d.preds = append(d.preds, pr2)
	upconv1 := b.TConvLeaky("upconv1", feat, ngf/4, 4, 2, 1)
	pr2Up := b.UpsampleBilinear2x("pr2_up", pr2)

	axis := 1
	if d.BatchAxisFinalConcat {
		axis = 0
	}
	cat := b.Concat("cat1", axis, upconv1, d.left, pr2Up)
	pr1 := b.ConvLeaky("pr1", cat, 1, 5, 1, 2)
	d.preds = append(d.preds, pr1)
}

// Inputs returns the left and right image placeholders.
func (d *Net) Inputs() (left, right *G.Node) { return d.left, d.right }

// Predictions returns the disparity nodes, coarsest (1/64) first.
func (d *Net) Predictions() []*G.Node { return d.preds }

// CorrelationVolume returns the output node of the correlation layer.
func (d *Net) CorrelationVolume() *G.Node { return d.corr }

// Params returns the learned parameters.
func (d *Net) Params() []layers.Param { return d.b.Params() }

// Model returns the learned parameter nodes.
func (d *Net) Model() G.Nodes { return d.b.Model() }

// ToDot renders the architecture.
func (d *Net) ToDot() string { return d.b.ToDot() }
