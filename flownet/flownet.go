package flownet

import (
	"fmt"

	"github.com/gorgonia/crl/checkpoint"
	"github.com/gorgonia/crl/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Scales are the resolution divisors of the predictions, finest first.
var Scales = []int{4, 8, 16, 32, 64}

// Mode selects what a forward pass returns and which batch statistics are used.
type Mode byte

const (
	// Training returns the whole pyramid, normalises with batch statistics and
	// advances the running statistics.
	Training Mode = iota
	// Evaluation returns the finest prediction and normalises with running statistics.
	Evaluation
)

func (m Mode) String() string {
	if m == Evaluation {
		return "evaluation"
	}
	return "training"
}

// Net is the FlowNetS encoder/decoder. With one output channel it is DispResNet.
type Net struct {
	Config
	mode Mode

	g *G.ExprGraph
	b *layers.Builder

	input *G.Node
	flows []*G.Node // finest first
}

// New returns a new, uninitialized *Net in training mode.
func New(conf Config) *Net {
	return &Net{Config: conf}
}

// FlowNetS builds the optical flow network without batch normalisation. If filename
// is not empty the parameters are loaded from it, in either checkpoint layout.
func FlowNetS(filename string, conf Config) (*Net, error) {
	conf.BatchNorm = false
	d := New(conf)
	if err := d.Init(); err != nil {
		return nil, err
	}
	if filename == "" {
		return d, nil
	}
	if err := d.Load(filename); err != nil {
		return nil, err
	}
	return d, nil
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
	if err := layers.Init(d.b.Params(), d.Seed); err != nil {
		return err
	}
	return d.SetMode(d.mode)
}

func (d *Net) reset() {
	d.g = nil
	d.b = nil
	d.input = nil
	d.flows = nil
}

func (d *Net) fwd() {
	b := d.b
	bn := d.BatchNorm
	ngf := d.NGF
	out := d.OutputChannels

	d.input = G.NewTensor(d.g, layers.Float, 4, G.WithShape(d.BatchSize, d.InputChannels, d.Height, d.Width), G.WithName("Input"))

	conv1 := b.ConvNorm("conv1", bn, d.input, ngf, 7, 2)
	conv2 := b.ConvNorm("conv2", bn, conv1, 2*ngf, 5, 2)
	conv3 := b.ConvNorm("conv3", bn, conv2, 4*ngf, 5, 2)
	conv3 = b.ConvNorm("conv3_1", bn, conv3, 4*ngf, 3, 1)
	conv4 := b.ConvNorm("conv4", bn, conv3, 8*ngf, 3, 2)
	conv4 = b.ConvNorm("conv4_1", bn, conv4, 8*ngf, 3, 1)
	conv5 := b.ConvNorm("conv5", bn, conv4, 8*ngf, 3, 2)
	conv5 = b.ConvNorm("conv5_1", bn, conv5, 8*ngf, 3, 1)
	conv6 := b.ConvNorm("conv6", bn, conv5, 16*ngf, 3, 2)
	conv6 = b.ConvNorm("conv6_1", bn, conv6, 16*ngf, 3, 1)

	// decoder, coarsest first: the encoder skip and the deconvolution width of each level.
	skips := []*G.Node{conv5, conv4, conv3, conv2}
	widths := []int{8 * ngf, 4 * ngf, 2 * ngf, ngf}

	feat := conv6
	flows := make([]*G.Node, 0, len(Scales))
	for i, skip := range skips {
		level := 6 - i
		flow := b.Predict(fmt.Sprintf("predict_flow%d", level), feat, out)
		flowUp := b.Upsample(fmt.Sprintf("upsampled_flow%d_to_%d", level, level-1), flow)
		deconv := b.Deconv(fmt.Sprintf("deconv%d", level-1), feat, widths[i])
		feat = b.Concat(fmt.Sprintf("concat%d", level-1), 1, skip, deconv, flowUp)
		flows = append(flows, flow)
	}
	flows = append(flows, b.Predict("predict_flow2", feat, out))

	for i := len(flows) - 1; i >= 0; i-- {
		d.flows = append(d.flows, flows[i])
	}
}

// SetMode switches between training and evaluation. It may be called before Init.
func (d *Net) SetMode(m Mode) error {
	d.mode = m
	if d.b == nil {
		return nil
	}
	return d.b.SetTraining(m == Training)
}

// Mode returns the current mode.
func (d *Net) Mode() Mode { return d.mode }

// Input returns the placeholder of the stacked image pair.
func (d *Net) Input() *G.Node { return d.input }

// Predictions returns the prediction nodes, finest (1/4) first.
func (d *Net) Predictions() []*G.Node { return d.flows }

// Params returns the parameters, batch normalisation statistics included.
func (d *Net) Params() []layers.Param { return d.b.Params() }

// Model returns the learned parameter nodes.
func (d *Net) Model() G.Nodes { return d.b.Model() }

// ToDot renders the architecture.
func (d *Net) ToDot() string { return d.b.ToDot() }

// Load sets the parameters from a checkpoint file.
func (d *Net) Load(filename string) error {
	if d.b == nil {
		return errors.New("network is not initialised")
	}
	sd, err := checkpoint.LoadFile(filename)
	if err != nil {
		return err
	}
	return errors.Wrapf(checkpoint.Apply(sd, d.Params()), "applying %s", filename)
}

// Save writes the parameters to a checkpoint file in the wrapped layout.
func (d *Net) Save(filename string) error {
	if d.b == nil {
		return errors.New("network is not initialised")
	}
	sd, err := checkpoint.Extract(d.Params())
	if err != nil {
		return err
	}
	meta := map[string]string{
		"arch":           "flownets",
		"outputChannels": fmt.Sprintf("%d", d.OutputChannels),
		"batchNorm":      fmt.Sprintf("%t", d.BatchNorm),
	}
	return checkpoint.SaveFile(filename, sd, meta)
}
