package flownet

import (
	"bytes"

	"github.com/gorgonia/crl/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Inferencer holds a *Net and a VM, so that the VM is not recreated for every pair.
type Inferencer struct {
	d *Net
	m G.VM

	buf *bytes.Buffer
}

// Infer creates an Inferencer for an initialised *Net.
func Infer(d *Net, toLog bool) (*Inferencer, error) {
	if d.g == nil {
		return nil, errors.New("network is not initialised")
	}
	retVal := &Inferencer{d: d}
	retVal.m, retVal.buf = layers.NewMachine(d.g, toLog)
	return retVal, nil
}

// Net returns the network the Inferencer runs.
func (m *Inferencer) Net() *Net { return m.d }

// Predict runs the network on a batch of stacked image pairs. Depending on the
// mode of the network it returns a Pyramid or a Single.
func (m *Inferencer) Predict(input *tensor.Dense) (Output, error) {
	m.buf.Reset()
	m.m.Reset()
	if err := layers.Bind(m.d.input, input); err != nil {
		return nil, err
	}
	if err := m.m.RunAll(); err != nil {
		return nil, err
	}
	if m.d.mode == Training {
		if err := m.d.b.UpdateStats(); err != nil {
			return nil, err
		}
	}

	if m.d.mode == Evaluation {
		vals, err := layers.Values(m.d.flows[0])
		if err != nil {
			return nil, err
		}
		return Single{vals[0]}, nil
	}
	vals, err := layers.Values(m.d.flows...)
	if err != nil {
		return nil, err
	}
	return Pyramid(vals), nil
}

// ExecLog returns the execution log. If Infer was called with toLog = false, then it will return an empty string
func (m *Inferencer) ExecLog() string { return m.buf.String() }

// Close implements a closer, because well, a gorgonia VM is a resource.
func (m *Inferencer) Close() error { return m.m.Close() }
