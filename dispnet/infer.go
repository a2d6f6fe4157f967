package dispnet

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

// Predict runs the network on a batch of image pairs and returns the disparity
// pyramid, coarsest (1/64) first.
func (m *Inferencer) Predict(left, right *tensor.Dense) ([]*tensor.Dense, error) {
	if err := m.run(left, right); err != nil {
		return nil, err
	}
	return layers.Values(m.d.preds...)
}

// Correlate runs the network on a batch of image pairs and returns the cost volume
// of the correlation layer.
func (m *Inferencer) Correlate(left, right *tensor.Dense) (*tensor.Dense, error) {
	if err := m.run(left, right); err != nil {
		return nil, err
	}
	vols, err := layers.Values(m.d.corr)
	if err != nil {
		return nil, err
	}
	return vols[0], nil
}

func (m *Inferencer) run(left, right *tensor.Dense) error {
	m.buf.Reset()
	m.m.Reset()
	if err := layers.Bind(m.d.left, left); err != nil {
		return err
	}
	if err := layers.Bind(m.d.right, right); err != nil {
		return err
	}
	return m.m.RunAll()
}

// ExecLog returns the execution log. If Infer was called with toLog = false, then it will return an empty string
func (m *Inferencer) ExecLog() string { return m.buf.String() }

// Close implements a closer, because well, a gorgonia VM is a resource.
func (m *Inferencer) Close() error { return m.m.Close() }
