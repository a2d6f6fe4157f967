package layers

import (
	"bytes"
	"log"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NewMachine creates a tape machine for g. If toLog is set, the execution trace
// is written to the returned buffer and NaNs are watched for.
func NewMachine(g *G.ExprGraph, toLog bool) (G.VM, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	if toLog {
		logger := log.New(buf, "", 0)
		return G.NewTapeMachine(g,
			G.WithLogger(logger),
			G.WithWatchlist(),
			G.TraceExec(),
			G.WithValueFmt("%+1.1v"),
			G.WithNaNWatch(),
		), buf
	}
	return G.NewTapeMachine(g), buf
}

// Bind checks that v fits the placeholder n and binds it.
func Bind(n *G.Node, v *tensor.Dense) error {
	if v == nil {
		return errors.Errorf("no value for %s", n.Name())
	}
	if !v.Shape().Eq(n.Shape()) {
		return errors.Errorf("%s expects shape %v, got %v", n.Name(), n.Shape(), v.Shape())
	}
	if v.Dtype() != Float {
		return errors.Errorf("%s expects %v, got %v", n.Name(), Float, v.Dtype())
	}
	return G.Let(n, v)
}

// Values copies out the values of ns after a run, so they survive the next one.
func Values(ns ...*G.Node) ([]*tensor.Dense, error) {
	retVal := make([]*tensor.Dense, len(ns))
	for i, n := range ns {
		v, ok := n.Value().(tensor.Tensor)
		if !ok {
			return nil, errors.Errorf("%v holds %T, not a tensor", n, n.Value())
		}
		retVal[i] = tensor.New(tensor.WithShape(v.Shape().Clone()...), tensor.Of(v.Dtype()))
		if err := tensor.Copy(retVal[i], v); err != nil {
			return nil, errors.Wrapf(err, "copying %v", n)
		}
	}
	return retVal, nil
}
