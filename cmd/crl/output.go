package main

import (
	"fmt"

	"github.com/gorgonia/crl"
	"github.com/gorgonia/crl/flownet"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// pairPredictor stacks an image pair into the single input of a flownet.
type pairPredictor struct {
	*flownet.Inferencer
}

func (p pairPredictor) Predict(left, right *tensor.Dense) ([]*tensor.Dense, error) {
	input, err := crl.StackPair(left, right)
	if err != nil {
		return nil, err
	}
	out, err := p.Inferencer.Predict(input)
	if err != nil {
		return nil, err
	}
	return out.Maps(), nil
}

// slices takes n evenly spaced displacement channels of the first cost volume of a batch.
func slices(vol *tensor.Dense, n int) ([]crl.Frame, error) {
	shape := vol.Shape()
	if shape.Dims() != 4 {
		return nil, errors.Errorf("expected an NCHW cost volume, got %v", shape)
	}
	c, h, w := shape[1], shape[2], shape[3]
	if n > c {
		n = c
	}
	data := vol.Data().([]float32)
	plane := h * w
	frames := make([]crl.Frame, 0, n)
	for i := 0; i < n; i++ {
		k := i * (c - 1) / maxInt(n-1, 1)
		backing := make([]float32, plane)
		copy(backing, data[k*plane:(k+1)*plane])
		frames = append(frames, crl.Frame{
			Name:  fmt.Sprintf("corr d=%d", k),
			Level: k,
			Map:   tensor.New(tensor.WithShape(h, w), tensor.WithBacking(backing)),
		})
	}
	return frames, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
