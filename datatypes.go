// Package crl runs cascade residual learning style stereo and optical flow networks
// on gorgonia. The networks live in the dispnet and flownet packages; this package
// holds what they share: image loading, outputs and statistics.
package crl

import (
	"io"

	"gorgonia.org/tensor"
)

// Predictor is anything that maps a batch of image pairs to a list of prediction maps.
type Predictor interface {
	Predict(left, right *tensor.Dense) ([]*tensor.Dense, error)
	io.Closer
}

// ExecLogger is anything that can return the execution log.
type ExecLogger interface {
	ExecLog() string
}

// Frame is a single named 2-D map, as handed to an OutputEncoder.
type Frame struct {
	Name  string
	Level int // position in the pyramid, or the displacement index of a correlation slice
	Map   *tensor.Dense
}

// OutputEncoder encodes frames as whatever.
//
// An example OutputEncoder is the GifEncoder.
type OutputEncoder interface {
	Encode(f Frame) error
	Flush() error
}
