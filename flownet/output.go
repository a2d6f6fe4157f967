package flownet

import "gorgonia.org/tensor"

// Output is the result of a forward pass. In training mode it is a Pyramid,
// in evaluation mode it is a Single.
type Output interface {
	// Finest returns the highest resolution prediction.
	Finest() *tensor.Dense
	// Maps returns every prediction, finest first.
	Maps() []*tensor.Dense

	isOutput()
}

// Pyramid holds the predictions at 1/4, 1/8, 1/16, 1/32 and 1/64 of the input resolution.
type Pyramid []*tensor.Dense

func (p Pyramid) Finest() *tensor.Dense { return p[0] }
func (p Pyramid) Maps() []*tensor.Dense { return []*tensor.Dense(p) }
func (p Pyramid) isOutput()             {}

// Single holds the 1/4 resolution prediction.
type Single struct{ *tensor.Dense }

func (s Single) Finest() *tensor.Dense { return s.Dense }
func (s Single) Maps() []*tensor.Dense { return []*tensor.Dense{s.Dense} }
func (s Single) isOutput()             {}
