package crl

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// Statistics summarises prediction maps, one record per map.
type Statistics struct {
	Names     []string
	Shapes    []tensor.Shape
	Min       []float32
	Max       []float32
	Mean      []float32
	NonFinite []int
}

// MakeStatistics creates an empty Statistics with room for n maps.
func MakeStatistics(n int) Statistics {
	return Statistics{
		Names:     make([]string, 0, n),
		Shapes:    make([]tensor.Shape, 0, n),
		Min:       make([]float32, 0, n),
		Max:       make([]float32, 0, n),
		Mean:      make([]float32, 0, n),
		NonFinite: make([]int, 0, n),
	}
}

// Update adds a record for t. NaNs and infinities are counted and left out of the other columns.
func (s *Statistics) Update(name string, t *tensor.Dense) error {
	data, ok := t.Data().([]float32)
	if !ok {
		return errors.Errorf("%s holds %v, expected float32", name, t.Dtype())
	}
	finite := make([]float32, 0, len(data))
	var bad int
	min, max := math32.Inf(1), math32.Inf(-1)
	for _, v := range data {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			bad++
			continue
		}
		finite = append(finite, v)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	var mean float32
	if len(finite) > 0 {
		mean = vecf32.Sum(finite) / float32(len(finite))
	} else {
		min, max = 0, 0
	}

	s.Names = append(s.Names, name)
	s.Shapes = append(s.Shapes, t.Shape().Clone())
	s.Min = append(s.Min, min)
	s.Max = append(s.Max, max)
	s.Mean = append(s.Mean, mean)
	s.NonFinite = append(s.NonFinite, bad)
	return nil
}

// Len returns the number of records.
func (s *Statistics) Len() int { return len(s.Names) }

func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"name", "shape", "min", "max", "mean", "nonfinite"}); err != nil {
		return err
	}
	records := make([][]string, 0, len(s.Names))
	for i, name := range s.Names {
		records = append(records, []string{
			name,
			fmt.Sprintf("%v", s.Shapes[i]),
			strconv.FormatFloat(float64(s.Min[i]), 'f', 3, 32),
			strconv.FormatFloat(float64(s.Max[i]), 'f', 3, 32),
			strconv.FormatFloat(float64(s.Mean[i]), 'f', 3, 32),
			strconv.Itoa(s.NonFinite[i]),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
