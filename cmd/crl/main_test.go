package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func TestParseSize(t *testing.T) {
	var testCases = []struct {
		in   string
		h, w int
		ok   bool
	}{
		{"384x768", 384, 768, true},
		{"64X128", 64, 128, true},
		{"100x64", 0, 0, false},
		{"64", 0, 0, false},
		{"ax64", 0, 0, false},
		{"0x64", 0, 0, false},
	}
	for _, tc := range testCases {
		h, w, err := parseSize(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		if assert.NoError(t, err, tc.in) {
			assert.Equal(t, tc.h, h)
			assert.Equal(t, tc.w, w)
		}
	}
}

func TestSlices(t *testing.T) {
	vol := tensor.New(tensor.WithShape(1, 5, 2, 2), tensor.WithBacking(tensor.Range(tensor.Float32, 0, 20)))
	frames, err := slices(vol, 3)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, frames, 3)
	assert.Equal(t, []int{0, 2, 4}, []int{frames[0].Level, frames[1].Level, frames[2].Level})
	assert.Equal(t, []float32{16, 17, 18, 19}, frames[2].Map.Data())
	assert.Equal(t, tensor.Shape{2, 2}, frames[1].Map.Shape())

	frames, err = slices(vol, 10)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, frames, 5)

	_, err = slices(tensor.New(tensor.WithShape(5, 2, 2), tensor.Of(tensor.Float32)), 1)
	assert.Error(t, err)
}
