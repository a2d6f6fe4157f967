package gif

import (
	"bytes"
	"image/gif"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorgonia/crl"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func TestEncoder(t *testing.T) {
	assert := assert.New(t)
	var buf bytes.Buffer
	enc := NewGifEncoder(16, 16)
	enc.Writer = &buf

	ramp := tensor.New(tensor.WithShape(1, 1, 4, 4), tensor.WithBacking(tensor.Range(tensor.Float32, 0, 16)))
	flat := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float32{3, 3, 3, math32.NaN()}))
	for i, m := range []*tensor.Dense{ramp, flat} {
		if err := enc.Encode(crl.Frame{Name: "pr", Level: i, Map: m}); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	assert.Equal(2, enc.Len())
	assert.Error(enc.Encode(crl.Frame{Name: "empty"}))
	assert.Error(enc.Encode(crl.Frame{Name: "vector", Map: tensor.New(tensor.WithShape(4), tensor.Of(tensor.Float32))}))

	if err := enc.Flush(); err != nil {
		t.Fatal(err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(g.Image, 2)

	// nearest scaling of the ramp: top left is the minimum, bottom right the maximum
	im := g.Image[0]
	assert.Equal(uint8(0), im.ColorIndexAt(enc.padW, enc.padH))
	assert.Equal(uint8(255), im.ColorIndexAt(enc.padW+15, enc.padH+15))
	// a constant map renders black
	assert.Equal(uint8(0), g.Image[1].ColorIndexAt(enc.padW+5, enc.padH+5))
}

func TestFlushWithoutWriter(t *testing.T) {
	assert.Error(t, NewGifEncoder(4, 4).Flush())
}

var _ crl.OutputEncoder = &Encoder{}
