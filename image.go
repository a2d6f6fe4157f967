package crl

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// LoadImage decodes an image file and resizes it bilinearly to (h, w). The result is
// a (3, h, w) float32 tensor with values in [-1, 1].
func LoadImage(filename string, h, w int) (*tensor.Dense, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", filename)
	}
	return FromImage(img, h, w), nil
}

// FromImage resizes img to (h, w) and converts it to a normalised (3, h, w) tensor.
func FromImage(img image.Image, h, w int) *tensor.Dense {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := h * w
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			px := dst.Pix[y*dst.Stride+4*x:]
			data[i] = float32(px[0]) / 255
			data[plane+i] = float32(px[1]) / 255
			data[2*plane+i] = float32(px[2]) / 255
		}
	}
	Normalize(data)
	return tensor.New(tensor.WithShape(3, h, w), tensor.WithBacking(data))
}

// Normalize maps [0, 1] to [-1, 1] in place, with a mean and deviation of 0.5 for every channel.
func Normalize(a []float32) {
	vecf32.Trans(a, -0.5)
	vecf32.Scale(a, 2)
}

// Batch stacks images of equal shape along a new leading axis.
func Batch(imgs ...*tensor.Dense) (*tensor.Dense, error) {
	if len(imgs) == 0 {
		return nil, errors.New("no images to batch")
	}
	shape := imgs[0].Shape().Clone()
	size := shape.TotalSize()
	data := make([]float32, 0, len(imgs)*size)
	for i, img := range imgs {
		if !img.Shape().Eq(shape) {
			return nil, errors.Errorf("image %d has shape %v, expected %v", i, img.Shape(), shape)
		}
		if img.Dtype() != tensor.Float32 {
			return nil, errors.Errorf("image %d is %v, expected float32", i, img.Dtype())
		}
		src, err := contiguous(img)
		if err != nil {
			return nil, err
		}
		data = append(data, src...)
	}
	return tensor.New(tensor.WithShape(append(tensor.Shape{len(imgs)}, shape...)...), tensor.WithBacking(data)), nil
}

// StackPair concatenates two images along the channel axis, giving the input of
// the FlowNetS family. Both CHW and NCHW tensors are accepted.
func StackPair(a, b *tensor.Dense) (*tensor.Dense, error) {
	if !a.Shape().Eq(b.Shape()) {
		return nil, errors.Errorf("cannot stack %v with %v", a.Shape(), b.Shape())
	}
	var axis int
	switch a.Dims() {
	case 3:
		axis = 0
	case 4:
		axis = 1
	default:
		return nil, errors.Errorf("expected a CHW or NCHW image, got %v", a.Shape())
	}
	retVal, err := a.Concat(axis, b)
	if err != nil {
		return nil, errors.Wrap(err, "stacking pair")
	}
	return retVal, nil
}

func contiguous(t *tensor.Dense) ([]float32, error) {
	if !t.IsMaterializable() {
		return t.Data().([]float32), nil
	}
	c, ok := t.Materialize().(*tensor.Dense)
	if !ok {
		return nil, errors.New("cannot materialize view")
	}
	return c.Data().([]float32), nil
}
