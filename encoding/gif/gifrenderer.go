package gif

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/golang/freetype/truetype"
	"github.com/gorgonia/crl"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi             = 72.0
	fontsize        = 10.0
	lineheight      = 1.2
	dummyLongString = `upsampled_flow6_to_5 #00`
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

var globPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{uint8(i)}
	}
	return p
}()

// Encoder renders frames as the gray scale images of an animated GIF, according to
// the crl.OutputEncoder interface. Every map is min/max normalised and scaled to H x W,
// with its name and value range written underneath.
type Encoder struct {
	H, W  int // size of the map area
	Delay int // per frame, in 100ths of a second
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	padH, padW  int
	frameW      int
	initialized bool
}

// NewGifEncoder with the height and width of the map area.
func NewGifEncoder(h, w int) *Encoder {
	return &Encoder{
		H:     h,
		W:     w,
		Delay: 100,
		padH:  4,
		padW:  4,

		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: 0},
	}
}

func lineHeight() int { return int(math.Ceil(fontsize * lineheight * dpi / 72)) }

// Encode a frame. Only the first (H, W) plane of the map is rendered.
func (enc *Encoder) Encode(f crl.Frame) error {
	if f.Map == nil {
		return errors.Errorf("frame %q has no map", f.Name)
	}
	shape := f.Map.Shape()
	if shape.Dims() < 2 {
		return errors.Errorf("frame %q: cannot render a map of shape %v", f.Name, shape)
	}
	data, ok := f.Map.Data().([]float32)
	if !ok {
		return errors.Errorf("frame %q holds %v, expected float32", f.Name, f.Map.Dtype())
	}
	m, n := shape[shape.Dims()-2], shape[shape.Dims()-1]
	if len(data) < m*n || m*n == 0 {
		return errors.Errorf("frame %q: not enough data for a %dx%d plane", f.Name, m, n)
	}

	if !enc.initialized {
		// lazy init of specifications
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Src = image.Black
		enc.Drawer.Face = enc.face
		enc.frameW = maxInt(enc.W, font.MeasureString(enc.face, dummyLongString).Ceil()) + 2*enc.padW
		enc.initialized = true
	}

	rows := crl.MakeIterator(data[:m*n], m, n)
	defer crl.ReturnIterator(m, n, rows)
	min, max := valueRange(rows)

	dy := lineHeight()
	im := image.NewPaletted(image.Rect(0, 0, enc.frameW, enc.H+2*dy+3*enc.padH), globPalette)
	draw.Draw(im, im.Bounds(), image.White, image.Point{}, draw.Src)

	scale := max - min
	for y := 0; y < enc.H; y++ {
		row := rows[y*m/enc.H]
		for x := 0; x < enc.W; x++ {
			v := row[x*n/enc.W]
			var g uint8
			if scale > 0 && !math32.IsNaN(v) && !math32.IsInf(v, 0) {
				g = uint8(255 * (v - min) / scale)
			}
			im.SetColorIndex(enc.padW+x, enc.padH+y, g)
		}
	}

	enc.Dst = im
	y := enc.padH + enc.H + enc.padH + dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("%s #%d", f.Name, f.Level))
	y += dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("%.3g .. %.3g", min, max))

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, enc.Delay)
	return nil
}

// Len returns the number of frames encoded so far.
func (enc *Encoder) Len() int { return len(enc.out.Image) }

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if enc.Writer == nil {
		return errors.New("no writer to flush to")
	}
	return gif.EncodeAll(enc.Writer, enc.out)
}

// valueRange returns the smallest and largest finite values.
func valueRange(rows [][]float32) (min, max float32) {
	min, max = math32.Inf(1), math32.Inf(-1)
	for _, row := range rows {
		for _, v := range row {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	if min > max {
		return 0, 0
	}
	return
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
