package crl

import (
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func TestNormalize(t *testing.T) {
	a := []float32{0, 0.25, 0.5, 1}
	Normalize(a)
	assert.Equal(t, []float32{-1, -0.5, 0, 1}, a)
}

func TestLoadImage(t *testing.T) {
	assert := assert.New(t)
	dir, err := os.MkdirTemp("", "crl")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	img := image.NewRGBA(image.Rect(0, 0, 10, 7))
	for y := 0; y < 7; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{255, 0, 51, 255})
		}
	}
	filename := filepath.Join(dir, "solid.png")
	f, err := os.Create(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := LoadImage(filename, 4, 6)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(tensor.Shape{3, 4, 6}, got.Shape())
	data := got.Data().([]float32)
	want := []float32{1, -1, 0.2*2 - 1}
	for c := 0; c < 3; c++ {
		for _, v := range data[c*24 : (c+1)*24] {
			// one step of 8 bit rounding in the resize
			assert.True(math32.Abs(v-want[c]) < 0.01, "channel %d: want %v got %v", c, want[c], v)
		}
	}

	_, err = LoadImage(filepath.Join(dir, "missing.png"), 4, 6)
	assert.Error(err)

	garbage := filepath.Join(dir, "garbage.png")
	if err := ioutil.WriteFile(garbage, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadImage(garbage, 4, 6)
	assert.Error(err)
}

func TestStackPair(t *testing.T) {
	assert := assert.New(t)
	a := tensor.New(tensor.WithShape(3, 2, 2), tensor.WithBacking(tensor.Range(tensor.Float32, 0, 12)))
	b := tensor.New(tensor.WithShape(3, 2, 2), tensor.WithBacking(tensor.Range(tensor.Float32, 12, 24)))
	stacked, err := StackPair(a, b)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(tensor.Shape{6, 2, 2}, stacked.Shape())
	assert.Equal(tensor.Range(tensor.Float32, 0, 24), stacked.Data())

	batchA, err := Batch(a, a)
	if err != nil {
		t.Fatal(err)
	}
	batchB, err := Batch(b, b)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(tensor.Shape{2, 3, 2, 2}, batchA.Shape())
	stacked, err = StackPair(batchA, batchB)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(tensor.Shape{2, 6, 2, 2}, stacked.Shape())
	assert.Equal(float32(12), stacked.Data().([]float32)[12])

	_, err = StackPair(a, batchB)
	assert.Error(err)
	_, err = Batch(a, batchB)
	assert.Error(err)
	_, err = Batch()
	assert.Error(err)
}

func TestIterators(t *testing.T) {
	plane := []float32{0, 1, 2, 3, 4, 5}
	it := MakeIterator(plane, 2, 3)
	assert.Equal(t, [][]float32{{0, 1, 2}, {3, 4, 5}}, it)
	it[1][0] = 30
	assert.Equal(t, float32(30), plane[3])
	ReturnIterator(2, 3, it)

	// borrowed again from the pool
	it = MakeIterator(plane, 2, 3)
	assert.Equal(t, []float32{30, 4, 5}, it[1])
	ReturnIterator(2, 3, it)

	var sums []float32
	err := Planes(tensor.Range(tensor.Float32, 0, 8).([]float32), []int{2, 2, 2}, func(idx int, rows [][]float32) error {
		var s float32
		for _, row := range rows {
			for _, v := range row {
				s += v
			}
		}
		sums = append(sums, s)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []float32{6, 22}, sums)
}

func TestStatistics(t *testing.T) {
	assert := assert.New(t)
	s := MakeStatistics(2)
	ok := tensor.New(tensor.WithShape(1, 1, 2, 2), tensor.WithBacking([]float32{-1, 0, 1, 4}))
	bad := tensor.New(tensor.WithShape(1, 1, 1, 3), tensor.WithBacking([]float32{math32.NaN(), math32.Inf(1), 2}))
	assert.NoError(s.Update("pr4", ok))
	assert.NoError(s.Update("pr2", bad))
	assert.Error(s.Update("f64", tensor.New(tensor.WithShape(2), tensor.Of(tensor.Float64))))

	assert.Equal(2, s.Len())
	assert.Equal([]float32{-1, 2}, s.Min)
	assert.Equal([]float32{4, 2}, s.Max)
	assert.Equal([]float32{1, 2}, s.Mean)
	assert.Equal([]int{0, 2}, s.NonFinite)

	dir, err := os.MkdirTemp("", "crl")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "stats.csv")
	if err := s.Dump(filename); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Len(lines, 3)
	assert.Equal("name,shape,min,max,mean,nonfinite", lines[0])
	assert.True(strings.HasPrefix(lines[1], "pr4,"))
	assert.True(strings.Contains(lines[1], "(1, 1, 2, 2)"), lines[1])
	assert.True(strings.HasSuffix(lines[2], ",2"))
}
