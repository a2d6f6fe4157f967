package flownet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorgonia/crl/checkpoint"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func smallConf(conf Config) Config {
	conf.NGF = 4
	return conf
}

func stacked(conf Config, fill func(i int) float32) *tensor.Dense {
	data := make([]float32, conf.BatchSize*conf.InputChannels*conf.Height*conf.Width)
	for i := range data {
		data[i] = fill(i)
	}
	return tensor.New(tensor.WithShape(conf.BatchSize, conf.InputChannels, conf.Height, conf.Width), tensor.WithBacking(data))
}

func TestConfigs(t *testing.T) {
	assert := assert.New(t)
	fs := FlowNetSConf(384, 512)
	assert.True(fs.IsValid())
	assert.Equal(6, fs.InputChannels)
	assert.Equal(2, fs.OutputChannels)

	dr := DispResNetConf(384, 512)
	assert.True(dr.IsValid())
	assert.Equal(1, dr.OutputChannels)
	assert.True(dr.BatchNorm)

	assert.False(FlowNetSConf(100, 64).IsValid())
	assert.False(FlowNetSConf(32, 64).IsValid())
}

func TestPredictionShapes(t *testing.T) {
	var testCases = []struct {
		name string
		conf Config
	}{
		{"flownets", smallConf(FlowNetSConf(64, 128))},
		{"dispresnet", smallConf(DispResNetConf(128, 64))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := New(tc.conf)
			if err := d.Init(); err != nil {
				t.Fatalf("%+v", err)
			}
			preds := d.Predictions()
			if len(preds) != len(Scales) {
				t.Fatalf("expected %d predictions, got %d", len(Scales), len(preds))
			}
			for i, s := range Scales {
				want := tensor.Shape{tc.conf.BatchSize, tc.conf.OutputChannels, tc.conf.Height / s, tc.conf.Width / s}
				assert.Equal(t, want, preds[i].Shape(), "1/%d", s)
			}
		})
	}
}

func TestModes(t *testing.T) {
	conf := smallConf(FlowNetSConf(64, 64))
	conf.BatchNorm = false
	conf.BatchSize = 2
	d := New(conf)
	if err := d.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, Training, d.Mode())

	inferer, err := Infer(d, false)
	if err != nil {
		t.Fatal(err)
	}
	defer inferer.Close()

	input := stacked(conf, func(i int) float32 { return float32(i%13)/6 - 1 })
	out, err := inferer.Predict(input)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	pyramid, ok := out.(Pyramid)
	if !ok {
		t.Fatalf("expected a Pyramid in training mode, got %T", out)
	}
	assert.Len(t, pyramid.Maps(), 5)
	checkFinite(t, pyramid)

	if err := d.SetMode(Evaluation); err != nil {
		t.Fatal(err)
	}
	out, err = inferer.Predict(input)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	single, ok := out.(Single)
	if !ok {
		t.Fatalf("expected a Single in evaluation mode, got %T", out)
	}
	assert.Len(t, single.Maps(), 1)
	assert.Equal(t, tensor.Shape{2, 2, 16, 16}, single.Finest().Shape())
	assert.Equal(t, pyramid.Finest().Data(), single.Finest().Data())
}

func checkFinite(t *testing.T, out Output) {
	t.Helper()
	for i, m := range out.Maps() {
		for _, v := range m.Data().([]float32) {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				t.Fatalf("map %d has non finite value %v", i, v)
			}
		}
	}
}

func param(t *testing.T, d *Net, name string) []float32 {
	t.Helper()
	for _, p := range d.Params() {
		if p.Name == name {
			return p.Node.Value().Data().([]float32)
		}
	}
	t.Fatalf("no parameter %s", name)
	return nil
}

func TestBatchNormFresh(t *testing.T) {
	conf := smallConf(DispResNetConf(64, 64))
	conf.BatchSize = 2
	d := New(conf)
	if err := d.SetMode(Evaluation); err != nil {
		t.Fatal(err)
	}
	if err := d.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, Evaluation, d.Mode())
	for _, v := range param(t, d, "conv1.bn.var") {
		assert.Equal(t, float32(1), v)
	}

	inferer, err := Infer(d, false)
	if err != nil {
		t.Fatal(err)
	}
	defer inferer.Close()

	out, err := inferer.Predict(stacked(conf, func(i int) float32 { return float32(i%7) / 7 }))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{2, 1, 16, 16}, out.Finest().Shape())
	checkFinite(t, out)
	// evaluation does not touch the running statistics
	for _, v := range param(t, d, "conv1.bn.mean") {
		assert.Equal(t, float32(0), v)
	}
}

func TestBatchNormSaveLoad(t *testing.T) {
	dir, err := os.MkdirTemp("", "flownet")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	conf := smallConf(DispResNetConf(64, 64))
	conf.BatchSize = 2
	d := New(conf)
	if err := d.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	inferer, err := Infer(d, false)
	if err != nil {
		t.Fatal(err)
	}
	defer inferer.Close()

	input := stacked(conf, func(i int) float32 { return float32(i%11)/5 - 1 })
	for i := 0; i < 5; i++ {
		if _, err := inferer.Predict(input); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	var moved bool
	for _, v := range param(t, d, "conv1.bn.mean") {
		if v != 0 {
			moved = true
		}
	}
	assert.True(t, moved, "training passes should move the running mean")

	if err := d.SetMode(Evaluation); err != nil {
		t.Fatal(err)
	}
	before, err := inferer.Predict(input)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	checkFinite(t, before)

	filename := filepath.Join(dir, "dispresnet.gob")
	if err := d.Save(filename); err != nil {
		t.Fatalf("%+v", err)
	}
	sd, err := checkpoint.LoadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	assert.Contains(t, sd.Names(), "conv1.bn.mean")
	assert.Contains(t, sd.Names(), "conv1.bn.var")

	conf.Seed = 9
	loaded := New(conf)
	if err := loaded.SetMode(Evaluation); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := loaded.Load(filename); err != nil {
		t.Fatalf("%+v", err)
	}
	inferer2, err := Infer(loaded, false)
	if err != nil {
		t.Fatal(err)
	}
	defer inferer2.Close()
	after, err := inferer2.Predict(input)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDeltaSlice(t, before.Finest().Data(), after.Finest().Data(), 1e-5)
}

func TestPredictWrongShape(t *testing.T) {
	conf := smallConf(FlowNetSConf(64, 64))
	d := New(conf)
	if err := d.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	inferer, err := Infer(d, false)
	if err != nil {
		t.Fatal(err)
	}
	defer inferer.Close()

	_, err = inferer.Predict(tensor.New(tensor.WithShape(1, 3, 64, 64), tensor.Of(tensor.Float32)))
	assert.Error(t, err)
}

func TestParamNames(t *testing.T) {
	bn := New(smallConf(FlowNetSConf(64, 64)))
	if err := bn.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	conf := smallConf(FlowNetSConf(64, 64))
	conf.BatchNorm = false
	plain := New(conf)
	if err := plain.Init(); err != nil {
		t.Fatalf("%+v", err)
	}

	names := func(d *Net) map[string]bool {
		retVal := make(map[string]bool)
		for _, p := range d.Params() {
			retVal[p.Name] = true
		}
		return retVal
	}
	withBN, without := names(bn), names(plain)
	assert.True(t, withBN["conv1.bn.scale"])
	assert.False(t, withBN["conv1.bias"])
	assert.True(t, without["conv1.bias"])
	assert.False(t, without["conv1.bn.scale"])
	for _, n := range []string{"predict_flow2.weight", "upsampled_flow6_to_5.weight", "deconv2.weight", "deconv2.bias"} {
		assert.True(t, without[n], "missing %s", n)
	}

	dot := plain.ToDot()
	for _, n := range []string{"concat2", "concat5", "predict_flow6", "Input"} {
		assert.True(t, strings.Contains(dot, `"`+n+`"`), "missing %s", n)
	}
}

func TestFlowNetSLoader(t *testing.T) {
	dir, err := os.MkdirTemp("", "flownet")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	conf := smallConf(FlowNetSConf(64, 64))
	conf.Seed = 7
	src, err := FlowNetS("", conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.False(t, src.BatchNorm)

	wrapped := filepath.Join(dir, "wrapped.gob")
	if err := src.Save(wrapped); err != nil {
		t.Fatalf("%+v", err)
	}
	sd, err := checkpoint.Extract(src.Params())
	if err != nil {
		t.Fatal(err)
	}
	bare := filepath.Join(dir, "bare.gob")
	if err := checkpoint.SaveFile(bare, sd, nil); err != nil {
		t.Fatal(err)
	}

	conf.Seed = 8
	for _, f := range []string{wrapped, bare} {
		d, err := FlowNetS(f, conf)
		if err != nil {
			t.Fatalf("%s: %+v", f, err)
		}
		want, got := src.Params(), d.Params()
		if len(want) != len(got) {
			t.Fatalf("expected %d params, got %d", len(want), len(got))
		}
		for i := range want {
			assert.Equal(t, want[i].Node.Value().Data(), got[i].Node.Value().Data(), "%s from %s", want[i].Name, f)
		}
	}

	_, err = FlowNetS(filepath.Join(dir, "missing.gob"), conf)
	assert.Error(t, err)

	// a checkpoint of a different width does not fit
	conf.NGF = 8
	_, err = FlowNetS(wrapped, conf)
	assert.Error(t, err)
}

func TestUninitialised(t *testing.T) {
	d := New(FlowNetSConf(64, 64))
	_, err := Infer(d, false)
	assert.Error(t, err)
	assert.Error(t, d.Load("whatever"))
	assert.Error(t, d.Save("whatever"))
	assert.Error(t, New(FlowNetSConf(60, 64)).Init())
}
