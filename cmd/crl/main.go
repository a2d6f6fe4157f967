package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gorgonia/crl"
	"github.com/gorgonia/crl/checkpoint"
	"github.com/gorgonia/crl/dispnet"
	"github.com/gorgonia/crl/encoding/gif"
	"github.com/gorgonia/crl/flownet"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	netName = flag.String("net", "dispfulnet", "network to run: dispfulnet, flownets or dispresnet")
	left    = flag.String("left", "", "left (or first) image")
	right   = flag.String("right", "", "right (or second) image")
	weights = flag.String("weights", "", "checkpoint to load, randomly initialised when empty")
	size    = flag.String("size", "384x768", "network input size HxW, both multiples of 64")
	seed    = flag.Int64("seed", 1, "seed of the random initialisation")
	eval    = flag.Bool("eval", false, "run flownets/dispresnet in evaluation mode")
	gifOut  = flag.String("gif", "", "render the predictions into this gif")
	stats   = flag.String("stats", "", "write per map statistics into this csv")
	dotOut  = flag.String("dot", "", "write the architecture into this dot file")
	corr    = flag.Int("corr", 0, "render this many correlation slices instead of the predictions (dispfulnet)")
	toLog   = flag.Bool("log", false, "log the execution of the graph")
)

func main() {
	flag.Parse()
	if *left == "" || *right == "" {
		flag.Usage()
		os.Exit(2)
	}
	h, w, err := parseSize(*size)
	if err != nil {
		log.Fatal(err)
	}

	l, err := loadBatch(*left, h, w)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	r, err := loadBatch(*right, h, w)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	p, names, dot, err := build(*netName, h, w)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer p.Close()
	if *dotOut != "" {
		if err := ioutil.WriteFile(*dotOut, []byte(dot), 0644); err != nil {
			log.Fatal(err)
		}
	}

	var frames []crl.Frame
	if *corr > 0 {
		c, ok := p.(*dispnet.Inferencer)
		if !ok {
			log.Fatalf("-corr needs dispfulnet, not %s", *netName)
		}
		vol, err := c.Correlate(l, r)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		if frames, err = slices(vol, *corr); err != nil {
			log.Fatalf("%+v", err)
		}
	} else {
		preds, err := p.Predict(l, r)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		for i, pred := range preds {
			frames = append(frames, crl.Frame{Name: names[i], Level: i, Map: pred})
		}
	}
	if el, ok := p.(crl.ExecLogger); ok && *toLog {
		log.Print(el.ExecLog())
	}

	s := crl.MakeStatistics(len(frames))
	for _, f := range frames {
		if err := s.Update(f.Name, f.Map); err != nil {
			log.Fatal(err)
		}
		log.Printf("%-24s %v min %.4f max %.4f mean %.4f", f.Name, f.Map.Shape(), s.Min[s.Len()-1], s.Max[s.Len()-1], s.Mean[s.Len()-1])
	}
	if *stats != "" {
		if err := s.Dump(*stats); err != nil {
			log.Fatal(err)
		}
	}
	if *gifOut != "" {
		if err := render(*gifOut, frames, h, w); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

func parseSize(s string) (h, w int, err error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("size %q is not HxW", s)
	}
	if h, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, errors.Wrapf(err, "height of %q", s)
	}
	if w, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, errors.Wrapf(err, "width of %q", s)
	}
	if h <= 0 || w <= 0 || h%64 != 0 || w%64 != 0 {
		return 0, 0, errors.Errorf("size %q: both sides must be positive multiples of 64", s)
	}
	return h, w, nil
}

func loadBatch(filename string, h, w int) (*tensor.Dense, error) {
	img, err := crl.LoadImage(filename, h, w)
	if err != nil {
		return nil, err
	}
	return crl.Batch(img)
}

// build returns the inferencer, the names of its outputs and its architecture.
func build(name string, h, w int) (crl.Predictor, []string, string, error) {
	switch name {
	case "dispfulnet":
		conf := dispnet.DefaultConf(h, w)
		conf.Seed = *seed
		d := dispnet.New(conf)
		if err := d.Init(); err != nil {
			return nil, nil, "", err
		}
		if *weights != "" {
			sd, err := checkpoint.LoadFile(*weights)
			if err != nil {
				return nil, nil, "", err
			}
			if err := checkpoint.Apply(sd, d.Params()); err != nil {
				return nil, nil, "", err
			}
		}
		inf, err := dispnet.Infer(d, *toLog)
		if err != nil {
			return nil, nil, "", err
		}
		names := make([]string, len(dispnet.Scales))
		for i, s := range dispnet.Scales {
			names[i] = fmt.Sprintf("pr%d", s)
		}
		return inf, names, d.ToDot(), nil
	case "flownets", "dispresnet":
		var d *flownet.Net
		var err error
		if name == "flownets" {
			conf := flownet.FlowNetSConf(h, w)
			conf.Seed = *seed
			d, err = flownet.FlowNetS(*weights, conf)
		} else {
			conf := flownet.DispResNetConf(h, w)
			conf.Seed = *seed
			d = flownet.New(conf)
			if err = d.Init(); err == nil && *weights != "" {
				err = d.Load(*weights)
			}
		}
		if err != nil {
			return nil, nil, "", err
		}
		if *eval {
			if err := d.SetMode(flownet.Evaluation); err != nil {
				return nil, nil, "", err
			}
		}
		inf, err := flownet.Infer(d, *toLog)
		if err != nil {
			return nil, nil, "", err
		}
		names := make([]string, len(flownet.Scales))
		for i, s := range flownet.Scales {
			names[i] = fmt.Sprintf("flow%d", s)
		}
		return pairPredictor{inf}, names, d.ToDot(), nil
	}
	return nil, nil, "", errors.Errorf("unknown network %q", name)
}

func render(filename string, frames []crl.Frame, h, w int) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := gif.NewGifEncoder(h/2, w/2)
	enc.Writer = f
	for _, fr := range frames {
		if err := enc.Encode(fr); err != nil {
			return err
		}
	}
	return enc.Flush()
}
