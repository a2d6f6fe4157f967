package dispnet

// Config configures DispFulNet.
type Config struct {
	NGF        int // base number of filters
	MaxDisp    int // largest displacement searched by the correlation, at 1/4 resolution
	CorrStride int // step between searched displacements

	BatchSize     int
	Channels      int // image channels
	Height, Width int // image size, multiples of 64

	// TiedEncoder shares the first two convolutions between the left and right
	// images. By default each image gets its own.
	TiedEncoder bool

	// BatchAxisFinalConcat concatenates the inputs of the full resolution head along
	// the batch axis instead of the channel axis. Shapes then no longer line up and
	// Init fails; it is kept to reproduce networks built that way.
	BatchAxisFinalConcat bool

	Seed int64 // seed of the weight initialisation
}

// DefaultConf is the configuration of the published network for images of the given size.
func DefaultConf(height, width int) Config {
	return Config{
		NGF:        64,
		MaxDisp:    40,
		CorrStride: 1,

		BatchSize: 1,
		Channels:  3,
		Height:    height,
		Width:     width,
		Seed:      1,
	}
}

func (conf Config) IsValid() bool {
	return conf.NGF >= 4 &&
		conf.NGF%4 == 0 &&
		conf.MaxDisp >= 0 &&
		conf.CorrStride >= 1 &&
		conf.BatchSize >= 1 &&
		conf.Channels >= 1 &&
		conf.Height >= 64 && conf.Height%64 == 0 &&
		conf.Width >= 64 && conf.Width%64 == 0
}
