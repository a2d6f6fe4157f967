package flownet

// Config configures the encoder/decoder.
type Config struct {
	NGF            int  // filters of the first convolution; deeper stages use multiples of it
	InputChannels  int  // two stacked RGB images give 6
	OutputChannels int  // 2 for optical flow, 1 for disparity
	BatchNorm      bool // batch normalisation in the encoder instead of biases

	BatchSize     int
	Height, Width int // multiples of 64

	Seed int64 // seed of the weight initialisation
}

// FlowNetSConf is the optical flow network for images of the given size.
func FlowNetSConf(height, width int) Config {
	return Config{
		NGF:            64,
		InputChannels:  6,
		OutputChannels: 2,
		BatchNorm:      true,

		BatchSize: 1,
		Height:    height,
		Width:     width,
		Seed:      1,
	}
}

// DispResNetConf is the same network predicting a single disparity channel.
func DispResNetConf(height, width int) Config {
	conf := FlowNetSConf(height, width)
	conf.OutputChannels = 1
	return conf
}

func (conf Config) IsValid() bool {
	return conf.NGF >= 1 &&
		conf.InputChannels >= 1 &&
		conf.OutputChannels >= 1 &&
		conf.BatchSize >= 1 &&
		conf.Height >= 64 && conf.Height%64 == 0 &&
		conf.Width >= 64 && conf.Width%64 == 0
}
