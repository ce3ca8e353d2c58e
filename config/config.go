// Package config loads the configuration of the waveform subsystem from defaults, an optional
// yaml file and WAVEDMA_ environment variables, and turns it into the options the other packages
// take.
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/wavedma/wavedma"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/busmem"
	"github.com/wavedma/wavedma/carrier"
	"github.com/wavedma/wavedma/periph"
	"github.com/wavedma/wavedma/wave"
	"golang.org/x/exp/slog"
)

const (
	// FileName is the config file wavectl reads from its working directory
	FileName = "wavedma.yml"
	// EnvPrefix starts every environment variable that overrides the config, e.g.
	// WAVEDMA_WAVES_MAXWAVES=100
	EnvPrefix = "WAVEDMA_"
)

// Memory selects where bus memory comes from
type Memory struct {
	// Mode is auto, pagemap, mailbox or heap
	Mode                string `koanf:"Mode" yaml:"Mode"`
	MaxBlocks           int    `koanf:"MaxBlocks" yaml:"MaxBlocks"`
	DramBus             uint32 `koanf:"DramBus" yaml:"DramBus"`
	MemFlag             uint32 `koanf:"MemFlag" yaml:"MemFlag"`
	RetryAttempts       int    `koanf:"RetryAttempts" yaml:"RetryAttempts"`
	RetryIntervalMillis int    `koanf:"RetryIntervalMillis" yaml:"RetryIntervalMillis"`
}

// Carrier configures the primary channel
type Carrier struct {
	Channel int `koanf:"Channel" yaml:"Channel"`
	// Pacer is pcm or pwm. Waves are paced by the other one.
	Pacer        string `koanf:"Pacer" yaml:"Pacer"`
	TickMicros   int    `koanf:"TickMicros" yaml:"TickMicros"`
	BufferMillis int    `koanf:"BufferMillis" yaml:"BufferMillis"`
	// MaxBufferMillis sizes the memory budget unless Memory.MaxBlocks is set
	MaxBufferMillis int `koanf:"MaxBufferMillis" yaml:"MaxBufferMillis"`
}

// Waves configures the secondary channel and the wave registry
type Waves struct {
	Channel         int    `koanf:"Channel" yaml:"Channel"`
	MaxWaves        int    `koanf:"MaxWaves" yaml:"MaxWaves"`
	MaxPulses       int    `koanf:"MaxPulses" yaml:"MaxPulses"`
	MaxMicros       uint64 `koanf:"MaxMicros" yaml:"MaxMicros"`
	MaxChainNesting int    `koanf:"MaxChainNesting" yaml:"MaxChainNesting"`
	MaxLoopCount    int    `koanf:"MaxLoopCount" yaml:"MaxLoopCount"`
	MaxChainDelay   int    `koanf:"MaxChainDelay" yaml:"MaxChainDelay"`
	LeadInMicros    int    `koanf:"LeadInMicros" yaml:"LeadInMicros"`
}

// Layout is the page map of the descriptor arena
type Layout struct {
	PageSize        int `koanf:"PageSize" yaml:"PageSize"`
	PagesPerBlock   int `koanf:"PagesPerBlock" yaml:"PagesPerBlock"`
	WaveBlocks      int `koanf:"WaveBlocks" yaml:"WaveBlocks"`
	CarrierCBs      int `koanf:"CarrierCBs" yaml:"CarrierCBs"`
	CarrierLevels   int `koanf:"CarrierLevels" yaml:"CarrierLevels"`
	CarrierOff      int `koanf:"CarrierOff" yaml:"CarrierOff"`
	CarrierTicks    int `koanf:"CarrierTicks" yaml:"CarrierTicks"`
	CarrierOn       int `koanf:"CarrierOn" yaml:"CarrierOn"`
	CarrierPad      int `koanf:"CarrierPad" yaml:"CarrierPad"`
	WaveCBs         int `koanf:"WaveCBs" yaml:"WaveCBs"`
	WaveOOL         int `koanf:"WaveOOL" yaml:"WaveOOL"`
	ChainPages      int `koanf:"ChainPages" yaml:"ChainPages"`
	ChainCBsPerPage int `koanf:"ChainCBsPerPage" yaml:"ChainCBsPerPage"`
	CountersPerPage int `koanf:"CountersPerPage" yaml:"CountersPerPage"`
	CounterRadix    int `koanf:"CounterRadix" yaml:"CounterRadix"`
	CounterDigits   int `koanf:"CounterDigits" yaml:"CounterDigits"`
}

// Config is everything wavectl and Open need
type Config struct {
	// Addr is the address wavectl serve listens at
	Addr string `koanf:"Addr" yaml:"Addr"`
	// LogLevel is debug, info, warn or error
	LogLevel string `koanf:"LogLevel" yaml:"LogLevel"`
	// Simulate runs on heap memory and a simulated DMA engine instead of the hardware
	Simulate   bool   `koanf:"Simulate" yaml:"Simulate"`
	PeriphBase uint32 `koanf:"PeriphBase" yaml:"PeriphBase"`

	Memory  Memory  `koanf:"Memory" yaml:"Memory"`
	Carrier Carrier `koanf:"Carrier" yaml:"Carrier"`
	Waves   Waves   `koanf:"Waves" yaml:"Waves"`
	Layout  Layout  `koanf:"Layout" yaml:"Layout"`
}

// Defaults returns the stock configuration
func Defaults() Config {
	layout := arena.DefaultLayout()

	return Config{
		Addr:       ":8000",
		LogLevel:   "info",
		PeriphBase: periph.DefaultPeriphBase,
		Memory: Memory{
			Mode:                busmem.ModeAuto.String(),
			DramBus:             busmem.DefaultDramBus,
			MemFlag:             busmem.DefaultMemFlag,
			RetryAttempts:       busmem.DefaultRetryAttempts,
			RetryIntervalMillis: int(busmem.DefaultRetryInterval.Milliseconds()),
		},
		Carrier: Carrier{
			Channel:         carrier.DefaultChannel,
			Pacer:           carrier.DefaultPacer.String(),
			TickMicros:      wavedma.DefaultTickMicros,
			BufferMillis:    wavedma.DefaultBufferMillis,
			MaxBufferMillis: wavedma.DefaultMaxBufferMillis,
		},
		Waves: Waves{
			Channel:         wave.DefaultChannel,
			MaxWaves:        wave.DefaultMaxWaves,
			MaxPulses:       wave.DefaultMaxPulses,
			MaxMicros:       wave.DefaultMaxMicros,
			MaxChainNesting: wave.DefaultMaxChainNesting,
			MaxLoopCount:    wave.DefaultMaxLoopCount,
			MaxChainDelay:   wave.DefaultMaxChainDelay,
			LeadInMicros:    wave.DefaultLeadInMicros,
		},
		Layout: Layout{
			PageSize:        layout.PageSize,
			PagesPerBlock:   layout.PagesPerBlock,
			WaveBlocks:      layout.WaveBlocks,
			CarrierCBs:      layout.Carrier.CBs,
			CarrierLevels:   layout.Carrier.Levels,
			CarrierOff:      layout.Carrier.Off,
			CarrierTicks:    layout.Carrier.Ticks,
			CarrierOn:       layout.Carrier.On,
			CarrierPad:      layout.Carrier.Pad,
			WaveCBs:         layout.Wave.CBs,
			WaveOOL:         layout.Wave.OOL,
			ChainPages:      layout.Chain.Pages,
			ChainCBsPerPage: layout.Chain.CBsPerPage,
			CountersPerPage: layout.Chain.CountersPerPage,
			CounterRadix:    layout.Chain.CounterRadix,
			CounterDigits:   layout.Chain.CounterDigits,
		},
	}
}

// Load layers the defaults, the yaml file at path and the environment. A missing file is not an
// error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not load the defaults")
	}

	if path != "" {
		err = k.Load(file.Provider(path), yaml.Parser())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "could not load %s", path)
		}
	}

	// Environment keys are upper case, config keys are not
	keys := make(map[string]string)
	for _, key := range k.Keys() {
		keys[strings.ToUpper(key)] = key
	}
	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		name := strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "_", ".")
		return keys[name]
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not load the environment")
	}

	var c Config
	err = k.Unmarshal("", &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not decode the configuration")
	}
	return c, nil
}

// Level returns the configured log level
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Newf("unknown log level %q", c.LogLevel)
}

// Options translates the configuration into the options of wavedma.Open
func (c Config) Options() (wavedma.Options, error) {
	mode, ok := busmem.ParseMemAllocMode(strings.ToLower(c.Memory.Mode))
	if !ok {
		return wavedma.Options{}, errors.Newf("unknown memory mode %q", c.Memory.Mode)
	}

	pacer, ok := periph.ParsePacer(strings.ToLower(c.Carrier.Pacer))
	if !ok {
		return wavedma.Options{}, errors.Newf("unknown pacer %q", c.Carrier.Pacer)
	}

	if c.Carrier.Channel == c.Waves.Channel {
		return wavedma.Options{}, errors.Newf("carrier and waves both claim DMA channel %d", c.Carrier.Channel)
	}

	return wavedma.Options{
		Memory: busmem.CreateOptions{
			Mode:          mode,
			MaxBlocks:     c.Memory.MaxBlocks,
			DramBus:       c.Memory.DramBus,
			MemFlag:       c.Memory.MemFlag,
			RetryAttempts: c.Memory.RetryAttempts,
			RetryInterval: time.Duration(c.Memory.RetryIntervalMillis) * time.Millisecond,
		},
		Layout: arena.Layout{
			PageSize:      c.Layout.PageSize,
			PagesPerBlock: c.Layout.PagesPerBlock,
			WaveBlocks:    c.Layout.WaveBlocks,
			Carrier: arena.CarrierLayout{
				CBs:    c.Layout.CarrierCBs,
				Levels: c.Layout.CarrierLevels,
				Off:    c.Layout.CarrierOff,
				Ticks:  c.Layout.CarrierTicks,
				On:     c.Layout.CarrierOn,
				Pad:    c.Layout.CarrierPad,
			},
			Wave: arena.WaveLayout{
				CBs: c.Layout.WaveCBs,
				OOL: c.Layout.WaveOOL,
			},
			Chain: arena.ChainLayout{
				Pages:           c.Layout.ChainPages,
				CBsPerPage:      c.Layout.ChainCBsPerPage,
				CountersPerPage: c.Layout.CountersPerPage,
				CounterRadix:    c.Layout.CounterRadix,
				CounterDigits:   c.Layout.CounterDigits,
			},
		},
		Carrier: carrier.Options{
			Channel: c.Carrier.Channel,
			Pacer:   pacer,
		},
		TickMicros:      c.Carrier.TickMicros,
		BufferMillis:    c.Carrier.BufferMillis,
		MaxBufferMillis: c.Carrier.MaxBufferMillis,
		Waves: wave.CreateOptions{
			Channel:         c.Waves.Channel,
			MaxWaves:        c.Waves.MaxWaves,
			MaxPulses:       c.Waves.MaxPulses,
			MaxMicros:       c.Waves.MaxMicros,
			MaxChainNesting: c.Waves.MaxChainNesting,
			MaxLoopCount:    c.Waves.MaxLoopCount,
			MaxChainDelay:   c.Waves.MaxChainDelay,
			LeadInMicros:    c.Waves.LeadInMicros,
		},
		PeriphBase: c.PeriphBase,
		Simulate:   c.Simulate || mode == busmem.ModeHeap,
	}, nil
}
