package wavedma

import (
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/busmem"
	"github.com/wavedma/wavedma/carrier"
	"github.com/wavedma/wavedma/periph"
	"github.com/wavedma/wavedma/wave"
)

const (
	DefaultTickMicros   = 5
	DefaultBufferMillis = busmem.DefaultBufferMillis

	// DefaultMaxBufferMillis is the longest carrier horizon the default memory budget covers
	DefaultMaxBufferMillis = 10000
)

// Options configures Open. Zero values take the defaults.
type Options struct {
	// Memory selects the bus memory strategy. PagesPerBlock and PageSize are taken from Layout. A
	// zero MaxBlocks is derived from MaxBufferMillis, so a horizon beyond it fails in Open.
	Memory busmem.CreateOptions
	// Layout places descriptors in the pages. A zero PageSize selects arena.DefaultLayout and a
	// zero CarrierBlocks is derived from the carrier's cycle count.
	Layout arena.Layout

	Carrier carrier.Options
	// TickMicros is the carrier's tick: 1, 2, 4, 5, 8 or 10
	TickMicros int
	// BufferMillis is how far ahead the carrier ring reaches
	BufferMillis int
	// MaxBufferMillis is the longest horizon the memory budget allows
	MaxBufferMillis int
	// CarrierCycles overrides the cycle count derived from BufferMillis and TickMicros
	CarrierCycles int

	Waves wave.CreateOptions

	// PeriphBase is the physical address of the peripheral block
	PeriphBase uint32
	// Simulate runs everything on heap memory and a simulated DMA engine
	Simulate bool
}

func (o *Options) applyDefaults() {
	if o.Layout.PageSize == 0 {
		carrierBlocks := o.Layout.CarrierBlocks
		o.Layout = arena.DefaultLayout()
		o.Layout.CarrierBlocks = carrierBlocks
	}
	if o.TickMicros == 0 {
		o.TickMicros = DefaultTickMicros
	}
	if o.BufferMillis == 0 {
		o.BufferMillis = DefaultBufferMillis
	}
	if o.MaxBufferMillis == 0 {
		o.MaxBufferMillis = DefaultMaxBufferMillis
	}
	if o.CarrierCycles == 0 {
		o.CarrierCycles = carrier.BufferCycles(o.BufferMillis, o.TickMicros)
	}
	if o.Layout.CarrierBlocks == 0 {
		o.Layout.CarrierBlocks = carrier.BufferBlocks(o.CarrierCycles)
	}
	if o.Carrier.Channel == 0 {
		o.Carrier.Channel = carrier.DefaultChannel
	}
	if o.PeriphBase == 0 {
		o.PeriphBase = periph.DefaultPeriphBase
	}

	if o.Memory.MaxBlocks == 0 {
		o.Memory.MaxBlocks = carrier.BufferBlocks(carrier.BufferCycles(o.MaxBufferMillis, o.TickMicros)) + o.Layout.WaveBlocks
	}

	o.Memory.PagesPerBlock = o.Layout.PagesPerBlock
	o.Memory.PageSize = o.Layout.PageSize
	o.Memory.BufferMillis = o.BufferMillis
	if o.Simulate {
		o.Memory.Mode = busmem.ModeHeap
	}

	o.Waves.CarrierPacer = o.Carrier.Pacer
}
