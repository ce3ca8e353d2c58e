package wave

import (
	"github.com/wavedma/wavedma/internal/utils"
	"github.com/wavedma/wavedma/periph"
)

type CreateFlags int32

const (
	// CreateExternallySynchronized indicates that the consumer serializes every call into the
	// engine, so the engine does not lock
	CreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	return utils.FlagsToString(f, createFlagsMapping)
}

// Mode selects what a wave does after its last pulse
type Mode int32

const (
	// ModeOneShot stops the secondary channel after the last pulse
	ModeOneShot Mode = iota
	// ModeRepeat jumps back to the first pulse, skipping the lead-in delay
	ModeRepeat
)

var modeMapping = map[Mode]string{
	ModeOneShot: "ModeOneShot",
	ModeRepeat:  "ModeRepeat",
}

func (m Mode) String() string {
	return modeMapping[m]
}

const (
	DefaultChannel         = 6
	DefaultMaxWaves        = 250
	DefaultMaxPulses       = 12000
	DefaultMaxMicros       = 30 * 60 * 1000000
	DefaultMaxChainNesting = 10
	DefaultMaxLoopCount    = 65535
	DefaultMaxChainDelay   = 65535
	DefaultLeadInMicros    = 20

	// MaxDelayMicros is the longest single delay: a delay descriptor feeds four bytes per
	// microsecond through a 30 bit transfer length
	MaxDelayMicros = (1<<30 - 1) / 4

	// tickMicros is the secondary pacer's tick. Every wave delay is counted in these.
	tickMicros = 1
)

// CreateOptions configures an Engine. Zero values take the defaults.
type CreateOptions struct {
	Flags CreateFlags

	// Channel is the secondary DMA channel waves and chains play on
	Channel int
	// CarrierPacer is the pacer the carrier claimed. Waves are paced by the other one.
	CarrierPacer periph.Pacer

	MaxWaves        int
	MaxPulses       int
	MaxMicros       uint64
	MaxChainNesting int
	MaxLoopCount    int
	MaxChainDelay   int
	LeadInMicros    int
}

func (o *CreateOptions) applyDefaults() {
	if o.Channel == 0 {
		o.Channel = DefaultChannel
	}
	if o.MaxWaves == 0 {
		o.MaxWaves = DefaultMaxWaves
	}
	if o.MaxPulses == 0 {
		o.MaxPulses = DefaultMaxPulses
	}
	if o.MaxMicros == 0 {
		o.MaxMicros = DefaultMaxMicros
	}
	if o.MaxChainNesting == 0 {
		o.MaxChainNesting = DefaultMaxChainNesting
	}
	if o.MaxLoopCount == 0 {
		o.MaxLoopCount = DefaultMaxLoopCount
	}
	if o.MaxChainDelay == 0 {
		o.MaxChainDelay = DefaultMaxChainDelay
	}
	if o.LeadInMicros == 0 {
		o.LeadInMicros = DefaultLeadInMicros
	}
}
