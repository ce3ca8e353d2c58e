// Package carrier runs the primary DMA channel through an endless ring of control blocks that
// turns GPIOs on and off at fixed positions of the ring, samples the GPIO levels after every
// pulse and stamps the system timer once per cycle. The ring is paced by the main pacer so that
// every cycle takes PulsesPerCycle ticks.
package carrier

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/periph"
	"golang.org/x/exp/slog"
)

var (
	ErrRunning    = errors.New("carrier is already running")
	ErrNotRunning = errors.New("carrier is not running")
	ErrPosition   = errors.New("carrier table position out of range")
)

const (
	DefaultChannel = 14
	DefaultPacer   = periph.PacerPCM
)

// Options selects the hardware the carrier claims
type Options struct {
	// Channel is the primary DMA channel
	Channel int
	// Pacer is the main pacer. Waveforms use the other one.
	Pacer periph.Pacer
}

// Generator owns the carrier pages of an arena and the primary DMA channel
type Generator struct {
	logger  *slog.Logger
	arena   *arena.Arena
	regs    periph.Registers
	options Options

	mutex      sync.Mutex
	running    bool
	cycles     int
	tickMicros int
}

func New(logger *slog.Logger, a *arena.Arena, regs periph.Registers, options Options) *Generator {
	return &Generator{
		logger:  logger,
		arena:   a,
		regs:    regs,
		options: options,
	}
}

func (g *Generator) Pacer() periph.Pacer { return g.options.Pacer }
func (g *Generator) Channel() int        { return g.options.Channel }

// Cycles returns the number of cycles in the ring, 0 before Start
func (g *Generator) Cycles() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.cycles
}

// Start builds a ring of cycles cycles, starts the main pacer with one tick per tickMicros and
// then starts the primary channel at the first block of the ring. The turn-on and turn-off tables
// start out empty.
func (g *Generator) Start(tickMicros, cycles int) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.running {
		return ErrRunning
	}

	err := checkTick(tickMicros)
	if err != nil {
		return err
	}

	err = checkGeometry(g.arena, cycles)
	if err != nil {
		return err
	}

	g.clearTables(cycles)
	g.build(cycles)

	err = g.regs.StartPacer(g.options.Pacer, tickMicros)
	if err != nil {
		return errors.Wrap(err, "could not start the main pacer")
	}

	g.regs.StartDMA(g.options.Channel, g.arena.CarrierCB(0).Bus)
	g.running = true
	g.cycles = cycles
	g.tickMicros = tickMicros

	g.logger.LogAttrs(context.Background(), slog.LevelDebug, "carrier started",
		slog.Int("channel", g.options.Channel),
		slog.String("pacer", g.options.Pacer.String()),
		slog.Int("tickMicros", tickMicros),
		slog.Int("cycles", cycles),
		slog.Int("controlBlocks", cycles*CBsPerCycle),
	)
	return nil
}

func (g *Generator) clearTables(cycles int) {
	for i := 0; i < onSlots(cycles); i++ {
		g.arena.CarrierOn(i).Store(0)
	}
	for i := 0; i < offSlots(cycles); i++ {
		g.arena.CarrierOff(i).Store(0)
	}
	for i := 0; i < cycles*PulsesPerCycle; i++ {
		g.arena.CarrierLevel(i).Store(0)
	}
	for i := 0; i < cycles; i++ {
		g.arena.CarrierTick(i).Store(0)
	}
	for page := 0; page < g.arena.CarrierPages(); page++ {
		g.arena.CarrierPeriphData(page).Store(1)
	}
}

func (g *Generator) build(cycles int) {
	perPage := g.arena.Layout().Carrier.CBs
	timed := g.options.Pacer.TimedDMA()
	fifo := g.options.Pacer.FIFOBus()

	total := cycles * CBsPerCycle
	b := 0
	emit := func(info, src, dest uint32) {
		// The last block closes the ring
		next := g.arena.CarrierCB(0).Bus
		if b+1 < total {
			next = g.arena.CarrierCB(b + 1).Bus
		}

		g.arena.CarrierCB(b).Write(arena.ControlBlock{
			Info:   info,
			Source: src,
			Dest:   dest,
			Length: 4,
			Next:   next,
		})
		b++
	}

	level := 0
	for cycle := 0; cycle < cycles; cycle++ {
		emit(periph.NormalDMA, g.arena.CarrierOn(cycle%SuperCycle).Bus, periph.GPSet0Bus)
		emit(periph.NormalDMA, periph.SystCLOBus, g.arena.CarrierTick(cycle).Bus)

		for pulse := 0; pulse < PulsesPerCycle; pulse++ {
			emit(periph.NormalDMA, periph.GPLev0Bus, g.arena.CarrierLevel(level).Bus)
			// Each delay feeds the pacer from the page it lives in
			emit(timed, g.arena.CarrierPeriphData(b/perPage).Bus, fifo)
			emit(periph.NormalDMA, g.arena.CarrierOff(level%SuperLevel+1).Bus, periph.GPClr0Bus)
			level++
		}
	}
}

// Stop halts the primary channel. GPIO levels stay as last written.
func (g *Generator) Stop() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.running {
		return
	}

	g.regs.ResetDMA(g.options.Channel)
	g.running = false
}

// SetOn adds mask to the GPIOs turned on at the start of cycle pos of every super cycle
func (g *Generator) SetOn(pos int, mask uint32) error {
	word, err := g.onWord(pos)
	if err != nil {
		return err
	}
	word.Or(mask)
	return nil
}

// ClearOn removes mask from the GPIOs turned on at the start of cycle pos
func (g *Generator) ClearOn(pos int, mask uint32) error {
	word, err := g.onWord(pos)
	if err != nil {
		return err
	}
	word.AndNot(mask)
	return nil
}

// SetOff adds mask to the GPIOs turned off after pulse pos-1 of every super level
func (g *Generator) SetOff(pos int, mask uint32) error {
	word, err := g.offWord(pos)
	if err != nil {
		return err
	}
	word.Or(mask)
	return nil
}

// ClearOff removes mask from the GPIOs turned off after pulse pos-1
func (g *Generator) ClearOff(pos int, mask uint32) error {
	word, err := g.offWord(pos)
	if err != nil {
		return err
	}
	word.AndNot(mask)
	return nil
}

func (g *Generator) onWord(pos int) (arena.Word, error) {
	cycles := g.Cycles()
	if pos < 0 || pos >= onSlots(cycles) {
		return arena.Word{}, errors.Mark(errors.Newf("turn-on position %d out of range [0, %d)", pos, onSlots(cycles)), ErrPosition)
	}
	return g.arena.CarrierOn(pos), nil
}

func (g *Generator) offWord(pos int) (arena.Word, error) {
	cycles := g.Cycles()
	if pos < 1 || pos >= offSlots(cycles) {
		return arena.Word{}, errors.Mark(errors.Newf("turn-off position %d out of range [1, %d)", pos, offSlots(cycles)), ErrPosition)
	}
	return g.arena.CarrierOff(pos), nil
}

// CurrentCycle returns the cycle the primary channel is executing, or -1 when it is stopped
func (g *Generator) CurrentCycle() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.running {
		return -1
	}

	index, ok := g.arena.CarrierCBIndex(g.regs.DMAControlBlock(g.options.Channel))
	if !ok || index >= g.cycles*CBsPerCycle {
		return -1
	}
	return index / CBsPerCycle
}

// Levels returns GPIO level sample pos. Sample n is read at the start of pulse n%PulsesPerCycle
// of cycle n/PulsesPerCycle.
func (g *Generator) Levels(pos int) (uint32, error) {
	cycles := g.Cycles()
	if pos < 0 || pos >= cycles*PulsesPerCycle {
		return 0, errors.Mark(errors.Newf("level position %d out of range [0, %d)", pos, cycles*PulsesPerCycle), ErrPosition)
	}
	return g.arena.CarrierLevel(pos).Load(), nil
}

// Tick returns the system timer as stamped at the start of cycle pos
func (g *Generator) Tick(pos int) (uint32, error) {
	cycles := g.Cycles()
	if pos < 0 || pos >= cycles {
		return 0, errors.Mark(errors.Newf("tick position %d out of range [0, %d)", pos, cycles), ErrPosition)
	}
	return g.arena.CarrierTick(pos).Load(), nil
}
