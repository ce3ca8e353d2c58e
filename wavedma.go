// Package wavedma brings up the whole waveform subsystem of a process: bus memory, the
// descriptor arena, the carrier on the primary DMA channel and the wave engine on the secondary
// one. Only one subsystem may be open at a time, since both channels and both pacers are
// process-wide hardware.
package wavedma

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/busmem"
	"github.com/wavedma/wavedma/carrier"
	"github.com/wavedma/wavedma/internal/dmasim"
	"github.com/wavedma/wavedma/memutils"
	"github.com/wavedma/wavedma/periph"
	"github.com/wavedma/wavedma/wave"
	"golang.org/x/exp/slog"
)

var ErrAlreadyOpen = errors.New("waveform subsystem already open; it must be closed first")

var (
	openMutex sync.Mutex
	current   *Subsystem
)

// Subsystem is an open waveform subsystem
type Subsystem struct {
	logger  *slog.Logger
	options Options

	regs      periph.Registers
	closeRegs func() error
	machine   *dmasim.Machine

	allocator *busmem.Allocator
	blocks    []*busmem.Block

	arena   *arena.Arena
	carrier *carrier.Generator
	waves   *wave.Engine
}

// Open maps the peripherals, allocates every block the carrier and the wave pages need, starts
// the carrier and returns the subsystem. Any failure undoes what was already done.
func Open(logger *slog.Logger, options Options) (*Subsystem, error) {
	openMutex.Lock()
	defer openMutex.Unlock()

	if current != nil {
		return nil, ErrAlreadyOpen
	}

	options.applyDefaults()
	s := &Subsystem{
		logger:    logger,
		options:   options,
		closeRegs: func() error { return nil },
	}

	err := s.open()
	if err != nil {
		return nil, errors.CombineErrors(err, s.teardown())
	}

	current = s

	logger.LogAttrs(context.Background(), slog.LevelDebug, "waveform subsystem open",
		slog.String("memory", s.allocator.Mode().String()),
		slog.Int("blocks", len(s.blocks)),
		slog.Int("carrier.channel", s.carrier.Channel()),
		slog.String("carrier.pacer", s.carrier.Pacer().String()),
		slog.Int("carrier.cycles", s.carrier.Cycles()),
		slog.Int("carrier.tick", options.TickMicros),
		slog.Int("wave.channel", s.waves.Channel()),
		slog.Bool("simulated", options.Simulate),
	)

	return s, nil
}

func (s *Subsystem) open() error {
	if !s.options.Simulate {
		mapped, err := periph.Open(s.options.PeriphBase)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "could not map the peripherals"), busmem.ErrInitFailed)
		}
		s.regs = mapped
		s.closeRegs = mapped.Close
	}

	var err error
	s.allocator, err = busmem.New(s.logger, s.options.Memory)
	if err != nil {
		return err
	}

	s.blocks, err = s.allocator.AllocateBlocks(s.options.Layout.CarrierBlocks + s.options.Layout.WaveBlocks)
	if err != nil {
		return err
	}

	s.arena, err = arena.New(s.blocks, s.options.Layout)
	if err != nil {
		return err
	}

	if s.options.Simulate {
		s.machine = dmasim.New(s.arena)
		s.regs = s.machine
	}

	s.carrier = carrier.New(s.logger, s.arena, s.regs, s.options.Carrier)
	err = s.carrier.Start(s.options.TickMicros, s.options.CarrierCycles)
	if err != nil {
		return err
	}

	s.waves, err = wave.New(s.logger, s.arena, s.regs, s.options.Waves)
	return err
}

// teardown undoes whatever open managed to do, newest first
func (s *Subsystem) teardown() error {
	var err error

	if s.waves != nil {
		s.waves.Destroy()
	}
	if s.carrier != nil {
		s.carrier.Stop()
	}

	if s.allocator != nil {
		if s.blocks != nil {
			err = errors.CombineErrors(err, s.allocator.Release(s.blocks))
		}
		err = errors.CombineErrors(err, s.allocator.Destroy())
	}

	return errors.CombineErrors(err, s.closeRegs())
}

// Close stops both channels and returns every resource Open took. The subsystem must not be used
// afterward.
func (s *Subsystem) Close() error {
	openMutex.Lock()
	defer openMutex.Unlock()

	if current != s {
		return errors.New("waveform subsystem is not open")
	}

	current = nil
	return s.teardown()
}

func (s *Subsystem) Arena() *arena.Arena         { return s.arena }
func (s *Subsystem) Carrier() *carrier.Generator { return s.carrier }
func (s *Subsystem) Waves() *wave.Engine         { return s.waves }
func (s *Subsystem) Registers() periph.Registers { return s.regs }
func (s *Subsystem) Simulator() *dmasim.Machine  { return s.machine }
func (s *Subsystem) Options() Options            { return s.options }

// BuildStatsString returns a json document describing memory, the carrier and the wave registry.
// If detailed is true, the registry entries are listed too.
func (s *Subsystem) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	root := writer.Object()

	memory := root.Name("Memory").Object()
	s.allocator.StatsJsonData(memory)
	memory.End()

	gen := root.Name("Carrier").Object()
	gen.Name("Channel").Int(s.carrier.Channel())
	gen.Name("Pacer").String(s.carrier.Pacer().String())
	gen.Name("Cycles").Int(s.carrier.Cycles())
	gen.Name("TickMicros").Int(s.options.TickMicros)
	gen.Name("CurrentCycle").Int(s.carrier.CurrentCycle())
	gen.End()

	var stats memutils.DetailedStatistics
	s.waves.CalculateStatistics(&stats)

	waves := root.Name("Waves").Object()
	waves.Name("Channel").Int(s.waves.Channel())
	waves.Name("Busy").Bool(s.waves.Busy())
	waves.Name("Live").Int(stats.AllocationCount)
	waves.Name("Reserved").Int(stats.ReservedRangeCount)
	waves.Name("ControlBlocks").Int(stats.DescriptorCount)
	waves.Name("Words").Int(stats.WordCount)
	if detailed {
		info := waves.Name("Entries").Array()
		for id := 0; id < stats.EntryCount; id++ {
			entry, ok := s.waves.Info(id)
			if !ok {
				continue
			}
			obj := info.Object()
			obj.Name("Id").Int(entry.ID)
			obj.Name("Deleted").Bool(entry.Deleted)
			obj.Name("ControlBlocks").Int(entry.NumCB)
			obj.Name("BottomWords").Int(entry.NumBottomOOL)
			obj.Name("TopWords").Int(entry.NumTopOOL)
			obj.End()
		}
		info.End()
	}
	waves.End()

	root.End()
	return string(writer.Bytes())
}
