// Package wave compiles pulse trains into DMA control blocks, keeps the compiled waves in a
// registry and plays them, alone or sequenced by chain programs, on the secondary DMA channel.
//
// Pulses are staged first: AddGeneric overlays a new train on the staged one, Create compiles the
// staged train into the wave pages of the arena and returns its id. A wave's control blocks
// never change after Create, except for the next field of its last block, which Play and chain
// programs point wherever playback should continue.
package wave

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/internal/utils"
	"github.com/wavedma/wavedma/memutils"
	"github.com/wavedma/wavedma/memutils/metadata"
	"github.com/wavedma/wavedma/periph"
	"golang.org/x/exp/slog"
)

// Engine owns the wave pages of an arena and the secondary DMA channel
type Engine struct {
	logger  *slog.Logger
	mutex   utils.OptionalMutex
	options CreateOptions

	arena *arena.Arena
	regs  periph.Registers
	pacer periph.Pacer

	staged [2][]Pulse
	active int
	stats  StagingStatistics

	stack        *metadata.StackMetadata
	pacerStarted bool
}

// StagingStatistics describes the staged pulse train: its length in microseconds, its pulse count
// and the control blocks it will compile to
type StagingStatistics struct {
	Micros        memutils.Usage
	Pulses        memutils.Usage
	ControlBlocks memutils.Usage
}

// Info describes a compiled wave. Descriptors occupy [BottomCB, TopCB], bottom words start at
// BottomOOL and top words are handed out downward from TopOOL.
type Info struct {
	ID           int
	BottomCB     int
	TopCB        int
	BottomOOL    int
	TopOOL       int
	NumCB        int
	NumBottomOOL int
	NumTopOOL    int
	Deleted      bool
}

func New(logger *slog.Logger, a *arena.Arena, regs periph.Registers, options CreateOptions) (*Engine, error) {
	options.applyDefaults()

	layout := a.Layout().Chain
	if capacity := pow(layout.CounterRadix, layout.CounterDigits); capacity < options.MaxLoopCount {
		return nil, errors.Newf("counters of %d digits in radix %d cannot count %d loops",
			layout.CounterDigits, layout.CounterRadix, options.MaxLoopCount)
	}

	e := &Engine{
		logger:  logger,
		options: options,
		arena:   a,
		regs:    regs,
		pacer:   options.CarrierPacer.Other(),
		stack: metadata.NewStackMetadata(metadata.StackLimits{
			CBBase:       a.WaveCBBase(),
			CBCapacity:   a.WaveCBCapacity(),
			WordBase:     a.WaveOOLBase(),
			WordCapacity: a.WaveOOLCapacity(),
			MaxEntries:   options.MaxWaves,
		}),
	}
	e.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0

	e.stats.Micros.Max = int(options.MaxMicros)
	e.stats.Pulses.Max = options.MaxPulses
	e.stats.ControlBlocks.Max = a.WaveCBCapacity() - a.WaveCBBase()

	a.WavePeriphData().Store(1)

	logger.LogAttrs(context.Background(), slog.LevelDebug, "wave engine created",
		slog.Int("channel", options.Channel),
		slog.String("pacer", e.pacer.String()),
		slog.Int("controlBlocks", e.stats.ControlBlocks.Max),
		slog.Int("oolWords", a.WaveOOLCapacity()-a.WaveOOLBase()),
		slog.Int("chainControlBlocks", a.ChainCapacity()),
		slog.Int("counters", a.CounterCapacity()),
	)

	return e, nil
}

// pow returns base**exp, saturating well above any loop count
func pow(base, exp int) int {
	result := 1
	for i := 0; i < exp && result < 1<<31; i++ {
		result *= base
	}
	return result
}

// Pacer returns the pacer wave delays are counted by
func (e *Engine) Pacer() periph.Pacer { return e.pacer }

// Channel returns the secondary DMA channel
func (e *Engine) Channel() int { return e.options.Channel }

// Staged returns a copy of the staged pulse train
func (e *Engine) Staged() []Pulse {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return append([]Pulse(nil), e.staged[e.active]...)
}

// StagingStatistics returns the statistics of the staged pulse train. High-water marks cover
// every train staged since the engine was created.
func (e *Engine) StagingStatistics() StagingStatistics {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.stats
}

func (e *Engine) resetStaging() {
	e.staged[0] = e.staged[0][:0]
	e.staged[1] = e.staged[1][:0]
	e.active = 0

	e.stats.Micros.Reset()
	e.stats.Pulses.Reset()
	e.stats.ControlBlocks.Reset()
}

// AddNew discards the staged pulse train
func (e *Engine) AddNew() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.resetStaging()
}

// AddGeneric overlays pulses on the staged train, both starting at time 0, and returns the number
// of pulses in the result. The staged train is unchanged if an error is returned.
func (e *Engine) AddGeneric(pulses []Pulse) (int, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(pulses) > e.options.MaxPulses {
		return 0, errors.Wrapf(ErrTooManyPulses, "%d pulses, limit is %d", len(pulses), e.options.MaxPulses)
	}

	for index, pulse := range pulses {
		if pulse.Delay > MaxDelayMicros {
			return 0, errors.Wrapf(ErrDelayTooLong, "pulse %d waits %d microseconds, limit is %d", index, pulse.Delay, MaxDelayMicros)
		}
	}

	merged := Combine(pulses, e.staged[e.active])
	if len(merged) > e.options.MaxPulses {
		return 0, errors.Wrapf(ErrTooManyPulses, "%d pulses, limit is %d", len(merged), e.options.MaxPulses)
	}

	micros := Duration(merged)
	if micros > e.options.MaxMicros {
		return 0, errors.Wrapf(ErrWaveTooLong, "%d microseconds, limit is %d", micros, e.options.MaxMicros)
	}

	for index, pulse := range merged {
		if pulse.Delay > MaxDelayMicros {
			return 0, errors.Wrapf(ErrDelayTooLong, "merged pulse %d waits %d microseconds, limit is %d", index, pulse.Delay, MaxDelayMicros)
		}
	}

	inactive := 1 - e.active
	e.staged[inactive] = append(e.staged[inactive][:0], merged...)
	e.active = inactive

	e.stats.Micros.Set(int(micros))
	e.stats.Pulses.Set(len(merged))
	e.stats.ControlBlocks.Set(estimate(merged).CBs)

	return len(merged), nil
}

// Clear discards the staged pulse train and every wave. Waves that are playing keep playing out
// of memory the next Create will overwrite.
func (e *Engine) Clear() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.resetStaging()
	e.stack.Clear()
}

// Create compiles the staged pulse train into a new wave and returns its id. The staged train is
// consumed.
func (e *Engine) Create() (int, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	pulses := e.staged[e.active]
	if len(pulses) == 0 {
		return -1, ErrEmptyWaveform
	}

	shape := estimate(pulses)

	request, err := e.stack.CreateAllocationRequest(shape)
	switch {
	case errors.Is(err, metadata.ErrDescriptorsExhausted):
		return -1, noSpace(err, ErrTooManyDescriptors)
	case errors.Is(err, metadata.ErrWordsExhausted):
		return -1, noSpace(err, ErrTooManyOOLWords)
	case errors.Is(err, metadata.ErrEntriesExhausted):
		return -1, noSpace(err, ErrNoWaveformID)
	case err != nil:
		return -1, err
	}

	actual := e.compile(pulses, request.Item)
	if actual != shape {
		validator := memutils.ValidatorFunc(func() error {
			return errors.Wrapf(memutils.AccountingError, "wave %d estimated %+v, compiled %+v", request.Handle, shape, actual)
		})
		memutils.DebugValidate(validator)
		e.logger.LogAttrs(context.Background(), slog.LevelError, "[ACCOUNTING] compiled wave differs from its estimate",
			slog.Int("wave.id", int(request.Handle)),
			slog.Any("estimate", shape),
			slog.Any("compiled", actual),
		)
	}

	err = e.stack.Alloc(request, nil)
	if err != nil {
		return -1, err
	}

	e.resetStaging()
	return int(request.Handle), nil
}

func (e *Engine) liveEntry(id int) (metadata.Entry, error) {
	entry, ok := e.stack.Entry(metadata.EntryHandle(id))
	if !ok || entry.Deleted {
		return metadata.Entry{}, errors.Wrapf(ErrBadWaveID, "wave %d", id)
	}
	return entry, nil
}

// Delete releases a wave. Its space only returns to the arena once every wave created after it
// was deleted too.
func (e *Engine) Delete(id int) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	_, err := e.liveEntry(id)
	if err != nil {
		return err
	}

	return e.stack.Free(metadata.EntryHandle(id))
}

// Info describes wave id. ok is false for ids that were never created or whose space was
// reclaimed.
func (e *Engine) Info(id int) (info Info, ok bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	entry, ok := e.stack.Entry(metadata.EntryHandle(id))
	if !ok {
		return Info{}, false
	}

	return Info{
		ID:           id,
		BottomCB:     entry.BottomCB,
		TopCB:        entry.TopCB(),
		BottomOOL:    entry.BottomOOL,
		TopOOL:       entry.TopOOL,
		NumCB:        entry.CBs,
		NumBottomOOL: entry.BottomWords,
		NumTopOOL:    entry.TopWords,
		Deleted:      entry.Deleted,
	}, true
}

// Samples returns the levels and ticks wave id captured during its last playback, in the order
// the pulses requested them
func (e *Engine) Samples(id int) ([]uint32, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	entry, err := e.liveEntry(id)
	if err != nil {
		return nil, err
	}

	samples := make([]uint32, entry.TopWords)
	for i := range samples {
		samples[i] = e.arena.WaveOOL(entry.TopOOL - 1 - i).Load()
	}
	return samples, nil
}

// Dump returns the control blocks of wave id
func (e *Engine) Dump(id int) ([]arena.ControlBlock, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	entry, err := e.liveEntry(id)
	if err != nil {
		return nil, err
	}

	blocks := make([]arena.ControlBlock, entry.CBs)
	for i := range blocks {
		blocks[i] = e.arena.WaveCB(entry.BottomCB + i).Read()
	}
	return blocks, nil
}

// Destroy stops the secondary channel and drops every wave. Waves that were never deleted are
// logged.
func (e *Engine) Destroy() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.pacerStarted {
		e.regs.ResetDMA(e.options.Channel)
	}

	_ = e.stack.VisitAllRegions(func(handle metadata.EntryHandle, entry metadata.Entry) error {
		if !entry.Deleted {
			e.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED WAVE] wave still live at engine destruction",
				slog.Int("wave.id", int(handle)),
				slog.Int("controlBlocks", entry.CBs),
			)
		}
		return nil
	})

	e.stack.Clear()
	e.resetStaging()
}
