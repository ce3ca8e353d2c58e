// Package dmasim executes DMA control blocks out of an arena without hardware. A Machine stands in
// for the peripheral registers: it holds a GPIO level register, a free running system timer that
// only advances while a paced FIFO is fed, and the state of every DMA channel.
package dmasim

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/periph"
)

const channelCount = 15

var ErrBusFault = errors.New("control block touched an address outside the arena")

type channel struct {
	cb      uint32
	visited []uint32
}

type pacer struct {
	running    bool
	tickMicros int
}

// Machine is a simulated DMA engine and register file
type Machine struct {
	mutex sync.Mutex
	arena *arena.Arena

	level    uint32
	now      uint32
	channels [channelCount]channel
	pacers   [2]pacer
	pwmStops int
}

var _ periph.Registers = &Machine{}

func New(a *arena.Arena) *Machine {
	return &Machine{arena: a}
}

func (m *Machine) channel(ch int) *channel {
	if ch < 0 || ch >= channelCount {
		panic(errors.AssertionFailedf("DMA channel %d out of range [0, %d)", ch, channelCount))
	}
	return &m.channels[ch]
}

func (m *Machine) ResetDMA(ch int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.channel(ch).cb = 0
}

func (m *Machine) StartDMA(ch int, cb uint32) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := m.channel(ch)
	c.cb = cb
	c.visited = c.visited[:0]
}

func (m *Machine) DMAControlBlock(ch int) uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.channel(ch).cb
}

func (m *Machine) StartPacer(p periph.Pacer, tickMicros int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if tickMicros < 1 || tickMicros > 10 {
		return errors.Newf("tick of %d microseconds is out of range [1, 10]", tickMicros)
	}
	m.pacers[p] = pacer{running: true, tickMicros: tickMicros}
	return nil
}

func (m *Machine) StopHardwarePWM() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.pwmStops++
}

// PacerTick returns the tick a pacer was started with, or 0 if it was never started
func (m *Machine) PacerTick(p periph.Pacer) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.pacers[p].tickMicros
}

// PWMStops returns how often hardware PWM was stopped
func (m *Machine) PWMStops() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.pwmStops
}

// Level returns the GPIO level register
func (m *Machine) Level() uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.level
}

// Now returns the system timer in microseconds
func (m *Machine) Now() uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.now
}

// Visited returns the bus addresses of the control blocks a channel has loaded since it was last
// started, in order
func (m *Machine) Visited(ch int) []uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := m.channel(ch)
	return append([]uint32(nil), c.visited...)
}

// VisitCount returns how often a channel loaded the control block at bus
func (m *Machine) VisitCount(ch int, bus uint32) int {
	count := 0
	for _, visited := range m.Visited(ch) {
		if visited == bus {
			count++
		}
	}
	return count
}

// Run executes up to maxSteps control blocks on a channel and returns the number executed. It
// stops early when the channel reaches a block whose next is 0, leaving the channel idle.
func (m *Machine) Run(ch int, maxSteps int) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := m.channel(ch)
	steps := 0
	for ; steps < maxSteps && c.cb != 0; steps++ {
		cb, ok := m.arena.ResolveCB(c.cb)
		if !ok {
			return steps, errors.Mark(errors.Newf("channel %d loaded a control block at %#x", ch, c.cb), ErrBusFault)
		}

		// The engine latches the whole block before transferring, so a block rewriting its own
		// next field only affects the following visit
		block := cb.Read()
		c.visited = append(c.visited, c.cb)

		err := m.transfer(block)
		if err != nil {
			return steps, errors.Wrapf(err, "channel %d control block at %#x", ch, c.cb)
		}

		c.cb = block.Next
	}

	return steps, nil
}

func (m *Machine) transfer(block arena.ControlBlock) error {
	words := int(block.Length / 4)
	for i := 0; i < words; i++ {
		src, dest := block.Source, block.Dest
		if block.Info&periph.TISrcInc != 0 {
			src += uint32(4 * i)
		}
		if block.Info&periph.TIDestInc != 0 {
			dest += uint32(4 * i)
		}

		value, err := m.load(src)
		if err != nil {
			return err
		}

		err = m.store(block.Info, dest, value)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *Machine) load(bus uint32) (uint32, error) {
	switch bus {
	case periph.GPLev0Bus:
		return m.level, nil
	case periph.SystCLOBus:
		return m.now, nil
	}

	ptr, ok := m.arena.Resolve(bus)
	if !ok {
		return 0, errors.Mark(errors.Newf("read from %#x", bus), ErrBusFault)
	}
	return atomic.LoadUint32(ptr), nil
}

func (m *Machine) store(info, bus, value uint32) error {
	switch bus {
	case periph.GPSet0Bus:
		m.level |= value
		return nil
	case periph.GPClr0Bus:
		m.level &^= value
		return nil
	case periph.PCMFifoBus, periph.PWMFifoBus:
		p := periph.PacerPCM
		if bus == periph.PWMFifoBus {
			p = periph.PacerPWM
		}

		if info != p.TimedDMA() {
			return errors.Newf("unpaced write to the %s FIFO", p)
		}
		if !m.pacers[p].running {
			return errors.Newf("write to the %s FIFO before the pacer was started", p)
		}

		m.now += uint32(m.pacers[p].tickMicros)
		return nil
	}

	ptr, ok := m.arena.Resolve(bus)
	if !ok {
		return errors.Mark(errors.Newf("write to %#x", bus), ErrBusFault)
	}
	atomic.StoreUint32(ptr, value)
	return nil
}
