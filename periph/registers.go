package periph

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
)

//go:generate mockgen -source registers.go -destination ./mock_periph/mock_registers.go

// Registers is the peripheral surface the waveform engine drives. Every method is a handful of
// register writes and returns without waiting on the DMA engine.
type Registers interface {
	// ResetDMA aborts whatever the channel is doing and zeroes its control block address
	ResetDMA(channel int)
	// StartDMA resets the channel, points it at the control block at bus address cb and starts it
	StartDMA(channel int, cb uint32)
	// DMAControlBlock returns the bus address of the control block the channel is executing, or 0
	// once the channel has finished
	DMAControlBlock(channel int) uint32
	// StartPacer configures the clock feeding pacer for one FIFO word per tickMicros and enables
	// the pacer's DMA requests
	StartPacer(pacer Pacer, tickMicros int) error
	// StopHardwarePWM turns off hardware PWM output on both PWM channels, unless the PWM block is
	// serving as a pacer
	StopHardwarePWM()
}

const maxDMAChannel = 14

// RegisterBlocks are process views of the peripheral register blocks
type RegisterBlocks struct {
	DMA   []byte
	Clock []byte
	PCM   []byte
	PWM   []byte
}

// Mapped drives the real register blocks
type Mapped struct {
	blocks RegisterBlocks
	sleep  func(time.Duration)

	pacing [2]bool
	unmap  func() error
}

var _ Registers = &Mapped{}

// NewMapped wraps register blocks that are already mapped. Open maps the real ones.
func NewMapped(blocks RegisterBlocks) *Mapped {
	return &Mapped{
		blocks: blocks,
		sleep:  time.Sleep,
		unmap:  func() error { return nil },
	}
}

func reg(block []byte, word int) *uint32 {
	return (*uint32)(unsafe.Pointer(&block[word*4]))
}

func read(block []byte, word int) uint32 {
	return atomic.LoadUint32(reg(block, word))
}

func write(block []byte, word int, value uint32) {
	atomic.StoreUint32(reg(block, word), value)
}

func (m *Mapped) dmaReg(channel, word int) *uint32 {
	if channel < 0 || channel > maxDMAChannel {
		panic(errors.AssertionFailedf("DMA channel %d out of range [0, %d]", channel, maxDMAChannel))
	}
	return reg(m.blocks.DMA, channel*dmaChannelWords+word)
}

func (m *Mapped) ResetDMA(channel int) {
	atomic.StoreUint32(m.dmaReg(channel, dmaCS), DMAChannelReset)
	atomic.StoreUint32(m.dmaReg(channel, dmaConblkAd), 0)
}

func (m *Mapped) StartDMA(channel int, cb uint32) {
	cs := m.dmaReg(channel, dmaCS)

	atomic.StoreUint32(cs, DMAChannelReset)
	atomic.StoreUint32(cs, DMAInterrupt|DMAEnd)
	atomic.StoreUint32(m.dmaReg(channel, dmaConblkAd), cb)
	atomic.StoreUint32(m.dmaReg(channel, dmaDebug), dmaDebugClearErrs)
	atomic.StoreUint32(cs, DMAWaitOnWrites|DMAPanicPriority(8)|DMAPriority(8)|DMAActive)
}

func (m *Mapped) DMAControlBlock(channel int) uint32 {
	return atomic.LoadUint32(m.dmaReg(channel, dmaConblkAd))
}

func (m *Mapped) StartPacer(pacer Pacer, tickMicros int) error {
	if tickMicros < 1 || tickMicros > 10 {
		return errors.Newf("tick of %d microseconds is out of range [1, 10]", tickMicros)
	}

	ctl, div := clkPCMCtl, clkPCMDiv
	if pacer == PacerPWM {
		ctl, div = clkPWMCtl, clkPWMDiv
	}

	// PLLD runs at 500 MHz, so 50 divisions per microsecond shift out pacerBits bits
	m.startClock(ctl, div, uint32(50*tickMicros))

	if pacer == PacerPWM {
		m.startPWM()
	} else {
		m.startPCM()
	}
	m.pacing[pacer] = true

	m.sleep(2 * time.Millisecond)
	return nil
}

func (m *Mapped) startClock(ctl, div int, divI uint32) {
	clk := m.blocks.Clock

	// Kill the clock if busy, anything else isn't reliable
	for read(clk, ctl)&clkCtlBusy != 0 {
		write(clk, ctl, clkPasswd|clkCtlKill)
	}

	write(clk, div, clkPasswd|clkDivI(divI))
	m.sleep(10 * time.Microsecond)

	write(clk, ctl, clkPasswd|clkSrcPLLD)
	m.sleep(10 * time.Microsecond)

	write(clk, ctl, read(clk, ctl)|clkPasswd|clkCtlEnab)
}

func (m *Mapped) startPWM() {
	pwm := m.blocks.PWM

	write(pwm, pwmCtl, 0)
	m.sleep(10 * time.Microsecond)
	write(pwm, pwmSta, ^uint32(0))
	m.sleep(10 * time.Microsecond)
	write(pwm, pwmRng1, pacerBits)
	m.sleep(10 * time.Microsecond)

	write(pwm, pwmDmac, pwmDmacENAB|pwmDmacPanic(15)|15)
	m.sleep(10 * time.Microsecond)
	write(pwm, pwmCtl, pwmCtlCLRF1)
	m.sleep(10 * time.Microsecond)
	write(pwm, pwmCtl, pwmCtlUSEF1|pwmCtlMODE1|pwmCtlPWEN1)
}

func (m *Mapped) startPCM() {
	pcm := m.blocks.PCM

	write(pcm, pcmCS, 0)
	m.sleep(time.Millisecond)

	for _, word := range []int{pcmFifo, pcmMode, pcmRxc, pcmTxc, pcmDreq, pcmInten, pcmIntstc, pcmGray} {
		write(pcm, word, 0)
	}
	m.sleep(time.Millisecond)

	write(pcm, pcmMode, pcmModeFLen(pacerBits-1))
	write(pcm, pcmTxc, pcmTxcCH1EN|pcmTxcCH1Wid(pacerBits-8))

	write(pcm, pcmCS, read(pcm, pcmCS)|pcmCSSTBY)
	m.sleep(time.Millisecond)

	write(pcm, pcmCS, read(pcm, pcmCS)|pcmCSTXCLR)
	write(pcm, pcmCS, read(pcm, pcmCS)|pcmCSDMAEN)
	write(pcm, pcmDreq, pcmDreqTxPanic(16)|pcmDreqTxReqL(30))
	write(pcm, pcmIntstc, 0b1111)

	write(pcm, pcmCS, read(pcm, pcmCS)|pcmCSEN)
	write(pcm, pcmCS, read(pcm, pcmCS)|pcmCSTXON)
}

func (m *Mapped) StopHardwarePWM() {
	if m.pacing[PacerPWM] {
		return
	}

	pwm := m.blocks.PWM
	write(pwm, pwmCtl, read(pwm, pwmCtl)&^(pwmCtlPWEN1|pwmCtlPWEN2))
}

// Close unmaps the register blocks if Open mapped them
func (m *Mapped) Close() error {
	return m.unmap()
}
