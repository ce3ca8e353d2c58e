package periph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeRegisters() *Mapped {
	m := NewMapped(RegisterBlocks{
		DMA:   make([]byte, 4096),
		Clock: make([]byte, 4096),
		PCM:   make([]byte, 4096),
		PWM:   make([]byte, 4096),
	})
	m.sleep = func(time.Duration) {}
	return m
}

func TestStartDMA(t *testing.T) {
	m := fakeRegisters()

	m.StartDMA(14, 0xC0001000)
	require.Equal(t, DMAWaitOnWrites|DMAPanicPriority(8)|DMAPriority(8)|DMAActive, read(m.blocks.DMA, 14*dmaChannelWords+dmaCS))
	require.Equal(t, uint32(0xC0001000), read(m.blocks.DMA, 14*dmaChannelWords+dmaConblkAd))
	require.Equal(t, uint32(7), read(m.blocks.DMA, 14*dmaChannelWords+dmaDebug))
	require.Equal(t, uint32(0xC0001000), m.DMAControlBlock(14))

	// Other channels are untouched
	require.Equal(t, uint32(0), m.DMAControlBlock(6))

	m.ResetDMA(14)
	require.Equal(t, DMAChannelReset, read(m.blocks.DMA, 14*dmaChannelWords+dmaCS))
	require.Equal(t, uint32(0), m.DMAControlBlock(14))

	require.Panics(t, func() { m.StartDMA(15, 0) })
	require.Panics(t, func() { m.ResetDMA(-1) })
}

func TestStartPacerPWM(t *testing.T) {
	m := fakeRegisters()
	write(m.blocks.PWM, pwmCtl, pwmCtlPWEN1|pwmCtlPWEN2)

	require.NoError(t, m.StartPacer(PacerPWM, 5))

	require.Equal(t, clkPasswd|clkDivI(250), read(m.blocks.Clock, clkPWMDiv))
	require.Equal(t, clkPasswd|clkSrcPLLD|clkCtlEnab, read(m.blocks.Clock, clkPWMCtl))
	require.Equal(t, uint32(0), read(m.blocks.Clock, clkPCMCtl))

	require.Equal(t, uint32(pacerBits), read(m.blocks.PWM, pwmRng1))
	require.Equal(t, pwmDmacENAB|pwmDmacPanic(15)|15, read(m.blocks.PWM, pwmDmac))
	require.Equal(t, pwmCtlUSEF1|pwmCtlMODE1|pwmCtlPWEN1, read(m.blocks.PWM, pwmCtl))

	// The pacer keeps running
	m.StopHardwarePWM()
	require.Equal(t, pwmCtlUSEF1|pwmCtlMODE1|pwmCtlPWEN1, read(m.blocks.PWM, pwmCtl))
}

func TestStartPacerPCM(t *testing.T) {
	m := fakeRegisters()

	require.NoError(t, m.StartPacer(PacerPCM, 1))

	require.Equal(t, clkPasswd|clkDivI(50), read(m.blocks.Clock, clkPCMDiv))
	require.Equal(t, clkPasswd|clkSrcPLLD|clkCtlEnab, read(m.blocks.Clock, clkPCMCtl))

	require.Equal(t, pcmModeFLen(pacerBits-1), read(m.blocks.PCM, pcmMode))
	require.Equal(t, pcmTxcCH1EN|pcmTxcCH1Wid(pacerBits-8), read(m.blocks.PCM, pcmTxc))
	require.Equal(t, pcmDreqTxPanic(16)|pcmDreqTxReqL(30), read(m.blocks.PCM, pcmDreq))
	require.Equal(t, uint32(0b1111), read(m.blocks.PCM, pcmIntstc))
	require.Equal(t, pcmCSSTBY|pcmCSTXCLR|pcmCSDMAEN|pcmCSEN|pcmCSTXON, read(m.blocks.PCM, pcmCS))
}

func TestStartPacerRejectsTick(t *testing.T) {
	m := fakeRegisters()

	require.Error(t, m.StartPacer(PacerPCM, 0))
	require.Error(t, m.StartPacer(PacerPWM, 11))
	require.Equal(t, uint32(0), read(m.blocks.Clock, clkPCMDiv))
	require.Equal(t, uint32(0), read(m.blocks.Clock, clkPWMDiv))
}

func TestStopHardwarePWM(t *testing.T) {
	m := fakeRegisters()
	write(m.blocks.PWM, pwmCtl, pwmCtlPWEN1|pwmCtlMODE1|pwmCtlPWEN2)

	m.StopHardwarePWM()
	require.Equal(t, pwmCtlMODE1, read(m.blocks.PWM, pwmCtl))
}

func TestPacer(t *testing.T) {
	require.Equal(t, PacerPWM, PacerPCM.Other())
	require.Equal(t, PacerPCM, PacerPWM.Other())
	require.Equal(t, uint32(0x7E20C018), PacerPWM.FIFOBus())
	require.Equal(t, uint32(0x7E203004), PacerPCM.FIFOBus())
	require.Equal(t, NormalDMA|TIDestDREQ|TIPeripheralMapping(5), PacerPWM.TimedDMA())

	pacer, ok := ParsePacer("pwm")
	require.True(t, ok)
	require.Equal(t, PacerPWM, pacer)
	_, ok = ParsePacer("spi")
	require.False(t, ok)
	require.Equal(t, "pcm", PacerPCM.String())
}

func TestBusAddresses(t *testing.T) {
	require.Equal(t, uint32(0x7E20001C), GPSet0Bus)
	require.Equal(t, uint32(0x7E200028), GPClr0Bus)
	require.Equal(t, uint32(0x7E200034), GPLev0Bus)
	require.Equal(t, uint32(0x7E003004), SystCLOBus)
}
