// Package periph holds the BCM283x peripheral registers the waveform engine programs: DMA
// channels, the PCM and PWM blocks used as pacers, their clock generators and the GPIO and system
// timer registers descriptors read and write.
package periph

// Bus addresses of registers named in control blocks
const (
	PeriBus uint32 = 0x7E000000

	GPSet0Bus  = PeriBus | gpioOffset | gpSet0*4
	GPClr0Bus  = PeriBus | gpioOffset | gpClr0*4
	GPLev0Bus  = PeriBus | gpioOffset | gpLev0*4
	SystCLOBus = PeriBus | systOffset | systCLO*4
	PCMFifoBus = PeriBus | pcmOffset | pcmFifo*4
	PWMFifoBus = PeriBus | pwmOffset | pwmFifo*4
)

// Offsets of the register blocks from the peripheral base
const (
	systOffset = 0x003000
	dmaOffset  = 0x007000
	clkOffset  = 0x101000
	gpioOffset = 0x200000
	pcmOffset  = 0x203000
	pwmOffset  = 0x20C000
)

// DefaultPeriphBase is the physical peripheral base of BCM2836 and BCM2837
const DefaultPeriphBase uint32 = 0x3F000000

// Word offsets inside the register blocks
const (
	gpSet0 = 7
	gpClr0 = 10
	gpLev0 = 13

	systCLO = 1

	dmaChannelWords = 0x40
	dmaCS           = 0
	dmaConblkAd     = 1
	dmaDebug        = 8

	pwmCtl  = 0
	pwmSta  = 1
	pwmDmac = 2
	pwmRng1 = 4
	pwmFifo = 6

	pcmCS     = 0
	pcmFifo   = 1
	pcmMode   = 2
	pcmRxc    = 3
	pcmTxc    = 4
	pcmDreq   = 5
	pcmInten  = 6
	pcmIntstc = 7
	pcmGray   = 8

	clkPCMCtl = 38
	clkPCMDiv = 39
	clkPWMCtl = 40
	clkPWMDiv = 41
)

// DMA channel control and status bits
const (
	DMAChannelReset   uint32 = 1 << 31
	DMAWaitOnWrites   uint32 = 1 << 28
	DMAInterrupt      uint32 = 1 << 2
	DMAEnd            uint32 = 1 << 1
	DMAActive         uint32 = 1 << 0
	dmaDebugClearErrs uint32 = 7
)

func DMAPanicPriority(x uint32) uint32 { return x << 20 }
func DMAPriority(x uint32) uint32      { return x << 16 }

// Transfer information bits of a control block
const (
	TINoWideBursts uint32 = 1 << 26
	TISrcInc       uint32 = 1 << 8
	TIDestDREQ     uint32 = 1 << 6
	TIDestInc      uint32 = 1 << 4
	TIWaitResp     uint32 = 1 << 3

	// NormalDMA is the transfer information of every unpaced descriptor
	NormalDMA = TINoWideBursts | TIWaitResp
)

func TIPeripheralMapping(x uint32) uint32 { return x << 16 }

const (
	pwmCtlPWEN1 uint32 = 1 << 0
	pwmCtlMODE1 uint32 = 1 << 1
	pwmCtlUSEF1 uint32 = 1 << 5
	pwmCtlCLRF1 uint32 = 1 << 6
	pwmCtlPWEN2 uint32 = 1 << 8
	pwmDmacENAB uint32 = 1 << 31

	pcmCSEN     uint32 = 1 << 0
	pcmCSTXON   uint32 = 1 << 2
	pcmCSTXCLR  uint32 = 1 << 3
	pcmCSDMAEN  uint32 = 1 << 9
	pcmCSSTBY   uint32 = 1 << 25
	pcmTxcCH1EN uint32 = 1 << 30

	clkPasswd  uint32 = 0x5A << 24
	clkCtlBusy uint32 = 1 << 7
	clkCtlKill uint32 = 1 << 5
	clkCtlEnab uint32 = 1 << 4
	clkSrcPLLD uint32 = 6

	// pacerBits is the word width the pacers shift out, one tick per word
	pacerBits = 10
)

func pwmDmacPanic(x uint32) uint32   { return x << 8 }
func pcmModeFLen(x uint32) uint32    { return x << 10 }
func pcmTxcCH1Wid(x uint32) uint32   { return x << 16 }
func pcmDreqTxPanic(x uint32) uint32 { return x << 24 }
func pcmDreqTxReqL(x uint32) uint32  { return x << 8 }
func clkDivI(x uint32) uint32        { return x << 12 }
