package periph

// Pacer is a peripheral whose FIFO throttles paced descriptors: every word written to its FIFO
// waits for one tick of the pacer's clock
type Pacer int32

const (
	PacerPCM Pacer = iota
	PacerPWM
)

var pacerMapping = map[Pacer]string{
	PacerPCM: "pcm",
	PacerPWM: "pwm",
}

func (p Pacer) String() string {
	return pacerMapping[p]
}

// ParsePacer is the inverse of Pacer.String
func ParsePacer(s string) (Pacer, bool) {
	for pacer, name := range pacerMapping {
		if name == s {
			return pacer, true
		}
	}
	return PacerPCM, false
}

// Other returns the pacer that is not p. The carrier and waveforms always use different pacers.
func (p Pacer) Other() Pacer {
	if p == PacerPCM {
		return PacerPWM
	}
	return PacerPCM
}

// DREQ is the peripheral number the DMA engine waits on for this pacer
func (p Pacer) DREQ() uint32 {
	if p == PacerPCM {
		return 2
	}
	return 5
}

// FIFOBus is the bus address paced descriptors write to
func (p Pacer) FIFOBus() uint32 {
	if p == PacerPCM {
		return PCMFifoBus
	}
	return PWMFifoBus
}

// TimedDMA is the transfer information of a descriptor paced by p
func (p Pacer) TimedDMA() uint32 {
	return NormalDMA | TIDestDREQ | TIPeripheralMapping(p.DREQ())
}
