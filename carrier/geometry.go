package carrier

import (
	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/memutils"
)

const (
	// PulsesPerCycle is the number of level samples, delays and turn-off points in one cycle
	PulsesPerCycle = 25
	// CBsPerCycle counts the turn-on and tick descriptors plus three per pulse
	CBsPerCycle = 2 + 3*PulsesPerCycle
	// CyclesPerBlock is the number of cycles one block of carrier pages holds
	CyclesPerBlock = 80
	// SuperCycle is the period of the turn-on table in cycles
	SuperCycle = 800
	// SuperLevel is the period of the turn-off table in pulses
	SuperLevel = 20000

	servoMillis = 20
)

var ErrGeometry = errors.New("carrier does not fit the arena")

// BufferCycles returns the number of cycles the carrier must hold to cover bufferMillis. The
// horizon is rounded up to whole 20ms servo frames, then to whole super cycles.
func BufferCycles(bufferMillis, tickMicros int) int {
	servoCycles := memutils.DivCeil(bufferMillis, servoMillis)
	cycles := SuperCycle * servoCycles / tickMicros
	return memutils.RoundUp(cycles, SuperCycle)
}

// BufferBlocks returns the number of carrier blocks a carrier of cycles cycles occupies
func BufferBlocks(cycles int) int {
	return memutils.DivCeil(cycles, CyclesPerBlock)
}

func checkTick(tickMicros int) error {
	switch tickMicros {
	case 1, 2, 4, 5, 8, 10:
		return nil
	}
	return errors.Newf("tick of %d microseconds is not one of 1, 2, 4, 5, 8 or 10", tickMicros)
}

func onSlots(cycles int) int {
	if cycles < SuperCycle {
		return cycles
	}
	return SuperCycle
}

func offSlots(cycles int) int {
	levels := cycles * PulsesPerCycle
	if levels < SuperLevel {
		return levels + 1
	}
	return SuperLevel + 1
}

func checkGeometry(a *arena.Arena, cycles int) error {
	if cycles < 1 {
		return errors.Newf("carrier needs at least one cycle, got %d", cycles)
	}

	for _, need := range []struct {
		name     string
		count    int
		capacity int
	}{
		{"control blocks", cycles * CBsPerCycle, a.CarrierCBCapacity()},
		{"level samples", cycles * PulsesPerCycle, a.CarrierLevelCapacity()},
		{"tick samples", cycles, a.CarrierTickCapacity()},
		{"turn-on entries", onSlots(cycles), a.CarrierOnCapacity()},
		{"turn-off entries", offSlots(cycles), a.CarrierOffCapacity()},
	} {
		if need.count > need.capacity {
			return errors.Mark(errors.Newf("%d cycles need %d %s, the carrier pages hold %d",
				cycles, need.count, need.name, need.capacity), ErrGeometry)
		}
	}

	return nil
}
