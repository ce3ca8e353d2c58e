package wave

import (
	"math"

	"github.com/wavedma/wavedma/internal/utils"
	"github.com/wavedma/wavedma/memutils/metadata"
)

// PulseFlags requests samples to be captured when a pulse starts
type PulseFlags uint32

const (
	// FlagSampleLevels captures the GPIO level register
	FlagSampleLevels PulseFlags = 1 << iota
	// FlagSampleTick captures the system timer
	FlagSampleTick
)

var pulseFlagsMapping = map[PulseFlags]string{
	FlagSampleLevels: "FlagSampleLevels",
	FlagSampleTick:   "FlagSampleTick",
}

func (f PulseFlags) String() string {
	return utils.FlagsToString(f, pulseFlagsMapping)
}

// Pulse sets the GPIOs of On, clears the GPIOs of Off and then waits Delay microseconds before
// the next pulse starts
type Pulse struct {
	On    uint32
	Off   uint32
	Delay uint32
	Flags PulseFlags
}

// Combine overlays two pulse trains that both start at time 0. Pulses of a and b that start at
// the same instant are merged into one pulse. The result lasts as long as the longer train.
func Combine(a, b []Pulse) []Pulse {
	const idle = math.MaxUint64

	out := make([]Pulse, 0, len(a)+len(b))

	var now, endA, endB uint64
	nextA, nextB := uint64(idle), uint64(idle)
	if len(a) > 0 {
		nextA = 0
	}
	if len(b) > 0 {
		nextB = 0
	}

	var posA, posB int
	for posA < len(a) || posB < len(b) {
		due := nextA
		if nextB < due {
			due = nextB
		}

		if now < due {
			// Nothing started since the previous pulse, so it lasts until now
			out[len(out)-1].Delay += uint32(due - now)
			now = due
		}

		var pulse Pulse
		if nextA == due {
			pulse.On |= a[posA].On
			pulse.Off |= a[posA].Off
			pulse.Flags |= a[posA].Flags
			nextA = now + uint64(a[posA].Delay)
			endA = nextA
			posA++
		}
		if nextB == due {
			pulse.On |= b[posB].On
			pulse.Off |= b[posB].Off
			pulse.Flags |= b[posB].Flags
			nextB = now + uint64(b[posB].Delay)
			endB = nextB
			posB++
		}

		next := nextA
		if nextB < next {
			next = nextB
		}
		pulse.Delay = uint32(next - now)
		now = next
		out = append(out, pulse)

		if posA >= len(a) {
			nextA = idle
		}
		if posB >= len(b) {
			nextB = idle
		}
	}

	// The train that finished first may not have been the one that lasts longest
	end := endA
	if endB > end {
		end = endB
	}
	if len(out) > 0 && end > now {
		out[len(out)-1].Delay += uint32(end - now)
	}

	return out
}

// Duration returns the length of a pulse train in microseconds
func Duration(pulses []Pulse) uint64 {
	var total uint64
	for _, pulse := range pulses {
		total += uint64(pulse.Delay)
	}
	return total
}

// estimate returns the descriptors and out-of-line words compiling pulses will take: the lead-in
// delay, then per pulse one descriptor and bottom word per mask, one descriptor and top word per
// sample and one descriptor for a delay
func estimate(pulses []Pulse) metadata.Shape {
	shape := metadata.Shape{CBs: 1}

	for _, pulse := range pulses {
		if pulse.On != 0 {
			shape.CBs++
			shape.BottomWords++
		}
		if pulse.Off != 0 {
			shape.CBs++
			shape.BottomWords++
		}
		if pulse.Flags&FlagSampleLevels != 0 {
			shape.CBs++
			shape.TopWords++
		}
		if pulse.Flags&FlagSampleTick != 0 {
			shape.CBs++
			shape.TopWords++
		}
		if pulse.Delay != 0 {
			shape.CBs++
		}
	}

	return shape
}
