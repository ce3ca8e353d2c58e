package wave

import (
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/memutils/metadata"
	"github.com/wavedma/wavedma/periph"
)

// delayBlock is a descriptor that waits micros ticks of the secondary pacer
func (e *Engine) delayBlock(micros int) arena.ControlBlock {
	return arena.ControlBlock{
		Info:   e.pacer.TimedDMA(),
		Source: e.arena.WavePeriphData().Bus,
		Dest:   e.pacer.FIFOBus(),
		Length: uint32(4 * micros / tickMicros),
	}
}

// compile writes the control blocks and out-of-line words of pulses into the ranges of entry and
// returns what it actually used. The last block ends the wave.
func (e *Engine) compile(pulses []Pulse, entry metadata.Entry) metadata.Shape {
	end := entry.BottomCB + entry.CBs
	cb, bottomOOL, topOOL := entry.BottomCB, entry.BottomOOL, entry.TopOOL

	emit := func(block arena.ControlBlock) {
		// Never write past the entry, an overrun is reported by the caller
		if cb < end {
			if cb+1 < end {
				block.Next = e.arena.WaveCB(cb + 1).Bus
			}
			e.arena.WaveCB(cb).Write(block)
		}
		cb++
	}

	emit(e.delayBlock(e.options.LeadInMicros))

	for _, pulse := range pulses {
		if pulse.On != 0 {
			word := e.arena.WaveOOL(bottomOOL)
			word.Store(pulse.On)
			bottomOOL++

			emit(arena.ControlBlock{Info: periph.NormalDMA, Source: word.Bus, Dest: periph.GPSet0Bus, Length: 4})
		}

		if pulse.Off != 0 {
			word := e.arena.WaveOOL(bottomOOL)
			word.Store(pulse.Off)
			bottomOOL++

			emit(arena.ControlBlock{Info: periph.NormalDMA, Source: word.Bus, Dest: periph.GPClr0Bus, Length: 4})
		}

		if pulse.Flags&FlagSampleLevels != 0 {
			topOOL--
			emit(arena.ControlBlock{Info: periph.NormalDMA, Source: periph.GPLev0Bus, Dest: e.arena.WaveOOL(topOOL).Bus, Length: 4})
		}

		if pulse.Flags&FlagSampleTick != 0 {
			topOOL--
			emit(arena.ControlBlock{Info: periph.NormalDMA, Source: periph.SystCLOBus, Dest: e.arena.WaveOOL(topOOL).Bus, Length: 4})
		}

		if pulse.Delay != 0 {
			emit(e.delayBlock(int(pulse.Delay)))
		}
	}

	return metadata.Shape{
		CBs:         cb - entry.BottomCB,
		BottomWords: bottomOOL - entry.BottomOOL,
		TopWords:    entry.TopOOL - topOOL,
	}
}
