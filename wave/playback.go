package wave

import (
	"github.com/cockroachdb/errors"
)

// startPacer prepares the secondary pacer before the first transmission. Hardware PWM output
// would fight the pacer for the PWM block, so it is stopped first.
func (e *Engine) startPacer() error {
	if e.pacerStarted {
		return nil
	}

	e.regs.StopHardwarePWM()
	err := e.regs.StartPacer(e.pacer, tickMicros)
	if err != nil {
		return errors.Wrap(err, "could not start the secondary pacer")
	}

	e.pacerStarted = true
	return nil
}

// Play transmits wave id on the secondary channel, replacing whatever the channel was doing. It
// returns the number of control blocks in the wave once the channel is running.
func (e *Engine) Play(id int, mode Mode) (int, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	entry, err := e.liveEntry(id)
	if err != nil {
		return 0, err
	}

	if mode != ModeOneShot && mode != ModeRepeat {
		return 0, errors.Wrapf(ErrBadWaveMode, "mode %d", mode)
	}

	err = e.startPacer()
	if err != nil {
		return 0, err
	}

	e.regs.ResetDMA(e.options.Channel)

	next := uint32(0)
	if mode == ModeRepeat {
		// A wave of nothing but its lead-in repeats the lead-in
		next = e.arena.WaveCB(entry.BottomCB).Bus
		if entry.CBs > 1 {
			next = e.arena.WaveCB(entry.BottomCB + 1).Bus
		}
	}
	e.arena.WaveCB(entry.TopCB()).SetNext(next)

	e.regs.StartDMA(e.options.Channel, e.arena.WaveCB(entry.BottomCB).Bus)
	return entry.CBs, nil
}

// Busy reports whether the secondary channel is still transmitting
func (e *Engine) Busy() bool {
	return e.regs.DMAControlBlock(e.options.Channel) != 0
}

// Stop aborts the transmission. GPIOs keep the levels they were last set to.
func (e *Engine) Stop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.regs.ResetDMA(e.options.Channel)
}

// CurrentCB returns the wave control block the secondary channel is executing, or -1 if it is
// idle or executing something else
func (e *Engine) CurrentCB() int {
	index, ok := e.arena.WaveCBIndex(e.regs.DMAControlBlock(e.options.Channel))
	if !ok {
		return -1
	}
	return index
}
