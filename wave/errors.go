package wave

import "github.com/cockroachdb/errors"

// ErrNoSpace is satisfied by every error caused by the arena or the registry running out of room
var ErrNoSpace = errors.New("no space for waveform")

var (
	ErrTooManyPulses      = errors.New("too many pulses")
	ErrTooManyDescriptors = errors.New("no more control blocks for waveforms")
	ErrTooManyOOLWords    = errors.New("no more out-of-line words for waveforms")
	ErrNoWaveformID       = errors.New("no more waveform ids")
	ErrDelayTooLong       = errors.New("pulse delay too long")
	ErrWaveTooLong        = errors.New("waveform too long")
	ErrEmptyWaveform      = errors.New("attempt to create an empty waveform")
	ErrBadWaveID          = errors.New("non existent waveform id")
	ErrBadWaveMode        = errors.New("unknown waveform mode")

	ErrBadLoop        = errors.New("empty or unmatched chain loop")
	ErrChainNesting   = errors.New("chain loops nested too deep")
	ErrChainLoopCount = errors.New("bad chain loop count")
	ErrChainCounter   = errors.New("too many chain counters")
	ErrBadChainDelay  = errors.New("bad chain delay")
	ErrChainTooBig    = errors.New("chain is too long")
	ErrMustBeLast     = errors.New("repeat forever must be the last chain command")
	ErrBadChainOp     = errors.New("unknown chain command")
)

func noSpace(err error, kind error) error {
	return errors.Mark(errors.Mark(err, kind), ErrNoSpace)
}
