package busmem

import "github.com/cockroachdb/errors"

var (
	// ErrInitFailed marks every failure to obtain bus memory. Callers treat it as fatal to
	// initialization.
	ErrInitFailed = errors.New("bus memory initialization failed")
	// ErrHorizonExceeded is returned when a request would take the allocator past
	// CreateOptions.MaxBlocks. It is also marked with ErrInitFailed.
	ErrHorizonExceeded = errors.New("request exceeds the configured buffer horizon")
	// ErrNotOwned is returned by Release for blocks this allocator did not hand out
	ErrNotOwned       = errors.New("block is not owned by this allocator")
	errFrameMissing   = errors.New("page has no physical frame yet")
	errNotImplemented = errors.New("allocation strategy is not available on this platform")
)

func initFailed(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrInitFailed)
}
