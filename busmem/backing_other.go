//go:build !linux

package busmem

import "github.com/cockroachdb/errors"

type unavailableBacking struct{}

func (unavailableBacking) allocate(pages int) (*Block, error) { return nil, errNotImplemented }
func (unavailableBacking) close() error                       { return nil }

func newPagemapBacking(options CreateOptions) (unavailableBacking, error) {
	return unavailableBacking{}, errors.Wrap(errNotImplemented, "pagemap")
}

func newMailboxBacking(options CreateOptions) (unavailableBacking, error) {
	return unavailableBacking{}, errors.Wrap(errNotImplemented, "mailbox")
}
