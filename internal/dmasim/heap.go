package dmasim

import (
	"github.com/cockroachdb/errors"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/busmem"
	"golang.org/x/exp/slog"
)

// NewHeapArena builds an arena of the given layout over heap pages with synthetic bus
// addresses. The returned function releases the pages.
func NewHeapArena(logger *slog.Logger, layout arena.Layout) (*arena.Arena, func() error, error) {
	allocator, err := busmem.New(logger, busmem.CreateOptions{
		Mode:          busmem.ModeHeap,
		PagesPerBlock: layout.PagesPerBlock,
		PageSize:      layout.PageSize,
	})
	if err != nil {
		return nil, nil, err
	}

	blocks, err := allocator.AllocateBlocks(layout.CarrierBlocks + layout.WaveBlocks)
	if err != nil {
		return nil, nil, err
	}

	release := func() error {
		err := allocator.Release(blocks)
		return errors.CombineErrors(err, allocator.Destroy())
	}

	a, err := arena.New(blocks, layout)
	if err != nil {
		return nil, nil, errors.CombineErrors(err, release())
	}

	return a, release, nil
}
