package busmem

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/wavedma/wavedma/internal/utils"
	"golang.org/x/exp/slog"
)

type backing interface {
	allocate(pages int) (*Block, error)
	close() error
}

// Statistics summarizes the memory held by an allocator
type Statistics struct {
	BlockCount int
	PageCount  int
	Bytes      int
}

// Allocator hands out blocks of page-aligned memory that are mapped into the process and
// addressable by the DMA engine. Every byte is resident and locked for as long as the block is
// live.
type Allocator struct {
	logger  *slog.Logger
	mutex   utils.OptionalMutex
	options CreateOptions
	mode    MemAllocMode
	backing backing

	blocks *swiss.Map[int, *Block]
	nextID int
}

// New creates an allocator. Opening the devices a strategy needs happens here, so failures of
// New are initialization failures marked with ErrInitFailed.
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	options.applyDefaults()
	if options.MaxBlocks < 0 {
		return nil, errors.Newf("MaxBlocks must not be negative, got %d", options.MaxBlocks)
	}
	if options.PagesPerBlock < 1 {
		return nil, errors.Newf("PagesPerBlock must be positive, got %d", options.PagesPerBlock)
	}

	allocator := &Allocator{
		logger:  logger,
		options: options,
		mode:    options.EffectiveMode(),
		blocks:  swiss.NewMap[int, *Block](42),
	}
	allocator.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0

	var err error
	switch allocator.mode {
	case ModeHeap:
		allocator.backing = newHeapBacking(options)
	case ModePagemap:
		allocator.backing, err = newPagemapBacking(options)
	case ModeMailbox:
		allocator.backing, err = newMailboxBacking(options)
	default:
		return nil, errors.Newf("unknown memory allocation mode %d", options.Mode)
	}
	if err != nil {
		return nil, initFailed(err, "could not prepare %s allocation", allocator.mode)
	}

	logger.LogAttrs(context.Background(), slog.LevelDebug, "bus memory allocator ready",
		slog.String("mode", allocator.mode.String()),
		slog.Int("pagesPerBlock", options.PagesPerBlock),
		slog.Int("maxBlocks", options.MaxBlocks),
	)

	return allocator, nil
}

// Mode returns the strategy the allocator resolved to
func (a *Allocator) Mode() MemAllocMode { return a.mode }

// PageSize returns the size of every page the allocator hands out
func (a *Allocator) PageSize() int { return a.options.PageSize }

// PagesPerBlock returns the number of pages in every block
func (a *Allocator) PagesPerBlock() int { return a.options.PagesPerBlock }

// AllocateBlocks obtains count blocks. Either all of them are returned or none: blocks of a
// request that fails part way are released before the error is returned. A request that would
// exceed MaxBlocks fails with ErrHorizonExceeded before anything is mapped.
func (a *Allocator) AllocateBlocks(count int) ([]*Block, error) {
	if count < 1 {
		return nil, errors.Newf("block count must be positive, got %d", count)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	live := a.blocks.Count()
	if a.options.MaxBlocks > 0 && live+count > a.options.MaxBlocks {
		return nil, initFailed(ErrHorizonExceeded, "%d blocks requested with %d of %d in use", count, live, a.options.MaxBlocks)
	}

	blocks := make([]*Block, 0, count)
	for i := 0; i < count; i++ {
		block, err := a.backing.allocate(a.options.PagesPerBlock)
		if err != nil {
			for _, allocated := range blocks {
				a.destroyBlock(allocated)
			}
			return nil, initFailed(err, "%s allocation of block %d of %d failed", a.mode, i+1, count)
		}

		block.id = a.nextID
		a.nextID++
		blocks = append(blocks, block)
	}

	for _, block := range blocks {
		a.blocks.Put(block.id, block)
	}

	return blocks, nil
}

// Release returns blocks to the system. Blocks this allocator does not own are logged, skipped and
// reported through ErrNotOwned once every owned block has been released.
func (a *Allocator) Release(blocks []*Block) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var notOwned []int
	var releaseErr error
	for _, block := range blocks {
		if block == nil {
			continue
		}

		owned, ok := a.blocks.Get(block.id)
		if !ok || owned != block {
			a.logger.LogAttrs(context.Background(), slog.LevelError, "[FOREIGN MEMORY] release of a block this allocator does not own",
				slog.Int("block.id", block.id))
			notOwned = append(notOwned, block.id)
			continue
		}

		a.blocks.Delete(block.id)
		releaseErr = errors.CombineErrors(releaseErr, block.destroy())
	}

	if len(notOwned) > 0 {
		releaseErr = errors.CombineErrors(releaseErr, errors.Wrapf(ErrNotOwned, "blocks %v", notOwned))
	}
	return releaseErr
}

// Statistics reports the blocks currently live
func (a *Allocator) Statistics() Statistics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var stats Statistics
	a.blocks.Iter(func(id int, block *Block) bool {
		stats.BlockCount++
		stats.PageCount += len(block.Pages)
		stats.Bytes += block.Size()
		return false
	})

	return stats
}

// StatsJsonData populates a json object with the allocator's statistics
func (a *Allocator) StatsJsonData(json jwriter.ObjectState) {
	stats := a.Statistics()

	json.Name("Mode").String(a.mode.String())
	json.Name("Blocks").Int(stats.BlockCount)
	json.Name("MaxBlocks").Int(a.options.MaxBlocks)
	json.Name("Pages").Int(stats.PageCount)
	json.Name("Bytes").Int(stats.Bytes)
}

// Destroy releases every live block and closes the devices the allocator opened. Live blocks are
// a leak on the consumer's side: each is logged and an error is returned after cleanup.
func (a *Allocator) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var leaked []*Block
	a.blocks.Iter(func(id int, block *Block) bool {
		leaked = append(leaked, block)
		return false
	})

	for _, block := range leaked {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] block still live at allocator destruction",
			slog.Int("block.id", block.id),
			slog.Int("size", block.Size()),
		)
		a.blocks.Delete(block.id)
		a.destroyBlock(block)
	}

	err := a.backing.close()
	if len(leaked) > 0 {
		err = errors.CombineErrors(errors.Newf("%d blocks were not released before the destruction of this allocator", len(leaked)), err)
	}
	return err
}

func (a *Allocator) destroyBlock(block *Block) {
	err := block.destroy()
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] failed to return a block to the system",
			slog.Int("block.id", block.id),
			slog.Any("error", err))
	}
}
