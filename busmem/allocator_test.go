package busmem_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/wavedma/wavedma/busmem"
	"golang.org/x/exp/slog"
)

func heapAllocator(t *testing.T, maxBlocks int) *busmem.Allocator {
	logger := slog.New(slog.NewJSONHandler(io.Discard))

	allocator, err := busmem.New(logger, busmem.CreateOptions{
		Mode:          busmem.ModeHeap,
		MaxBlocks:     maxBlocks,
		PagesPerBlock: 4,
	})
	require.NoError(t, err)
	return allocator
}

func TestEffectiveMode(t *testing.T) {
	require.Equal(t, busmem.ModeMailbox, busmem.CreateOptions{}.EffectiveMode())
	require.Equal(t, busmem.ModeMailbox, busmem.CreateOptions{BufferMillis: 120}.EffectiveMode())
	require.Equal(t, busmem.ModePagemap, busmem.CreateOptions{BufferMillis: 121}.EffectiveMode())
	require.Equal(t, busmem.ModeHeap, busmem.CreateOptions{Mode: busmem.ModeHeap, BufferMillis: 500}.EffectiveMode())

	mode, ok := busmem.ParseMemAllocMode("pagemap")
	require.True(t, ok)
	require.Equal(t, busmem.ModePagemap, mode)

	_, ok = busmem.ParseMemAllocMode("dma")
	require.False(t, ok)
}

func TestHeapAllocate(t *testing.T) {
	allocator := heapAllocator(t, 0)
	require.Equal(t, busmem.ModeHeap, allocator.Mode())

	blocks, err := allocator.AllocateBlocks(3)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	seen := map[uint32]bool{}
	for _, block := range blocks {
		require.Len(t, block.Pages, 4)
		require.Equal(t, 4*busmem.DefaultPageSize, block.Size())

		for _, page := range block.Pages {
			require.Len(t, page.Mem, busmem.DefaultPageSize)
			require.Zero(t, page.Bus%busmem.DefaultPageSize)
			require.Equal(t, busmem.DefaultDramBus, page.Bus&0xC0000000)
			require.False(t, seen[page.Bus])
			seen[page.Bus] = true
		}
	}

	// Pages of a block don't overlap
	blocks[0].Pages[0].Mem[busmem.DefaultPageSize-1] = 0x5A
	require.Equal(t, byte(0), blocks[0].Pages[1].Mem[0])

	require.Equal(t, busmem.Statistics{
		BlockCount: 3,
		PageCount:  12,
		Bytes:      12 * busmem.DefaultPageSize,
	}, allocator.Statistics())

	require.NoError(t, allocator.Release(blocks[:2]))
	require.Equal(t, 1, allocator.Statistics().BlockCount)

	require.NoError(t, allocator.Release(blocks[2:]))
	require.NoError(t, allocator.Destroy())
}

func TestHorizonExceeded(t *testing.T) {
	allocator := heapAllocator(t, 4)

	_, err := allocator.AllocateBlocks(5)
	require.True(t, errors.Is(err, busmem.ErrHorizonExceeded))
	require.True(t, errors.Is(err, busmem.ErrInitFailed))
	require.Equal(t, busmem.Statistics{}, allocator.Statistics())

	blocks, err := allocator.AllocateBlocks(3)
	require.NoError(t, err)

	_, err = allocator.AllocateBlocks(2)
	require.True(t, errors.Is(err, busmem.ErrHorizonExceeded))
	require.Equal(t, 3, allocator.Statistics().BlockCount)

	more, err := allocator.AllocateBlocks(1)
	require.NoError(t, err)

	require.NoError(t, allocator.Release(append(blocks, more...)))
	require.NoError(t, allocator.Destroy())
}

func TestReleaseForeignBlock(t *testing.T) {
	first := heapAllocator(t, 0)
	second := heapAllocator(t, 0)

	mine, err := first.AllocateBlocks(1)
	require.NoError(t, err)
	theirs, err := second.AllocateBlocks(1)
	require.NoError(t, err)

	err = first.Release([]*busmem.Block{theirs[0], mine[0]})
	require.True(t, errors.Is(err, busmem.ErrNotOwned))
	require.Equal(t, 0, first.Statistics().BlockCount)
	require.Equal(t, 1, second.Statistics().BlockCount)

	require.NoError(t, second.Release(theirs))
}

func TestDestroyLogsUnreleased(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs))

	allocator, err := busmem.New(logger, busmem.CreateOptions{
		Mode:  busmem.ModeHeap,
		Flags: busmem.CreateExternallySynchronized,
	})
	require.NoError(t, err)

	_, err = allocator.AllocateBlocks(2)
	require.NoError(t, err)

	err = allocator.Destroy()
	require.Error(t, err)
	require.Contains(t, logs.String(), "[UNRELEASED MEMORY]")
	require.Equal(t, busmem.Statistics{}, allocator.Statistics())
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "CreateExternallySynchronized", busmem.CreateExternallySynchronized.String())
	require.Equal(t, "None", busmem.CreateFlags(0).String())
}
