package arena_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/busmem"
	"golang.org/x/exp/slog"
)

func smallLayout() arena.Layout {
	layout := arena.DefaultLayout()
	layout.PagesPerBlock = 4
	layout.CarrierBlocks = 1
	layout.WaveBlocks = 2
	layout.Chain.Pages = 2
	return layout
}

func newArena(t *testing.T, layout arena.Layout) *arena.Arena {
	logger := slog.New(slog.NewJSONHandler(io.Discard))
	allocator, err := busmem.New(logger, busmem.CreateOptions{
		Mode:          busmem.ModeHeap,
		PagesPerBlock: layout.PagesPerBlock,
		PageSize:      layout.PageSize,
	})
	require.NoError(t, err)

	blocks, err := allocator.AllocateBlocks(layout.CarrierBlocks + layout.WaveBlocks)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, allocator.Release(blocks))
	})

	a, err := arena.New(blocks, layout)
	require.NoError(t, err)
	return a
}

func TestDefaultLayout(t *testing.T) {
	layout := arena.DefaultLayout()
	require.NoError(t, layout.Validate())
	require.Equal(t, 13, layout.Chain.CounterCBs())
	require.Equal(t, 68, layout.Chain.CounterValues())
}

func TestInvalidLayouts(t *testing.T) {
	layout := arena.DefaultLayout()
	layout.Carrier.Pad = 8
	require.Error(t, layout.Validate())

	layout = arena.DefaultLayout()
	layout.Wave.OOL = 80
	require.Error(t, layout.Validate())

	layout = arena.DefaultLayout()
	layout.Chain.CBsPerPage = 93
	require.Error(t, layout.Validate())

	layout = arena.DefaultLayout()
	layout.PageSize = 4000
	require.Error(t, layout.Validate())

	layout = arena.DefaultLayout()
	layout.Chain.CounterRadix = 1
	require.Error(t, layout.Validate())
}

func TestArenaBlockCount(t *testing.T) {
	layout := smallLayout()
	logger := slog.New(slog.NewJSONHandler(io.Discard))
	allocator, err := busmem.New(logger, busmem.CreateOptions{Mode: busmem.ModeHeap, PagesPerBlock: 4})
	require.NoError(t, err)

	blocks, err := allocator.AllocateBlocks(2)
	require.NoError(t, err)

	_, err = arena.New(blocks, layout)
	require.Error(t, err)
	require.NoError(t, allocator.Release(blocks))
}

func TestChainPositions(t *testing.T) {
	a := newArena(t, smallLayout())

	require.Equal(t, 120, a.ChainCapacity())
	require.Equal(t, 4, a.CounterCapacity())
	require.Equal(t, 236, a.WaveCBBase())
	require.Equal(t, 158, a.WaveOOLBase())
	require.Equal(t, 8*118, a.WaveCBCapacity())
	require.Equal(t, 8*79, a.WaveOOLCapacity())

	require.Equal(t, 26, a.ChainCBIndex(0))
	require.Equal(t, 85, a.ChainCBIndex(59))
	require.Equal(t, 144, a.ChainCBIndex(60))

	// Chain words sit after the chain descriptors, counter rings after the chain words
	chain0 := a.ChainCB(0)
	require.Equal(t, a.WaveCB(0).Bus+26*32, chain0.Bus)
	require.Equal(t, a.WaveCB(0).Bus+688*4, a.ChainValue(0).Bus)
	require.Equal(t, a.WaveCB(0).Bus+748*4, a.CounterValue(0, 0).Bus)
	require.Equal(t, a.WaveCB(0).Bus+884*4, a.CounterValue(1, 0).Bus)
	require.Equal(t, a.WaveCB(118).Bus+748*4, a.CounterValue(2, 0).Bus)
	require.Equal(t, a.WaveCB(13).Bus, a.CounterCB(1, 0).Bus)

	// The last counter word stays clear of the periph data word
	require.Less(t, a.CounterValue(1, 135).Bus, a.WavePeriphData().Bus)
	require.Equal(t, a.WaveCB(0).Bus+1023*4, a.WavePeriphData().Bus)
}

func TestCarrierPositions(t *testing.T) {
	a := newArena(t, smallLayout())

	require.Equal(t, 4, a.CarrierPages())
	require.Equal(t, 4*117, a.CarrierCBCapacity())
	require.Equal(t, 4*38, a.CarrierLevelCapacity())
	require.Equal(t, 8, a.CarrierOnCapacity())

	require.Equal(t, a.CarrierCB(0).Bus+936*4, a.CarrierLevel(0).Bus)
	require.Equal(t, a.CarrierCB(0).Bus+974*4, a.CarrierOff(0).Bus)
	require.Equal(t, a.CarrierCB(0).Bus+1012*4, a.CarrierTick(0).Bus)
	require.Equal(t, a.CarrierCB(0).Bus+1014*4, a.CarrierOn(0).Bus)
	require.Equal(t, a.CarrierCB(0).Bus+1016*4, a.CarrierPeriphData(0).Bus)
	require.Equal(t, a.CarrierCB(117).Bus+1015*4, a.CarrierOn(3).Bus)

	index, ok := a.CarrierCBIndex(a.CarrierCB(200).Bus)
	require.True(t, ok)
	require.Equal(t, 200, index)

	_, ok = a.CarrierCBIndex(a.WaveCB(0).Bus)
	require.False(t, ok)

	index, ok = a.WaveCBIndex(a.WaveCB(300).Bus)
	require.True(t, ok)
	require.Equal(t, 300, index)

	_, ok = a.WaveCBIndex(a.CarrierLevel(0).Bus)
	require.False(t, ok)
}

func TestControlBlockAccess(t *testing.T) {
	a := newArena(t, smallLayout())

	cb := a.WaveCB(400)
	block := arena.ControlBlock{
		Info:   1,
		Source: 2,
		Dest:   3,
		Length: 4,
		Stride: 5,
		Next:   a.WaveCB(401).Bus,
	}
	cb.Write(block)
	require.Equal(t, block, cb.Read())

	cb.SetNext(0)
	require.Equal(t, uint32(0), cb.Next())
	require.Equal(t, cb.Bus+20, cb.NextBus())

	resolved, ok := a.ResolveCB(cb.Bus)
	require.True(t, ok)
	require.Equal(t, cb.Read(), resolved.Read())

	ptr, ok := a.Resolve(cb.Bus + 12)
	require.True(t, ok)
	require.Equal(t, uint32(4), *ptr)

	_, ok = a.Resolve(cb.Bus + 2)
	require.False(t, ok)
	_, ok = a.Resolve(0x7E200000)
	require.False(t, ok)
}

func TestWordBits(t *testing.T) {
	a := newArena(t, smallLayout())

	word := a.CarrierOff(37)
	require.Equal(t, uint32(0), word.Load())

	word.Or(0x11)
	word.Or(0x10)
	require.Equal(t, uint32(0x11), word.Load())

	word.AndNot(0x01)
	require.Equal(t, uint32(0x10), word.Load())

	ptr, ok := a.Resolve(word.Bus)
	require.True(t, ok)
	require.Equal(t, word.Ptr(), ptr)

	// Neighbouring cells are untouched
	require.Equal(t, uint32(0), a.CarrierOff(36).Load())
	require.Equal(t, uint32(0), a.CarrierOff(38).Load())
}
