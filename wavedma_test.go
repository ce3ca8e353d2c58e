package wavedma_test

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/wavedma/wavedma"
	"github.com/wavedma/wavedma/busmem"
	"github.com/wavedma/wavedma/carrier"
	"github.com/wavedma/wavedma/wave"
	"golang.org/x/exp/slog"
)

func simOptions() wavedma.Options {
	return wavedma.Options{
		TickMicros:   10,
		BufferMillis: 20,
		Simulate:     true,
	}
}

func TestOpenSimulated(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard))

	s, err := wavedma.Open(logger, simOptions())
	require.NoError(t, err)

	_, err = wavedma.Open(logger, simOptions())
	require.True(t, errors.Is(err, wavedma.ErrAlreadyOpen))

	options := s.Options()
	require.Equal(t, 800, options.CarrierCycles)
	require.Equal(t, 10, options.Layout.CarrierBlocks)
	require.Equal(t, carrier.DefaultChannel, s.Carrier().Channel())
	require.Equal(t, 800, s.Carrier().Cycles())
	require.Equal(t, 0, s.Carrier().CurrentCycle())

	// The carrier runs on the primary channel
	m := s.Simulator()
	require.NotNil(t, m)
	require.NoError(t, s.Carrier().SetOn(1, 1<<7))
	_, err = m.Run(s.Carrier().Channel(), carrier.CBsPerCycle+1)
	require.NoError(t, err)
	require.Equal(t, 1, s.Carrier().CurrentCycle())

	waves := s.Waves()
	_, err = waves.AddGeneric([]wave.Pulse{{On: 1 << 4, Delay: 10}, {Off: 1 << 4, Delay: 10}})
	require.NoError(t, err)
	id, err := waves.Create()
	require.NoError(t, err)

	_, err = waves.Play(id, wave.ModeOneShot)
	require.NoError(t, err)
	_, err = m.Run(waves.Channel(), 100)
	require.NoError(t, err)
	require.False(t, waves.Busy())

	stats := s.BuildStatsString(true)
	require.Contains(t, stats, `"Mode":"heap"`)
	require.Contains(t, stats, `"Live":1`)

	require.NoError(t, waves.Delete(id))
	require.NoError(t, s.Close())
	require.Error(t, s.Close())

	// Closing frees the hardware for the next Open
	s, err = wavedma.Open(logger, simOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenBeyondHorizon(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard))

	options := simOptions()
	options.Memory.MaxBlocks = 12

	_, err := wavedma.Open(logger, options)
	require.True(t, errors.Is(err, busmem.ErrHorizonExceeded))
	require.True(t, errors.Is(err, busmem.ErrInitFailed))

	// A failed Open leaves nothing claimed
	s, err := wavedma.Open(logger, simOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenDerivesGeometry(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard))

	s, err := wavedma.Open(logger, wavedma.Options{Simulate: true})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	options := s.Options()
	cycles := carrier.BufferCycles(wavedma.DefaultBufferMillis, wavedma.DefaultTickMicros)
	require.Equal(t, cycles, options.CarrierCycles)
	require.Equal(t, carrier.BufferBlocks(cycles), options.Layout.CarrierBlocks)
	require.Equal(t, wavedma.DefaultMaxBufferMillis, options.MaxBufferMillis)

	maxCycles := carrier.BufferCycles(wavedma.DefaultMaxBufferMillis, wavedma.DefaultTickMicros)
	require.Equal(t, carrier.BufferBlocks(maxCycles)+options.Layout.WaveBlocks, options.Memory.MaxBlocks)
}

func TestOpenBufferBeyondMaxHorizon(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard))

	options := simOptions()
	options.MaxBufferMillis = 100
	options.BufferMillis = 400

	_, err := wavedma.Open(logger, options)
	require.True(t, errors.Is(err, busmem.ErrHorizonExceeded))
	require.True(t, errors.Is(err, busmem.ErrInitFailed))

	// Up to the budget is fine
	options.BufferMillis = 100
	s, err := wavedma.Open(logger, options)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
