package wave_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wavedma/wavedma/wave"
)

func TestCombine(t *testing.T) {
	a := []wave.Pulse{{On: 1, Delay: 10}, {Off: 1, Delay: 10}}
	b := []wave.Pulse{{On: 2, Delay: 5}, {Off: 2, Delay: 30}}

	expected := []wave.Pulse{
		{On: 3, Delay: 5},
		{Off: 2, Delay: 5},
		{Off: 1, Delay: 25},
	}
	require.Equal(t, expected, wave.Combine(a, b))
	require.Equal(t, expected, wave.Combine(b, a))
	require.Equal(t, uint64(35), wave.Duration(expected))
}

func TestCombineIdentity(t *testing.T) {
	a := []wave.Pulse{{On: 1, Delay: 10}, {Off: 1, Flags: wave.FlagSampleTick}, {On: 4, Delay: 7}}

	require.Equal(t, a, wave.Combine(a, nil))
	require.Equal(t, a, wave.Combine(nil, a))
	require.Empty(t, wave.Combine(nil, nil))
}

func TestCombineKeepsLongerTail(t *testing.T) {
	short := []wave.Pulse{{On: 1, Delay: 10}}
	long := []wave.Pulse{{On: 2, Delay: 3}, {Off: 2, Delay: 100}}

	combined := wave.Combine(short, long)
	require.Equal(t, []wave.Pulse{
		{On: 3, Delay: 3},
		{Off: 2, Delay: 100},
	}, combined)
	require.Equal(t, uint64(103), wave.Duration(combined))
}

func TestCombineMergesFlags(t *testing.T) {
	a := []wave.Pulse{{On: 1, Flags: wave.FlagSampleLevels, Delay: 4}}
	b := []wave.Pulse{{Off: 2, Flags: wave.FlagSampleTick, Delay: 4}}

	require.Equal(t, []wave.Pulse{
		{On: 1, Off: 2, Flags: wave.FlagSampleLevels | wave.FlagSampleTick, Delay: 4},
	}, wave.Combine(a, b))
}

func TestFlagStrings(t *testing.T) {
	require.Equal(t, "FlagSampleLevels|FlagSampleTick", (wave.FlagSampleLevels | wave.FlagSampleTick).String())
	require.Equal(t, "ModeRepeat", wave.ModeRepeat.String())
	require.Equal(t, "CreateExternallySynchronized", wave.CreateExternallySynchronized.String())
	require.Equal(t, "LoopEnd", wave.OpLoopEnd.String())
}
