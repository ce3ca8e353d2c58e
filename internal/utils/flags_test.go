package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testFlags uint32

const (
	flagA testFlags = 1 << iota
	flagB
	flagC
)

var testFlagNames = map[testFlags]string{
	flagA: "A",
	flagB: "B",
	flagC: "C",
}

func TestFlagsToString(t *testing.T) {
	require.Equal(t, "None", FlagsToString(testFlags(0), testFlagNames))
	require.Equal(t, "B", FlagsToString(flagB, testFlagNames))
	require.Equal(t, "A|C", FlagsToString(flagA|flagC, testFlagNames))

	// Unnamed bits are dropped
	require.Equal(t, "A", FlagsToString(flagA|1<<20, testFlagNames))
}

func TestOptionalMutex(t *testing.T) {
	off := OptionalMutex{}
	off.Lock()
	off.Lock()
	off.Unlock()

	on := OptionalMutex{UseMutex: true}
	on.Lock()
	require.False(t, on.Mutex.TryLock())
	on.Unlock()
	require.True(t, on.Mutex.TryLock())
}
