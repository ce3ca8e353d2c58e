package utils

import (
	"math/bits"
	"strings"
)

// FlagsToString renders a bitmask as the registered names of its set bits joined by '|'.
// Bits without a registered name are skipped.
func FlagsToString[T ~int32 | ~uint32](flags T, names map[T]string) string {
	if flags == 0 {
		return "None"
	}

	var sb strings.Builder
	remaining := uint32(flags)
	for remaining != 0 {
		bit := T(1) << bits.TrailingZeros32(remaining)
		remaining &^= uint32(bit)

		name, ok := names[bit]
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}

	return sb.String()
}
