package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// DivCeil divides value by divisor, rounding any remainder up
func DivCeil[T Number](value, divisor T) T {
	result := value / divisor
	if value%divisor != 0 {
		result++
	}
	return result
}

// RoundUp rounds value up to the next multiple of step, which need not be a power of two
func RoundUp[T Number](value, step T) T {
	return DivCeil(value, step) * step
}
