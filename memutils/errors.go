package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// AccountingError is returned from Validate methods when the resources a structure consumed differ from
// the resources that were reserved for it ahead of time
var AccountingError error = errors.New("resource accounting mismatch")
