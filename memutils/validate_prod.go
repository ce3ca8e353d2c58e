//go:build !debug_mem_utils

package memutils

// DebugValidate does nothing unless built with the debug_mem_utils tag
func DebugValidate(Validatable) {}
