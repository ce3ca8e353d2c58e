//go:build debug_mem_utils

package memutils

// DebugValidate panics when validatable reports an error. Without the debug_mem_utils build tag it
// does nothing, so bookkeeping checks cost nothing on the hot path.
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}
