//go:build !linux

package periph

import "github.com/cockroachdb/errors"

// Open is only available on linux
func Open(periphBase uint32) (*Mapped, error) {
	return nil, errors.New("peripheral registers can only be mapped on linux")
}
