//go:build !darwin

package objcrt

import "github.com/javanstorm/vzkit/pkg/native"

// Open always fails outside macOS.
func Open() (native.Runtime, error) {
	return nil, native.ErrUnsupported
}
