//go:build !darwin

package objcrt

import (
	"errors"
	"testing"

	"github.com/javanstorm/vzkit/pkg/native"
)

func TestOpenUnsupported(t *testing.T) {
	rt, err := Open()
	if !errors.Is(err, native.ErrUnsupported) {
		t.Fatalf("Open() error = %v, want ErrUnsupported", err)
	}
	if rt != nil {
		t.Fatal("Open() returned a runtime")
	}
}
