// Package testutil provides common test helpers for vzkit tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/javanstorm/vzkit/internal/bootstate"
	"github.com/javanstorm/vzkit/pkg/native/simrt"
)

// Runtime returns a simulated native runtime. When the test ends it waits for
// pending start completions and fails the test if any native object is still
// allocated, so every test doubles as a leak check.
func Runtime(t testing.TB, opts ...simrt.Option) *simrt.Runtime {
	t.Helper()

	rt := simrt.New(opts...)
	t.Cleanup(func() {
		rt.Wait()
		if n := rt.Live(); n != 0 {
			t.Errorf("%d native objects still allocated at the end of the test", n)
		}
	})
	return rt
}

// BootImages writes a fake kernel and initial ramdisk into a temporary
// directory and returns their paths.
func BootImages(t testing.TB) (kernel, initrd string) {
	t.Helper()

	dir := t.TempDir()
	kernel = filepath.Join(dir, "vmlinuz")
	initrd = filepath.Join(dir, "initrd.img")
	for _, p := range []string{kernel, initrd} {
		if err := os.WriteFile(p, []byte("boot image"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", p, err)
		}
	}
	return kernel, initrd
}

// CreateTempState writes rec as a boot state file in a temporary data
// directory and returns that directory.
func CreateTempState(t testing.TB, rec *bootstate.Record) string {
	t.Helper()

	dataDir := t.TempDir()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal boot state: %v", err)
	}
	if err := os.WriteFile(bootstate.Open(dataDir).Path(), data, 0600); err != nil {
		t.Fatalf("failed to write boot state: %v", err)
	}
	return dataDir
}
