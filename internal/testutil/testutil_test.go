package testutil

import (
	"os"
	"testing"

	"github.com/javanstorm/vzkit/internal/bootstate"
)

func TestRuntimeStartsEmpty(t *testing.T) {
	rt := Runtime(t)
	if n := rt.Live(); n != 0 {
		t.Fatalf("fresh runtime has %d objects", n)
	}
	h := rt.NewString([]byte("x"))
	rt.Release(h)
}

func TestBootImages(t *testing.T) {
	kernel, initrd := BootImages(t)
	for _, p := range []string{kernel, initrd} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should exist: %v", p, err)
		}
	}
	if kernel == initrd {
		t.Error("kernel and initrd should be different files")
	}
}

func TestCreateTempState(t *testing.T) {
	dir := CreateTempState(t, &bootstate.Record{StartCount: 3, LastOutcome: bootstate.OutcomeFailed})

	rec, err := bootstate.Open(dir).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.StartCount != 3 || rec.LastOutcome != bootstate.OutcomeFailed {
		t.Errorf("round trip mismatch: %+v", rec)
	}
}
