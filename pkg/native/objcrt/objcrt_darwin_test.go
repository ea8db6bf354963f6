//go:build darwin

package objcrt

import (
	"testing"

	"github.com/javanstorm/vzkit/pkg/native"
)

func openRuntime(t *testing.T) native.Runtime {
	t.Helper()
	rt, err := Open()
	if err != nil {
		t.Skipf("native runtime unavailable: %v", err)
	}
	return rt
}

func TestStringRoundTrip(t *testing.T) {
	rt := openRuntime(t)
	for _, text := range []string{"", "console=hvc0", "héllo wörld ✓"} {
		h := rt.NewString([]byte(text))
		n := rt.UTF8Length(h)
		if n != len(text) {
			t.Errorf("UTF8Length(%q) = %d, want %d", text, n, len(text))
		}
		if got := string(rt.UTF8Bytes(h, n)); got != text {
			t.Errorf("UTF8Bytes = %q, want %q", got, text)
		}
		if !rt.IsKind(h, native.KindString) {
			t.Errorf("%s is not a string kind", rt.ClassName(h))
		}
		rt.Release(h)
	}
}

func TestEmptyDictionary(t *testing.T) {
	rt := openRuntime(t)
	d := rt.NewDictionary()
	defer rt.Release(d)
	if n := rt.Count(d); n != 0 {
		t.Fatalf("Count = %d", n)
	}
	e := rt.KeyEnumerator(d)
	defer rt.Release(e)
	if k := rt.NextObject(e); !k.IsNil() {
		t.Fatalf("NextObject = %#x, want nil", uintptr(k))
	}
}

func TestDispatchSyncRunsBlocksInOrder(t *testing.T) {
	rt := openRuntime(t)
	q := rt.NewQueue([]byte("vzkit.test\x00"))
	defer rt.Release(q)

	var order []int
	for i := range 5 {
		rt.DispatchAsync(q, func() { order = append(order, i) })
	}
	rt.DispatchSync(q, func() {})

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("ran %d blocks, want 5", len(order))
	}
	if n := pending(); n != 0 {
		t.Fatalf("%d callbacks still registered", n)
	}
}

func TestSupportedIsStable(t *testing.T) {
	rt := openRuntime(t)
	first := rt.Supported()
	for range 3 {
		if rt.Supported() != first {
			t.Fatal("Supported changed between calls")
		}
	}
}
