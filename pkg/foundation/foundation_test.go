package foundation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/javanstorm/vzkit/internal/testutil"
	"github.com/javanstorm/vzkit/pkg/native"
	"github.com/javanstorm/vzkit/pkg/native/simrt"
)

func TestStringRoundTrip(t *testing.T) {
	rt := testutil.Runtime(t)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"ascii", "console=hvc0"},
		{"two byte", "façade"},
		{"three byte", "日本語"},
		{"four byte", "🚀 boot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewString(rt, tt.text)
			defer s.Release()

			got, err := s.Text()
			if err != nil {
				t.Fatalf("Text() error = %v", err)
			}
			if got != tt.text {
				t.Errorf("Text() = %q, want %q", got, tt.text)
			}
			if s.Len() != len(tt.text) {
				t.Errorf("Len() = %d, want %d", s.Len(), len(tt.text))
			}
			if s.IsEmpty() != (tt.text == "") {
				t.Errorf("IsEmpty() = %v", s.IsEmpty())
			}
		})
	}
}

func TestStringInvalidUTF8(t *testing.T) {
	rt := testutil.Runtime(t)

	s := StringFromHandle(rt, rt.NewString([]byte{0xff, 0xfe}))
	defer s.Release()

	if _, err := s.Text(); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("Text() error = %v, want ErrInvalidUTF8", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("String() should panic on invalid UTF-8")
		}
	}()
	_ = s.String()
}

func TestNewStringSanitizes(t *testing.T) {
	rt := testutil.Runtime(t)

	s := NewString(rt, "a\xffb")
	defer s.Release()
	if got := s.String(); got != "a\uFFFDb" {
		t.Errorf("String() = %q", got)
	}
}

func TestStringDetach(t *testing.T) {
	rt := testutil.Runtime(t)

	s := NewString(rt, "owned")
	h := s.Detach()
	s.Release()
	if rt.RefCount(h) != 1 {
		t.Fatalf("RefCount after Detach+Release = %d, want 1", rt.RefCount(h))
	}
	rt.Release(h)
}

func TestFileURL(t *testing.T) {
	rt := testutil.Runtime(t)

	u := NewFileURL(rt, "/a/vmlinuz")
	defer u.Release()
	if got := u.Path(); got != "/a/vmlinuz" {
		t.Errorf("Path() = %q", got)
	}
}

func TestEmptyDictionary(t *testing.T) {
	rt := testutil.Runtime(t)

	d := NewDictionary(rt)
	defer d.Release()

	if d.Len() != 0 || !d.IsEmpty() {
		t.Fatalf("Len() = %d, IsEmpty() = %v", d.Len(), d.IsEmpty())
	}
	if _, _, ok := d.Next(); ok {
		t.Fatal("empty dictionary yielded an entry")
	}
	if !d.Exhausted() {
		t.Fatal("empty dictionary should be exhausted after the first Next")
	}
}

func newTestDictionary(rt *simrt.Runtime, n int) native.Handle {
	var entries []simrt.Entry
	var values []native.Handle
	for i := range n {
		v := rt.NewString([]byte(strings.Repeat("v", i+1)))
		values = append(values, v)
		entries = append(entries, simrt.Entry{Key: strings.Repeat("k", i+1), Value: v})
	}
	h := rt.NewDictionaryOf(entries...)
	for _, v := range values {
		rt.Release(v)
	}
	return h
}

func TestDictionaryIteration(t *testing.T) {
	rt := testutil.Runtime(t)

	d := DictionaryFromHandle(rt, newTestDictionary(rt, 4))
	defer d.Release()

	want := d.Len()
	got := 0
	for k, v := range d.All() {
		key, err := StringOf(k)
		if err != nil {
			t.Fatal(err)
		}
		value, err := StringOf(v)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Repeat("v", len(key)) != value {
			t.Errorf("entry %q => %q", key, value)
		}
		got++
	}
	if got != want {
		t.Fatalf("iterated %d pairs, Len() = %d", got, want)
	}

	// Exhausted is sticky.
	if _, _, ok := d.Next(); ok {
		t.Fatal("exhausted dictionary yielded again")
	}
	for range d.All() {
		t.Fatal("second range over the same dictionary yielded")
	}

	// A fresh wrapper over the same object starts over.
	again := DictionaryFromHandle(rt, rt.Retain(d.Handle()))
	defer again.Release()
	n := 0
	for range again.All() {
		n++
	}
	if n != want {
		t.Fatalf("fresh traversal saw %d pairs, want %d", n, want)
	}
}

func TestDictionaryBreakKeepsCursor(t *testing.T) {
	rt := testutil.Runtime(t)

	d := DictionaryFromHandle(rt, newTestDictionary(rt, 3))
	defer d.Release()

	for range d.All() {
		break
	}
	rest := 0
	for range d.All() {
		rest++
	}
	if rest != 2 {
		t.Fatalf("remaining entries = %d, want 2", rest)
	}
}

func TestDictionaryDescribe(t *testing.T) {
	rt := testutil.Runtime(t)

	s := rt.NewString([]byte("text"))
	e := rt.NewError(simrt.Failure{Domain: "D", Code: 7, Description: "broken"})
	q := rt.NewQueue([]byte("q\x00"))
	h := rt.NewDictionaryOf(
		simrt.Entry{Key: "s", Value: s},
		simrt.Entry{Key: "e", Value: e},
		simrt.Entry{Key: "q", Value: q},
	)
	rt.Release(s)
	rt.Release(e)
	rt.Release(q)

	d := DictionaryFromHandle(rt, h)
	defer d.Release()

	out := d.Describe()
	for _, want := range []string{"s: text", "e: NSError:", "code       : 7", "q: <0x", "(OS_dispatch_queue_serial)>"} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe() missing %q:\n%s", want, out)
		}
	}
	if d.Exhausted() {
		t.Error("Describe consumed the cursor")
	}
}

func TestErrorFormat(t *testing.T) {
	rt := testutil.Runtime(t)

	h := rt.NewError(simrt.Failure{
		Domain:      "VZErrorDomain",
		Code:        1,
		Description: "The virtual machine failed to start.",
		Failure:     "Internal Virtualization error.",
		Reason:      "The boot image could not be loaded.",
		URL:         "/a/vmlinuz",
		Underlying:  &simrt.Failure{Domain: "NSPOSIXErrorDomain", Code: 2, Description: "No such file or directory"},
	})
	e := ErrorFromHandle(rt, h)
	defer e.Release()

	if e.Code() != 1 || e.Domain() != "VZErrorDomain" {
		t.Fatalf("Code/Domain = %d/%s", e.Code(), e.Domain())
	}
	if e.LocalizedDescription() != "The virtual machine failed to start." {
		t.Fatalf("LocalizedDescription() = %q", e.LocalizedDescription())
	}

	out := e.Format()
	for _, want := range []string{
		"NSError:\n",
		"  code       : 1\n",
		"NSLocalizedFailure      : Internal Virtualization error.",
		"NSLocalizedFailureReason: The boot image could not be loaded.",
		"NSURL                   : <0x",
		"NSUnderlyingError       : NSError:",
		"      code       : 2",
		"No such file or directory",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
}

func TestErrorFormatEmptyUserInfo(t *testing.T) {
	rt := testutil.Runtime(t)

	e := ErrorFromHandle(rt, rt.NewError(simrt.Failure{Domain: "D", Code: 3}))
	defer e.Release()
	if !strings.HasSuffix(e.Format(), "userinfo   : { }") {
		t.Errorf("Format() = %q", e.Format())
	}
}

func chain(depth int) *simrt.Failure {
	var f *simrt.Failure
	for i := depth; i > 0; i-- {
		f = &simrt.Failure{Domain: "D", Code: i, Underlying: f}
	}
	return f
}

func TestErrorDepthLimit(t *testing.T) {
	rt := testutil.Runtime(t)

	e := ErrorFromHandle(rt, rt.NewError(*chain(MaxErrorDepth + 3)))
	defer e.Release()

	out := e.Format()
	if n := strings.Count(out, "NSError:"); n != MaxErrorDepth {
		t.Errorf("rendered %d errors, want %d", n, MaxErrorDepth)
	}
	if !strings.Contains(out, truncatedChain) {
		t.Error("truncation marker missing")
	}

	ne := e.Capture()
	levels := 0
	for cur := ne; cur != nil; cur = cur.Underlying {
		levels++
	}
	if levels != MaxErrorDepth {
		t.Errorf("captured %d levels, want %d", levels, MaxErrorDepth)
	}
}

func TestCapture(t *testing.T) {
	rt := testutil.Runtime(t)

	e := ErrorFromHandle(rt, rt.NewError(simrt.Failure{
		Domain:      "VZErrorDomain",
		Code:        2,
		Description: "Invalid virtual machine configuration.",
		Reason:      "A boot loader must be specified.",
		Underlying:  &simrt.Failure{Domain: "NSPOSIXErrorDomain", Code: 22},
	}))
	ne := e.Capture()
	e.Release()

	// The snapshot outlives the native object.
	if ne.Code != 2 || ne.Domain != "VZErrorDomain" || ne.Reason != "A boot loader must be specified." {
		t.Fatalf("Capture() = %+v", ne)
	}
	if !strings.Contains(ne.Error(), "A boot loader must be specified.") {
		t.Errorf("Error() = %q", ne.Error())
	}
	if !errors.Is(ne, &NativeError{Domain: "NSPOSIXErrorDomain", Code: 22}) {
		t.Error("errors.Is should find the underlying error")
	}
	if ne.Rendered == "" {
		t.Error("Rendered is empty")
	}
}

func TestErrorFromBorrowed(t *testing.T) {
	rt := testutil.Runtime(t)

	h := rt.NewError(simrt.Failure{Domain: "D", Code: 9})
	e := ErrorFromBorrowed(native.Borrow(rt, h))
	rt.Release(h)
	if e.Code() != 9 {
		t.Fatalf("Code() = %d", e.Code())
	}
	e.Release()
}

func TestDispatchQueueOrdering(t *testing.T) {
	rt := testutil.Runtime(t)

	q := NewDispatchQueue(rt, "vzkit.test.queue")
	defer q.Release()
	if rt.QueueLabel(q.Handle()) != "vzkit.test.queue" {
		t.Fatalf("native label = %q", rt.QueueLabel(q.Handle()))
	}

	var mu sync.Mutex
	var seen []int
	for i := range 50 {
		if err := q.Async(context.Background(), func() {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		}); err != nil {
			t.Fatal(err)
		}
	}
	q.Sync(func() {})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		if v != i {
			t.Fatalf("out of order: %v", seen)
		}
	}
	if len(seen) != 50 {
		t.Fatalf("ran %d of 50 blocks", len(seen))
	}
}

func TestDispatchAsyncReturnsBeforeWorkRuns(t *testing.T) {
	rt := testutil.Runtime(t)

	q := NewDispatchQueue(rt, "vzkit.test.async")
	defer q.Release()

	release := make(chan struct{})
	ran := make(chan struct{})
	if err := q.Async(context.Background(), func() {
		<-release
		close(ran)
	}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
		t.Fatal("work ran before it was allowed to")
	default:
	}
	close(release)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("work never ran")
	}
}

func TestDispatchAsyncCancelledContext(t *testing.T) {
	rt := testutil.Runtime(t)

	q := NewDispatchQueue(rt, "vzkit.test.cancel")
	defer q.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Async(ctx, func() { t.Error("work submitted despite cancelled context") }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Async() error = %v", err)
	}
	q.Sync(func() {})
}

func TestDispatchSyncBlocks(t *testing.T) {
	rt := testutil.Runtime(t)

	q := NewDispatchQueue(rt, "vzkit.test.sync")
	defer q.Release()

	done := false
	q.Sync(func() {
		time.Sleep(10 * time.Millisecond)
		done = true
	})
	if !done {
		t.Fatal("Sync returned before the block finished")
	}
}
