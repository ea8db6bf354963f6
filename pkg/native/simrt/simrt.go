// Package simrt is an in-memory implementation of native.Runtime.
//
// It keeps a reference-counted object table that behaves like the
// Objective-C runtime closely enough to catch ownership bugs: releasing a
// dead handle or messaging a deallocated object panics, and Live reports
// how many objects are still allocated. Dispatch queues are goroutines fed
// by unbounded channels, and virtual machines "boot" by delivering a
// completion on their queue.
package simrt

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/javanstorm/vzkit/pkg/native"
)

type class int

const (
	classString class = iota + 1
	classURL
	classDictionary
	classEnumerator
	classError
	classQueue
	classBootLoader
	classConfiguration
	classVirtualMachine
)

var classNames = map[class]string{
	classString:         "__NSCFString",
	classURL:            "NSURL",
	classDictionary:     "__NSDictionaryM",
	classEnumerator:     "__NSDictionaryEnumerator",
	classError:          "NSError",
	classQueue:          "OS_dispatch_queue_serial",
	classBootLoader:     "VZLinuxBootLoader",
	classConfiguration:  "VZVirtualMachineConfiguration",
	classVirtualMachine: "VZVirtualMachine",
}

// VMState is the simulated machine state.
type VMState int

const (
	VMStopped VMState = iota
	VMStarting
	VMRunning
	VMError
)

type object struct {
	class class
	refs  int

	// string, url
	text []byte

	// dictionary: insertion ordered keys, both keys and values retained
	keys   []native.Handle
	values map[native.Handle]native.Handle

	// enumerator: retained snapshot of keys plus the dictionary
	snapshot []native.Handle
	cursor   int
	parent   native.Handle

	// error
	code        int
	domain      native.Handle
	description native.Handle
	userInfo    native.Handle

	queue *queue

	// boot loader
	kernel, cmdline, initrd native.Handle

	// configuration
	loader native.Handle
	cpus   uint64
	memory uint64

	// virtual machine
	config  native.Handle
	vmQueue native.Handle
	vmState VMState
}

func (o *object) children() []native.Handle {
	var out []native.Handle
	add := func(hs ...native.Handle) {
		for _, h := range hs {
			if !h.IsNil() {
				out = append(out, h)
			}
		}
	}
	add(o.keys...)
	for _, k := range o.keys {
		add(o.values[k])
	}
	add(o.snapshot...)
	add(o.parent, o.domain, o.description, o.userInfo)
	add(o.kernel, o.cmdline, o.initrd, o.loader, o.config, o.vmQueue)
	return out
}

// Runtime is a simulated Objective-C runtime. The zero value is not usable;
// call New.
type Runtime struct {
	mu      sync.Mutex
	objects map[native.Handle]*object
	next    native.Handle

	supported bool
	limits    native.Limits
	outcome   func(StartRequest) *Failure
	delay     time.Duration

	starts sync.WaitGroup
}

var _ native.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithSupported sets the answer of the host capability query.
func WithSupported(supported bool) Option {
	return func(r *Runtime) { r.supported = supported }
}

// WithLimits overrides the configuration bounds.
func WithLimits(l native.Limits) Option {
	return func(r *Runtime) { r.limits = l }
}

// WithStartOutcome decides how simulated starts end. Returning nil means the
// machine booted.
func WithStartOutcome(fn func(StartRequest) *Failure) Option {
	return func(r *Runtime) { r.outcome = fn }
}

// WithStartDelay delays the completion of every start.
func WithStartDelay(d time.Duration) Option {
	return func(r *Runtime) { r.delay = d }
}

// New returns a simulated runtime for a host that supports virtualization.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		objects:   make(map[native.Handle]*object),
		next:      0x10000,
		supported: true,
		limits: native.Limits{
			MinCPUCount:   1,
			MaxCPUCount:   64,
			MinMemorySize: 128 << 20,
			MaxMemorySize: 64 << 30,
		},
	}
	r.outcome = r.defaultOutcome
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Live returns the number of objects that are still allocated.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// RefCount returns the reference count of h, or 0 if it was deallocated.
func (r *Runtime) RefCount(h native.Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.objects[h]; ok {
		return o.refs
	}
	return 0
}

// Wait blocks until every simulated start has delivered its completion.
func (r *Runtime) Wait() {
	r.starts.Wait()
}

func (r *Runtime) allocLocked(o *object) native.Handle {
	r.next += 0x10
	o.refs = 1
	r.objects[r.next] = o
	return r.next
}

func (r *Runtime) getLocked(h native.Handle, want class) *object {
	o, ok := r.objects[h]
	if !ok {
		panic(fmt.Sprintf("simrt: message sent to deallocated instance %#x", uintptr(h)))
	}
	if want != 0 && o.class != want {
		panic(fmt.Sprintf("simrt: %s %#x does not respond to a %s selector",
			classNames[o.class], uintptr(h), classNames[want]))
	}
	return o
}

func (r *Runtime) retainLocked(h native.Handle) native.Handle {
	if h.IsNil() {
		return h
	}
	r.getLocked(h, 0).refs++
	return h
}

func (r *Runtime) releaseLocked(h native.Handle) {
	stack := []native.Handle{h}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		o, ok := r.objects[h]
		if !ok {
			panic(fmt.Sprintf("simrt: over-release of %#x", uintptr(h)))
		}
		o.refs--
		if o.refs > 0 {
			continue
		}
		delete(r.objects, h)
		stack = append(stack, o.children()...)
		if o.queue != nil {
			o.queue.close()
		}
	}
}

func (r *Runtime) Retain(h native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retainLocked(h)
}

func (r *Runtime) Release(h native.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(h)
}

func (r *Runtime) ClassName(h native.Handle) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return classNames[r.getLocked(h, 0).class]
}

func (r *Runtime) IsKind(h native.Handle, k native.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getLocked(h, 0).class
	switch k {
	case native.KindString:
		return c == classString
	case native.KindError:
		return c == classError
	case native.KindDictionary:
		return c == classDictionary
	case native.KindURL:
		return c == classURL
	}
	return false
}

func (r *Runtime) NewString(b []byte) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newStringLocked(b)
}

func (r *Runtime) newStringLocked(b []byte) native.Handle {
	return r.allocLocked(&object{class: classString, text: bytes.Clone(b)})
}

func (r *Runtime) UTF8Length(h native.Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.getLocked(h, classString).text)
}

func (r *Runtime) UTF8Bytes(h native.Handle, n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	text := r.getLocked(h, classString).text
	if n > len(text) {
		n = len(text)
	}
	return bytes.Clone(text[:n])
}

func (r *Runtime) FileURL(path native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := string(r.getLocked(path, classString).text)
	if !filepath.IsAbs(p) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	return r.allocLocked(&object{class: classURL, text: []byte(p)})
}

func (r *Runtime) URLPath(url native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newStringLocked(r.getLocked(url, classURL).text)
}

func (r *Runtime) textLocked(h native.Handle) string {
	if h.IsNil() {
		return ""
	}
	return string(r.objects[h].text)
}
