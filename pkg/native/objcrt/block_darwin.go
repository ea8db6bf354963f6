//go:build darwin

package objcrt

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Block literal layout from the clang blocks ABI. flags stay zero: the
// literal carries no captured objects, so the runtime copies it with a plain
// memcpy and the token survives Block_copy.
type blockLiteral struct {
	isa        uintptr
	flags      int32
	reserved   int32
	invoke     uintptr
	descriptor uintptr
	token      uintptr
}

type blockDescriptor struct {
	reserved uint64
	size     uint64
}

var (
	stackBlockClass uintptr
	descriptor      = blockDescriptor{size: uint64(unsafe.Sizeof(blockLiteral{}))}

	invokeVoid       uintptr
	invokeCompletion uintptr
)

// callbacks maps block tokens to the Go side of each block. Entries are
// removed when the block runs, so every block is one-shot.
var callbacks = struct {
	sync.Mutex
	next  uintptr
	funcs map[uintptr]any
}{funcs: make(map[uintptr]any)}

func register(fn any) uintptr {
	callbacks.Lock()
	defer callbacks.Unlock()
	callbacks.next++
	callbacks.funcs[callbacks.next] = fn
	return callbacks.next
}

func take(token uintptr) any {
	callbacks.Lock()
	defer callbacks.Unlock()
	fn := callbacks.funcs[token]
	delete(callbacks.funcs, token)
	return fn
}

func pending() int {
	callbacks.Lock()
	defer callbacks.Unlock()
	return len(callbacks.funcs)
}

// tokenOf reads the token out of a block pointer handed to an invoke
// function. The pointer may be the heap copy made by Block_copy.
func tokenOf(block uintptr) uintptr {
	return (*blockLiteral)(unsafe.Pointer(block)).token
}

// loadBlocks resolves the stack block isa and creates the two trampolines.
// purego callbacks are a finite resource, so there is exactly one per block
// signature.
func loadBlocks(libSystem uintptr) error {
	isa, err := purego.Dlsym(libSystem, "_NSConcreteStackBlock")
	if err != nil {
		return err
	}
	stackBlockClass = isa

	invokeVoid = purego.NewCallback(func(block uintptr) uintptr {
		if fn, ok := take(tokenOf(block)).(func()); ok {
			fn()
		}
		return 0
	})
	invokeCompletion = purego.NewCallback(func(block, err uintptr) uintptr {
		if fn, ok := take(tokenOf(block)).(func(uintptr)); ok {
			fn(err)
		}
		return 0
	})
	return nil
}

// block is a stack block literal plus the pin that keeps it in place while
// native code may read it.
type block struct {
	lit    *blockLiteral
	pinner runtime.Pinner
}

func newBlock(invoke uintptr, fn any) *block {
	b := &block{lit: &blockLiteral{
		isa:        stackBlockClass,
		invoke:     invoke,
		descriptor: uintptr(unsafe.Pointer(&descriptor)),
		token:      register(fn),
	}}
	b.pinner.Pin(b.lit)
	return b
}

func voidBlock(fn func()) *block {
	return newBlock(invokeVoid, fn)
}

func completionBlock(fn func(err uintptr)) *block {
	return newBlock(invokeCompletion, fn)
}

func (b *block) ptr() unsafe.Pointer {
	return unsafe.Pointer(b.lit)
}

// done unpins the literal. Call it once the native call that received the
// block has returned; anything kept past that point was copied.
func (b *block) done() {
	b.pinner.Unpin()
}
