//go:build darwin

package objcrt

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/ebitengine/purego/objc"

	"github.com/javanstorm/vzkit/pkg/native"
)

const nsUTF8StringEncoding = 4

const (
	libobjcPath        = "/usr/lib/libobjc.A.dylib"
	libSystemPath      = "/usr/lib/libSystem.B.dylib"
	foundationPath     = "/System/Library/Frameworks/Foundation.framework/Foundation"
	virtualizationPath = "/System/Library/Frameworks/Virtualization.framework/Virtualization"
)

var (
	loadOnce sync.Once
	loadErr  error

	objectGetClassName func(obj uintptr) string

	dispatchQueueCreate func(label unsafe.Pointer, attr uintptr) uintptr
	dispatchAsync       func(queue uintptr, block unsafe.Pointer)
	dispatchSync        func(queue uintptr, block unsafe.Pointer)

	classNSAutoreleasePool objc.Class
	classNSString          objc.Class
	classNSURL             objc.Class
	classNSDictionary      objc.Class
	classNSError           objc.Class
	classBootLoader        objc.Class
	classConfiguration     objc.Class
	classVirtualMachine    objc.Class
)

var (
	selAlloc   objc.SEL
	selInit    objc.SEL
	selRetain  objc.SEL
	selRelease objc.SEL

	selIsKindOfClass objc.SEL

	selInitWithBytes     objc.SEL
	selLengthOfBytes     objc.SEL
	selUTF8String        objc.SEL
	selInitFileURL       objc.SEL
	selPath              objc.SEL
	selCount             objc.SEL
	selKeyEnumerator     objc.SEL
	selNextObject        objc.SEL
	selObjectForKey      objc.SEL
	selCode              objc.SEL
	selDomain            objc.SEL
	selLocalizedDesc     objc.SEL
	selUserInfo          objc.SEL
	selIsSupported       objc.SEL
	selMinCPUCount       objc.SEL
	selMaxCPUCount       objc.SEL
	selMinMemorySize     objc.SEL
	selMaxMemorySize     objc.SEL
	selInitWithKernelURL objc.SEL
	selSetKernelURL      objc.SEL
	selSetCommandLine    objc.SEL
	selSetInitrdURL      objc.SEL
	selKernelURL         objc.SEL
	selCommandLine       objc.SEL
	selInitrdURL         objc.SEL
	selSetBootLoader     objc.SEL
	selSetCPUCount       objc.SEL
	selSetMemorySize     objc.SEL
	selCPUCount          objc.SEL
	selMemorySize        objc.SEL
	selValidateWithError objc.SEL
	selInitWithConfigQ   objc.SEL
	selStartWithHandler  objc.SEL
)

func load() error {
	loadOnce.Do(func() {
		loadErr = loadLibraries()
		if loadErr == nil {
			loadSelectors()
		}
	})
	return loadErr
}

func loadLibraries() error {
	objcLib, err := purego.Dlopen(libobjcPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("objcrt: load libobjc: %w", err)
	}
	if _, err := purego.Dlopen(foundationPath, purego.RTLD_NOW|purego.RTLD_GLOBAL); err != nil {
		return fmt.Errorf("objcrt: load Foundation: %w", err)
	}
	if _, err := purego.Dlopen(virtualizationPath, purego.RTLD_NOW|purego.RTLD_GLOBAL); err != nil {
		return fmt.Errorf("objcrt: load Virtualization: %w", err)
	}
	system, err := purego.Dlopen(libSystemPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("objcrt: load libSystem: %w", err)
	}

	purego.RegisterLibFunc(&objectGetClassName, objcLib, "object_getClassName")
	purego.RegisterLibFunc(&dispatchQueueCreate, system, "dispatch_queue_create")
	purego.RegisterLibFunc(&dispatchAsync, system, "dispatch_async")
	purego.RegisterLibFunc(&dispatchSync, system, "dispatch_sync")

	if err := loadBlocks(system); err != nil {
		return fmt.Errorf("objcrt: resolve block runtime: %w", err)
	}

	for name, dst := range map[string]*objc.Class{
		"NSAutoreleasePool":             &classNSAutoreleasePool,
		"NSString":                      &classNSString,
		"NSURL":                         &classNSURL,
		"NSDictionary":                  &classNSDictionary,
		"NSError":                       &classNSError,
		"VZLinuxBootLoader":             &classBootLoader,
		"VZVirtualMachineConfiguration": &classConfiguration,
		"VZVirtualMachine":              &classVirtualMachine,
	} {
		cls := objc.GetClass(name)
		if cls == 0 {
			return fmt.Errorf("objcrt: class %s not found: %w", name, native.ErrUnsupported)
		}
		*dst = cls
	}
	return nil
}

func loadSelectors() {
	selAlloc = objc.RegisterName("alloc")
	selInit = objc.RegisterName("init")
	selRetain = objc.RegisterName("retain")
	selRelease = objc.RegisterName("release")
	selIsKindOfClass = objc.RegisterName("isKindOfClass:")

	selInitWithBytes = objc.RegisterName("initWithBytes:length:encoding:")
	selLengthOfBytes = objc.RegisterName("lengthOfBytesUsingEncoding:")
	selUTF8String = objc.RegisterName("UTF8String")
	selInitFileURL = objc.RegisterName("initFileURLWithPath:")
	selPath = objc.RegisterName("path")
	selCount = objc.RegisterName("count")
	selKeyEnumerator = objc.RegisterName("keyEnumerator")
	selNextObject = objc.RegisterName("nextObject")
	selObjectForKey = objc.RegisterName("objectForKey:")
	selCode = objc.RegisterName("code")
	selDomain = objc.RegisterName("domain")
	selLocalizedDesc = objc.RegisterName("localizedDescription")
	selUserInfo = objc.RegisterName("userInfo")

	selIsSupported = objc.RegisterName("isSupported")
	selMinCPUCount = objc.RegisterName("minimumAllowedCPUCount")
	selMaxCPUCount = objc.RegisterName("maximumAllowedCPUCount")
	selMinMemorySize = objc.RegisterName("minimumAllowedMemorySize")
	selMaxMemorySize = objc.RegisterName("maximumAllowedMemorySize")
	selInitWithKernelURL = objc.RegisterName("initWithKernelURL:")
	selSetKernelURL = objc.RegisterName("setKernelURL:")
	selSetCommandLine = objc.RegisterName("setCommandLine:")
	selSetInitrdURL = objc.RegisterName("setInitialRamdiskURL:")
	selKernelURL = objc.RegisterName("kernelURL")
	selCommandLine = objc.RegisterName("commandLine")
	selInitrdURL = objc.RegisterName("initialRamdiskURL")
	selSetBootLoader = objc.RegisterName("setBootLoader:")
	selSetCPUCount = objc.RegisterName("setCPUCount:")
	selSetMemorySize = objc.RegisterName("setMemorySize:")
	selCPUCount = objc.RegisterName("CPUCount")
	selMemorySize = objc.RegisterName("memorySize")
	selValidateWithError = objc.RegisterName("validateWithError:")
	selInitWithConfigQ = objc.RegisterName("initWithConfiguration:queue:")
	selStartWithHandler = objc.RegisterName("startWithCompletionHandler:")
}

// Runtime is the Objective-C runtime of the current process.
type Runtime struct{}

var _ native.Runtime = (*Runtime)(nil)

// Open loads the frameworks on first use and returns the process runtime.
func Open() (native.Runtime, error) {
	if err := load(); err != nil {
		return nil, err
	}
	return &Runtime{}, nil
}

func id(h native.Handle) objc.ID { return objc.ID(h) }

func handle(v objc.ID) native.Handle { return native.Handle(v) }

func alloc(cls objc.Class) objc.ID {
	return objc.ID(cls).Send(selAlloc)
}

// withPool runs fn inside an autorelease pool on a locked thread. Objects
// autoreleased by fn are gone once it returns unless fn retained them.
func withPool(fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	pool := alloc(classNSAutoreleasePool).Send(selInit)
	defer pool.Send(selRelease)
	fn()
}

// retainedFrom turns an autoreleased (or borrowed) result into an owned one.
func retainedFrom(get func() objc.ID) native.Handle {
	var out objc.ID
	withPool(func() {
		out = get()
		if out != 0 {
			out.Send(selRetain)
		}
	})
	return handle(out)
}

func (*Runtime) Retain(h native.Handle) native.Handle {
	if h.IsNil() {
		return h
	}
	return handle(id(h).Send(selRetain))
}

func (*Runtime) Release(h native.Handle) {
	if !h.IsNil() {
		id(h).Send(selRelease)
	}
}

func (*Runtime) ClassName(h native.Handle) string {
	return objectGetClassName(uintptr(h))
}

func (*Runtime) IsKind(h native.Handle, k native.Kind) bool {
	var cls objc.Class
	switch k {
	case native.KindString:
		cls = classNSString
	case native.KindError:
		cls = classNSError
	case native.KindDictionary:
		cls = classNSDictionary
	case native.KindURL:
		cls = classNSURL
	default:
		return false
	}
	return objc.Send[bool](id(h), selIsKindOfClass, cls)
}

func (*Runtime) NewString(b []byte) native.Handle {
	var p unsafe.Pointer
	if len(b) > 0 {
		p = unsafe.Pointer(&b[0])
	}
	s := alloc(classNSString).Send(selInitWithBytes, p, uint64(len(b)), uint64(nsUTF8StringEncoding))
	runtime.KeepAlive(b)
	return handle(s)
}

func (*Runtime) UTF8Length(h native.Handle) int {
	return int(objc.Send[uint64](id(h), selLengthOfBytes, uint64(nsUTF8StringEncoding)))
}

func (*Runtime) UTF8Bytes(h native.Handle, n int) []byte {
	out := make([]byte, n)
	if n == 0 {
		return out
	}
	withPool(func() {
		p := objc.Send[unsafe.Pointer](id(h), selUTF8String)
		if p != nil {
			copy(out, unsafe.Slice((*byte)(p), n))
		}
	})
	return out
}

func (*Runtime) FileURL(path native.Handle) native.Handle {
	return handle(alloc(classNSURL).Send(selInitFileURL, id(path)))
}

func (*Runtime) URLPath(url native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(url).Send(selPath) })
}

func (*Runtime) NewDictionary() native.Handle {
	return handle(alloc(classNSDictionary).Send(selInit))
}

func (*Runtime) Count(dict native.Handle) int {
	return int(objc.Send[uint64](id(dict), selCount))
}

func (*Runtime) KeyEnumerator(dict native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(dict).Send(selKeyEnumerator) })
}

func (*Runtime) NextObject(enum native.Handle) native.Handle {
	return handle(id(enum).Send(selNextObject))
}

func (*Runtime) ObjectForKey(dict, key native.Handle) native.Handle {
	return handle(id(dict).Send(selObjectForKey, id(key)))
}

func (*Runtime) ErrorCode(h native.Handle) int {
	return int(objc.Send[int64](id(h), selCode))
}

func (*Runtime) ErrorDomain(h native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(h).Send(selDomain) })
}

func (*Runtime) LocalizedDescription(h native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(h).Send(selLocalizedDesc) })
}

func (*Runtime) UserInfo(h native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(h).Send(selUserInfo) })
}

func (*Runtime) NewQueue(label []byte) native.Handle {
	var p unsafe.Pointer
	if len(label) > 0 {
		p = unsafe.Pointer(&label[0])
	}
	q := dispatchQueueCreate(p, 0)
	runtime.KeepAlive(label)
	return native.Handle(q)
}

func (*Runtime) DispatchAsync(queue native.Handle, fn func()) {
	b := voidBlock(fn)
	dispatchAsync(uintptr(queue), b.ptr())
	b.done()
}

func (*Runtime) DispatchSync(queue native.Handle, fn func()) {
	b := voidBlock(fn)
	dispatchSync(uintptr(queue), b.ptr())
	b.done()
}

func (*Runtime) Supported() bool {
	return objc.Send[bool](objc.ID(classVirtualMachine), selIsSupported)
}

func (*Runtime) Limits() native.Limits {
	cfg := objc.ID(classConfiguration)
	return native.Limits{
		MinCPUCount:   objc.Send[uint64](cfg, selMinCPUCount),
		MaxCPUCount:   objc.Send[uint64](cfg, selMaxCPUCount),
		MinMemorySize: objc.Send[uint64](cfg, selMinMemorySize),
		MaxMemorySize: objc.Send[uint64](cfg, selMaxMemorySize),
	}
}

func (*Runtime) NewLinuxBootLoader(kernelURL native.Handle) native.Handle {
	return handle(alloc(classBootLoader).Send(selInitWithKernelURL, id(kernelURL)))
}

func (*Runtime) SetKernelURL(loader, url native.Handle) {
	id(loader).Send(selSetKernelURL, id(url))
}

func (*Runtime) SetCommandLine(loader, cmdline native.Handle) {
	id(loader).Send(selSetCommandLine, id(cmdline))
}

func (*Runtime) SetInitialRamdiskURL(loader, url native.Handle) {
	id(loader).Send(selSetInitrdURL, id(url))
}

func (*Runtime) KernelURL(loader native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(loader).Send(selKernelURL) })
}

func (*Runtime) CommandLine(loader native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(loader).Send(selCommandLine) })
}

func (*Runtime) InitialRamdiskURL(loader native.Handle) native.Handle {
	return retainedFrom(func() objc.ID { return id(loader).Send(selInitrdURL) })
}

func (*Runtime) NewVirtualMachineConfiguration() native.Handle {
	return handle(alloc(classConfiguration).Send(selInit))
}

func (*Runtime) SetBootLoader(config, loader native.Handle) {
	id(config).Send(selSetBootLoader, id(loader))
}

func (*Runtime) SetCPUCount(config native.Handle, n uint64) {
	id(config).Send(selSetCPUCount, n)
}

func (*Runtime) SetMemorySize(config native.Handle, size uint64) {
	id(config).Send(selSetMemorySize, size)
}

func (*Runtime) CPUCount(config native.Handle) uint64 {
	return objc.Send[uint64](id(config), selCPUCount)
}

func (*Runtime) MemorySize(config native.Handle) uint64 {
	return objc.Send[uint64](id(config), selMemorySize)
}

func (*Runtime) ValidateConfiguration(config native.Handle) native.Handle {
	var errOut objc.ID
	withPool(func() {
		var e objc.ID
		if objc.Send[bool](id(config), selValidateWithError, unsafe.Pointer(&e)) {
			return
		}
		if e != 0 {
			errOut = e.Send(selRetain)
		}
	})
	return handle(errOut)
}

func (*Runtime) NewVirtualMachine(config, queue native.Handle) native.Handle {
	return handle(alloc(classVirtualMachine).Send(selInitWithConfigQ, id(config), id(queue)))
}

func (*Runtime) StartVirtualMachine(vm native.Handle, done func(err native.Handle)) {
	b := completionBlock(func(err uintptr) { done(native.Handle(err)) })
	id(vm).Send(selStartWithHandler, b.ptr())
	b.done()
}
