// Package objcrt implements native.Runtime on macOS by calling into libobjc,
// Foundation, libdispatch and Virtualization.framework through purego.
//
// No cgo is involved. Closures handed to the runtime are wrapped in block
// literals whose invoke function is a purego callback; the Go function itself
// stays on the Go side in a one-shot callback table keyed by a token stored
// in the literal.
//
// On other platforms Open returns native.ErrUnsupported.
package objcrt
