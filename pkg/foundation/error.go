package foundation

import (
	"fmt"
	"strings"

	"github.com/javanstorm/vzkit/pkg/native"
)

// MaxErrorDepth bounds how many errors of an underlying-error chain are
// rendered or captured.
const MaxErrorDepth = 8

const truncatedChain = "<nested error chain truncated>"

// Error is a native error object. It is only ever built from handles the
// native side produced.
type Error struct {
	noCopy noCopy
	rt     native.Runtime
	obj    *native.Object
}

// ErrorFromHandle takes ownership of a retained error handle.
func ErrorFromHandle(rt native.Runtime, h native.Handle) *Error {
	return &Error{rt: rt, obj: native.Own(rt, h)}
}

// ErrorFromBorrowed retains a borrowed error, such as a completion handler
// argument, so it can be inspected after the callback returns.
func ErrorFromBorrowed(b native.Borrowed) *Error {
	return &Error{rt: b.Runtime(), obj: b.Retain()}
}

func (e *Error) Code() int { return e.rt.ErrorCode(e.obj.Handle()) }

func (e *Error) Domain() string {
	return ownedText(e.rt, e.rt.ErrorDomain(e.obj.Handle()))
}

// LocalizedDescription asks the native side every time; nothing is cached.
func (e *Error) LocalizedDescription() string {
	return ownedText(e.rt, e.rt.LocalizedDescription(e.obj.Handle()))
}

// UserInfo wraps the user info dictionary with a fresh enumerator. The
// caller releases it.
func (e *Error) UserInfo() *Dictionary {
	return DictionaryFromHandle(e.rt, e.rt.UserInfo(e.obj.Handle()))
}

// Format renders the error as a multi-line block including its user info.
// Underlying errors are rendered recursively up to MaxErrorDepth.
func (e *Error) Format() string {
	var b strings.Builder
	render(&b, e.rt, e.obj.Handle(), "", 0)
	return b.String()
}

func (e *Error) String() string { return e.Format() }

func (e *Error) Handle() native.Handle { return e.obj.Handle() }

func (e *Error) Release() { e.obj.Release() }

// ownedText decodes and releases a retained string handle. Invalid UTF-8 is
// shown with replacement characters rather than failing a diagnostic path.
func ownedText(rt native.Runtime, h native.Handle) string {
	if h.IsNil() {
		return ""
	}
	s := StringFromHandle(rt, h)
	defer s.Release()
	text, err := s.Text()
	if err != nil {
		return strings.ToValidUTF8(string(rt.UTF8Bytes(h, rt.UTF8Length(h))), "�")
	}
	return text
}

func render(b *strings.Builder, rt native.Runtime, h native.Handle, indent string, depth int) {
	b.WriteString("NSError:\n")
	fmt.Fprintf(b, "%s  domain     : %s\n", indent, ownedText(rt, rt.ErrorDomain(h)))
	fmt.Fprintf(b, "%s  code       : %d\n", indent, rt.ErrorCode(h))
	fmt.Fprintf(b, "%s  description: %s\n", indent, ownedText(rt, rt.LocalizedDescription(h)))

	info := DictionaryFromHandle(rt, rt.UserInfo(h))
	defer info.Release()
	if info.IsEmpty() {
		fmt.Fprintf(b, "%s  userinfo   : { }", indent)
		return
	}

	fmt.Fprintf(b, "%s  userinfo   : {", indent)
	for k, v := range info.All() {
		key := keyText(k)
		fmt.Fprintf(b, "\n%s    %-24s: ", indent, key)
		switch {
		case (key == LocalizedFailureKey || key == LocalizedFailureReasonKey) && v.IsKind(native.KindString):
			b.WriteString(valueText(v, depth))
		case key == UnderlyingErrorKey && v.IsKind(native.KindError):
			if depth+1 >= MaxErrorDepth {
				b.WriteString(truncatedChain)
				continue
			}
			render(b, rt, v.Handle(), indent+"    ", depth+1)
		default:
			b.WriteString(v.Placeholder())
		}
	}
	fmt.Fprintf(b, "\n%s  }", indent)
}

// NativeError is a plain Go snapshot of a native error chain. It stays
// valid after the native object is gone.
type NativeError struct {
	Domain      string
	Code        int
	Description string
	Failure     string
	Reason      string
	Underlying  *NativeError

	// Rendered is the multi-line form produced by Format.
	Rendered string
}

// Capture copies the error chain into Go memory.
func (e *Error) Capture() *NativeError {
	ne := capture(e.rt, e.obj.Handle(), 0)
	ne.Rendered = e.Format()
	return ne
}

func capture(rt native.Runtime, h native.Handle, depth int) *NativeError {
	ne := &NativeError{
		Domain:      ownedText(rt, rt.ErrorDomain(h)),
		Code:        rt.ErrorCode(h),
		Description: ownedText(rt, rt.LocalizedDescription(h)),
	}
	info := DictionaryFromHandle(rt, rt.UserInfo(h))
	defer info.Release()
	for k, v := range info.All() {
		switch keyText(k) {
		case LocalizedFailureKey:
			ne.Failure, _ = StringOf(v)
		case LocalizedFailureReasonKey:
			ne.Reason, _ = StringOf(v)
		case UnderlyingErrorKey:
			if v.IsKind(native.KindError) && depth+1 < MaxErrorDepth {
				ne.Underlying = capture(rt, v.Handle(), depth+1)
			}
		}
	}
	return ne
}

func (e *NativeError) Error() string {
	msg := fmt.Sprintf("%s (%s %d)", e.Description, e.Domain, e.Code)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *NativeError) Unwrap() error {
	if e.Underlying == nil {
		return nil
	}
	return e.Underlying
}

// Is matches another NativeError by domain and code.
func (e *NativeError) Is(target error) bool {
	t, ok := target.(*NativeError)
	return ok && t.Domain == e.Domain && t.Code == e.Code
}
