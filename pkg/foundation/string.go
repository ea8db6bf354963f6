package foundation

import (
	"strings"
	"unicode/utf8"

	"github.com/javanstorm/vzkit/pkg/native"
)

// String is an immutable native string.
type String struct {
	noCopy noCopy
	rt     native.Runtime
	obj    *native.Object
}

// NewString creates a native string holding text. Invalid UTF-8 sequences in
// text are replaced with U+FFFD, since the native side only accepts UTF-8.
func NewString(rt native.Runtime, text string) *String {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return StringFromHandle(rt, rt.NewString([]byte(text)))
}

// StringFromHandle takes ownership of a retained string handle.
func StringFromHandle(rt native.Runtime, h native.Handle) *String {
	return &String{rt: rt, obj: native.Own(rt, h)}
}

// StringOf decodes a borrowed string without taking a reference.
func StringOf(b native.Borrowed) (string, error) {
	if b.IsNil() {
		return "", nil
	}
	return decode(b.Runtime(), b.Handle())
}

func decode(rt native.Strings, h native.Handle) (string, error) {
	n := rt.UTF8Length(h)
	buf := rt.UTF8Bytes(h, n)
	if !utf8.Valid(buf) {
		return "", ErrInvalidUTF8
	}
	return string(buf), nil
}

// Text decodes the string. The length is queried on every call.
func (s *String) Text() (string, error) {
	if !s.obj.Valid() {
		return "", nil
	}
	return decode(s.rt, s.obj.Handle())
}

// String is Text for contexts that cannot fail. It panics if the native
// bytes are not UTF-8.
func (s *String) String() string {
	text, err := s.Text()
	if err != nil {
		panic(err)
	}
	return text
}

// Len returns the length in UTF-8 bytes.
func (s *String) Len() int {
	if !s.obj.Valid() {
		return 0
	}
	return s.rt.UTF8Length(s.obj.Handle())
}

func (s *String) IsEmpty() bool { return s.Len() == 0 }

func (s *String) Handle() native.Handle { return s.obj.Handle() }

// Detach hands the native reference to the caller.
func (s *String) Detach() native.Handle { return s.obj.Detach() }

func (s *String) Release() { s.obj.Release() }
