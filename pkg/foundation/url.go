package foundation

import "github.com/javanstorm/vzkit/pkg/native"

// URL is a native file URL.
type URL struct {
	noCopy noCopy
	rt     native.Runtime
	obj    *native.Object
}

// NewFileURL returns a file URL for path. Relative paths are resolved by the
// native side against the working directory.
func NewFileURL(rt native.Runtime, path string) *URL {
	s := NewString(rt, path)
	defer s.Release()
	return URLFromHandle(rt, rt.FileURL(s.Handle()))
}

// URLFromHandle takes ownership of a retained URL handle.
func URLFromHandle(rt native.Runtime, h native.Handle) *URL {
	return &URL{rt: rt, obj: native.Own(rt, h)}
}

// Path returns the file-system path of the URL.
func (u *URL) Path() string {
	s := StringFromHandle(u.rt, u.rt.URLPath(u.obj.Handle()))
	defer s.Release()
	return s.String()
}

func (u *URL) Handle() native.Handle { return u.obj.Handle() }

func (u *URL) Detach() native.Handle { return u.obj.Detach() }

func (u *URL) Release() { u.obj.Release() }
