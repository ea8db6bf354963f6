package foundation

import (
	"iter"
	"strings"

	"github.com/javanstorm/vzkit/pkg/native"
)

// Dictionary is an immutable native key/value collection.
//
// The key enumerator is captured when the wrapper is created, so a
// Dictionary can be traversed exactly once: after Next reports the end it
// keeps doing so. Wrap the handle again for another pass.
type Dictionary struct {
	noCopy    noCopy
	rt        native.Runtime
	obj       *native.Object
	enum      *native.Object
	exhausted bool
}

// NewDictionary returns an empty dictionary.
func NewDictionary(rt native.Runtime) *Dictionary {
	return DictionaryFromHandle(rt, rt.NewDictionary())
}

// DictionaryFromHandle takes ownership of a retained dictionary handle and
// captures a fresh key enumerator.
func DictionaryFromHandle(rt native.Runtime, h native.Handle) *Dictionary {
	d := &Dictionary{rt: rt, obj: native.Own(rt, h)}
	if d.obj.Valid() {
		d.enum = native.Own(rt, rt.KeyEnumerator(h))
	}
	return d
}

// Len queries the native count.
func (d *Dictionary) Len() int {
	if !d.obj.Valid() {
		return 0
	}
	return d.rt.Count(d.obj.Handle())
}

func (d *Dictionary) IsEmpty() bool { return d.Len() == 0 }

// Exhausted reports whether the enumerator reached the end.
func (d *Dictionary) Exhausted() bool { return d.exhausted || !d.enum.Valid() }

// Next returns the next entry. The key and value are borrowed from the
// dictionary.
func (d *Dictionary) Next() (key, value native.Borrowed, ok bool) {
	if d.Exhausted() {
		return key, value, false
	}
	k := d.rt.NextObject(d.enum.Handle())
	if k.IsNil() {
		d.exhausted = true
		return key, value, false
	}
	v := d.rt.ObjectForKey(d.obj.Handle(), k)
	return native.Borrow(d.rt, k), native.Borrow(d.rt, v), true
}

// All ranges over the remaining entries. It shares the cursor with Next.
func (d *Dictionary) All() iter.Seq2[native.Borrowed, native.Borrowed] {
	return func(yield func(native.Borrowed, native.Borrowed) bool) {
		for {
			k, v, ok := d.Next()
			if !ok || !yield(k, v) {
				return
			}
		}
	}
}

// Describe renders every entry without touching the cursor of d. Strings
// are shown as text, errors in their multi-line form and anything else as
// a placeholder with the class name.
func (d *Dictionary) Describe() string {
	if !d.obj.Valid() {
		return "{}"
	}
	return describe(d.rt, d.obj.Handle(), 0)
}

func (d *Dictionary) String() string { return d.Describe() }

func describe(rt native.Runtime, h native.Handle, depth int) string {
	pass := DictionaryFromHandle(rt, rt.Retain(h))
	defer pass.Release()

	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k, v := range pass.All() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(keyText(k))
		b.WriteString(": ")
		b.WriteString(valueText(v, depth))
	}
	b.WriteByte('}')
	return b.String()
}

func keyText(k native.Borrowed) string {
	if k.IsKind(native.KindString) {
		if s, err := StringOf(k); err == nil {
			return s
		}
	}
	return k.Placeholder()
}

func valueText(v native.Borrowed, depth int) string {
	switch {
	case v.IsKind(native.KindString):
		if s, err := StringOf(v); err == nil {
			return s
		}
	case v.IsKind(native.KindError):
		var b strings.Builder
		render(&b, v.Runtime(), v.Handle(), "", depth)
		return b.String()
	}
	return v.Placeholder()
}

func (d *Dictionary) Handle() native.Handle { return d.obj.Handle() }

// Release drops the enumerator and the dictionary. Borrowed entries are
// invalid afterwards.
func (d *Dictionary) Release() {
	d.enum.Release()
	d.obj.Release()
}
