package simrt

import (
	"bytes"
	"fmt"

	"github.com/javanstorm/vzkit/pkg/native"
)

// Entry is a key/value pair for NewDictionaryOf. The value is retained by
// the dictionary; the caller keeps its own reference.
type Entry struct {
	Key   string
	Value native.Handle
}

func (r *Runtime) NewDictionary() native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newDictionaryLocked()
}

func (r *Runtime) newDictionaryLocked() native.Handle {
	return r.allocLocked(&object{class: classDictionary, values: make(map[native.Handle]native.Handle)})
}

// NewDictionaryOf returns a dictionary holding entries in order.
func (r *Runtime) NewDictionaryOf(entries ...Entry) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	dict := r.newDictionaryLocked()
	for _, e := range entries {
		r.setObjectLocked(dict, e.Key, e.Value)
	}
	return dict
}

// SetObject stores value under key, replacing any previous value. It
// mutates the dictionary behind the back of existing enumerators, which keep
// their snapshot.
func (r *Runtime) SetObject(dict native.Handle, key string, value native.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setObjectLocked(dict, key, value)
}

func (r *Runtime) setObjectLocked(dict native.Handle, key string, value native.Handle) {
	d := r.getLocked(dict, classDictionary)
	r.retainLocked(value)
	if k, ok := r.findKeyLocked(d, []byte(key)); ok {
		old := d.values[k]
		d.values[k] = value
		if !old.IsNil() {
			r.releaseLocked(old)
		}
		return
	}
	k := r.newStringLocked([]byte(key))
	d.keys = append(d.keys, k)
	d.values[k] = value
}

func (r *Runtime) findKeyLocked(d *object, key []byte) (native.Handle, bool) {
	for _, k := range d.keys {
		if bytes.Equal(r.objects[k].text, key) {
			return k, true
		}
	}
	return native.Nil, false
}

func (r *Runtime) Count(dict native.Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.getLocked(dict, classDictionary).keys)
}

func (r *Runtime) KeyEnumerator(dict native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.getLocked(dict, classDictionary)
	snapshot := make([]native.Handle, len(d.keys))
	for i, k := range d.keys {
		snapshot[i] = r.retainLocked(k)
	}
	return r.allocLocked(&object{
		class:    classEnumerator,
		snapshot: snapshot,
		parent:   r.retainLocked(dict),
	})
}

func (r *Runtime) NextObject(enum native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.getLocked(enum, classEnumerator)
	if e.cursor >= len(e.snapshot) {
		return native.Nil
	}
	k := e.snapshot[e.cursor]
	e.cursor++
	return k
}

func (r *Runtime) ObjectForKey(dict, key native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.getLocked(dict, classDictionary)
	if v, ok := d.values[key]; ok {
		return v
	}
	if ko, ok := r.objects[key]; ok && ko.class == classString {
		if k, ok := r.findKeyLocked(d, ko.text); ok {
			return d.values[k]
		}
	}
	return native.Nil
}

// Well-known user info keys.
const (
	LocalizedFailureKey       = "NSLocalizedFailure"
	LocalizedFailureReasonKey = "NSLocalizedFailureReason"
	UnderlyingErrorKey        = "NSUnderlyingError"
	URLKey                    = "NSURL"
)

// Failure describes an error object to build with NewError.
type Failure struct {
	Domain      string
	Code        int
	Description string
	Failure     string
	Reason      string
	// URL is stored under NSURL as a URL object.
	URL        string
	Info       map[string]string
	Underlying *Failure
}

// NewError builds an owned error object from f.
func (r *Runtime) NewError(f Failure) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newErrorLocked(&f)
}

func (r *Runtime) newErrorLocked(f *Failure) native.Handle {
	info := r.newDictionaryLocked()
	setString := func(key, value string) {
		if value == "" {
			return
		}
		s := r.newStringLocked([]byte(value))
		r.setObjectLocked(info, key, s)
		r.releaseLocked(s)
	}
	setString(LocalizedFailureKey, f.Failure)
	setString(LocalizedFailureReasonKey, f.Reason)
	for k, v := range f.Info {
		setString(k, v)
	}
	if f.URL != "" {
		u := r.allocLocked(&object{class: classURL, text: []byte(f.URL)})
		r.setObjectLocked(info, URLKey, u)
		r.releaseLocked(u)
	}
	if f.Underlying != nil {
		u := r.newErrorLocked(f.Underlying)
		r.setObjectLocked(info, UnderlyingErrorKey, u)
		r.releaseLocked(u)
	}

	description := f.Description
	if description == "" {
		description = fmt.Sprintf("The operation couldn’t be completed. (%s error %d.)", f.Domain, f.Code)
	}
	return r.allocLocked(&object{
		class:       classError,
		code:        f.Code,
		domain:      r.newStringLocked([]byte(f.Domain)),
		description: r.newStringLocked([]byte(description)),
		userInfo:    info,
	})
}

func (r *Runtime) ErrorCode(h native.Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(h, classError).code
}

func (r *Runtime) ErrorDomain(h native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retainLocked(r.getLocked(h, classError).domain)
}

func (r *Runtime) LocalizedDescription(h native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retainLocked(r.getLocked(h, classError).description)
}

func (r *Runtime) UserInfo(h native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retainLocked(r.getLocked(h, classError).userInfo)
}
