// Package foundation wraps the handful of Foundation and libdispatch objects
// the virtualization layer needs: strings, file URLs, dictionaries, errors
// and serial dispatch queues.
//
// Every wrapper owns exactly one native reference. Conversions that hand the
// object to someone else (Detach) leave the wrapper empty; Release is
// idempotent. Values obtained by iterating a Dictionary are borrowed and must
// not outlive it.
package foundation

import "errors"

// ErrInvalidUTF8 is returned when a native string does not decode as UTF-8.
var ErrInvalidUTF8 = errors.New("foundation: string is not valid UTF-8")

// Well-known NSError user info keys.
const (
	LocalizedFailureKey       = "NSLocalizedFailure"
	LocalizedFailureReasonKey = "NSLocalizedFailureReason"
	UnderlyingErrorKey        = "NSUnderlyingError"
)

// noCopy makes go vet's copylocks check flag wrappers copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
