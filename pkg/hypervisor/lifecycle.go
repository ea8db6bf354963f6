package hypervisor

import "fmt"

type driverState int

const (
	stateNew driverState = iota
	stateCreated
	stateStarting
	stateRunning
	stateFailed
)

// lifecycle tracks a driver's machine across Create, Start and Close.
// Every Close bumps the generation, so a start that completes after its
// machine was closed cannot overwrite the state of the next one.
// Callers hold the driver mutex.
type lifecycle struct {
	state driverState
	gen   uint64
}

func (l *lifecycle) create() error {
	if l.state != stateNew {
		return ErrAlreadyCreated
	}
	l.state = stateCreated
	return nil
}

// begin marks a start as in flight and returns the generation its
// completion must report against.
func (l *lifecycle) begin() (uint64, error) {
	switch l.state {
	case stateNew:
		return 0, ErrNotCreated
	case stateStarting, stateRunning:
		return 0, ErrAlreadyRunning
	}
	l.state = stateStarting
	return l.gen, nil
}

// finish records the outcome of the start begun at gen. It reports false
// when the machine was closed in the meantime and the outcome was dropped.
func (l *lifecycle) finish(gen uint64, err error) bool {
	if gen != l.gen || l.state != stateStarting {
		return false
	}
	if err != nil {
		l.state = stateFailed
	} else {
		l.state = stateRunning
	}
	return true
}

func (l *lifecycle) reset() {
	l.gen++
	l.state = stateNew
}

// validationResult turns a framework (ok, err) validation pair into a
// single error. A rejection without a reason still wraps
// ErrInvalidConfiguration.
func validationResult(backend string, ok bool, err error) error {
	switch {
	case err != nil:
		return fmt.Errorf("%s: %w: %w", backend, ErrInvalidConfiguration, err)
	case !ok:
		return fmt.Errorf("%s: %w", backend, ErrInvalidConfiguration)
	}
	return nil
}
