package update

import (
	"errors"
	"fmt"
)

// ErrNoUpdateAvailable is returned when the host has no pending update for
// the requested artifact. It is not a failure.
var ErrNoUpdateAvailable = errors.New("no update available")

type ErrorKind int

const (
	NoUpdate ErrorKind = iota
	InstallFailed
	HostFault
)

func (k ErrorKind) String() string {
	switch k {
	case NoUpdate:
		return "no_update"
	case InstallFailed:
		return "install_failed"
	case HostFault:
		return "host_fault"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// Error is the normalized outcome of a run that did not install anything.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e.Kind == NoUpdate && e.Err == nil {
		return ErrNoUpdateAvailable
	}
	return e.Err
}

// faultError carries a recovered panic value from the installer.
type faultError struct {
	value any
}

func (f *faultError) Error() string { return fmt.Sprint(f.value) }
