package core

import "errors"

// Status is the HAL result taxonomy. It implements error so fallible
// operations can return it directly; StatusOK is never returned as an error,
// nil is used instead.
type Status uint8

const (
	StatusOK         Status = iota // success
	StatusError                    // unspecified hardware misbehavior
	StatusBusy                     // resource currently in use
	StatusTimeout                  // bounded wait expired
	StatusInvalidArg               // argument out of range or inconsistent with state
	StatusNotReady                 // operation attempted before init
	StatusNoMemory                 // bounded buffer full
	StatusNotFound                 // addressed device did not ACK
	StatusPermission               // configuration forbidden after lock
	StatusHwError                  // mid-transaction fault
)

// Sentinel errors. They are Status values, so errors.Is matches by equality.
var (
	ErrUnspecified error = StatusError
	ErrBusy        error = StatusBusy
	ErrTimeout     error = StatusTimeout
	ErrInvalidArg  error = StatusInvalidArg
	ErrNotReady    error = StatusNotReady
	ErrNoMemory    error = StatusNoMemory
	ErrNotFound    error = StatusNotFound
	ErrPermission  error = StatusPermission
	ErrHardware    error = StatusHwError
)

func (s Status) Error() string {
	return s.String()
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusBusy:
		return "busy"
	case StatusTimeout:
		return "timeout"
	case StatusInvalidArg:
		return "invalid argument"
	case StatusNotReady:
		return "not ready"
	case StatusNoMemory:
		return "no memory"
	case StatusNotFound:
		return "not found"
	case StatusPermission:
		return "permission denied"
	case StatusHwError:
		return "hardware error"
	}
	return "status(" + utoa(uint32(s)) + ")"
}

// StatusOf maps an error returned by this package back to its Status.
// Errors that carry no Status report StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusError
}
