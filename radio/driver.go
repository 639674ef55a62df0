// Package radio defines the capability a broadcast session needs from a platform
// Bluetooth stack, plus the error vocabulary every adapter maps onto.
package radio

import (
	"errors"
	"fmt"

	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// Driver starts and stops an iBeacon advertisement on some radio.
//
// StartAdvertising returns an error only when the request could not be submitted at
// all. Otherwise the outcome is reported exactly once through cb, possibly on another
// goroutine and possibly before StartAdvertising returns.
type Driver interface {
	StartAdvertising(raw ibeacon.RawAdvertisement, cb Callback) error
	StopAdvertising() error
}

// Callback receives the asynchronous outcome of StartAdvertising.
type Callback interface {
	OnStartSuccess()
	OnStartFailure(err *DriverError)
}

// CallbackFuncs adapts two functions to Callback. Nil functions are skipped.
type CallbackFuncs struct {
	Success func()
	Failure func(err *DriverError)
}

func (c CallbackFuncs) OnStartSuccess() {
	if c.Success != nil {
		c.Success()
	}
}

func (c CallbackFuncs) OnStartFailure(err *DriverError) {
	if c.Failure != nil {
		c.Failure(err)
	}
}

// Reason classifies why a driver operation failed.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonDataTooLarge
	ReasonTooManyAdvertisers
	ReasonAlreadyStarted
	ReasonInternalError
	ReasonFeatureUnsupported
)

func (r Reason) String() string {
	switch r {
	case ReasonDataTooLarge:
		return "data too large"
	case ReasonTooManyAdvertisers:
		return "too many advertisers"
	case ReasonAlreadyStarted:
		return "already started"
	case ReasonInternalError:
		return "internal error"
	case ReasonFeatureUnsupported:
		return "feature unsupported"
	default:
		return "unknown"
	}
}

// DriverError is the single error type drivers report. Err carries the platform
// detail (an Android code, a D-Bus error, ...) and may be nil.
type DriverError struct {
	Reason Reason
	Op     string // "start" or "stop"
	Err    error
}

func (e *DriverError) Error() string {
	op := e.Op
	if op == "" {
		op = "start"
	}
	if e.Err != nil {
		return fmt.Sprintf("radio: %s advertising: %s: %v", op, e.Reason, e.Err)
	}
	return fmt.Sprintf("radio: %s advertising: %s", op, e.Reason)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Is lets errors.Is match on reason alone: errors.Is(err, &DriverError{Reason: ReasonAlreadyStarted}).
func (e *DriverError) Is(target error) bool {
	t, ok := target.(*DriverError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason && t.Err == nil && t.Op == ""
}

// ErrAlreadyStarted matches any DriverError with ReasonAlreadyStarted under errors.Is.
var ErrAlreadyStarted = &DriverError{Reason: ReasonAlreadyStarted}

// ErrRadioOff is wrapped by drivers whose radio is powered down or missing.
var ErrRadioOff = errors.New("radio: bluetooth is off")

// AsDriverError returns err as a *DriverError, wrapping foreign errors as
// ReasonInternalError.
func AsDriverError(op string, err error) *DriverError {
	if err == nil {
		return nil
	}
	var de *DriverError
	if errors.As(err, &de) {
		return de
	}
	return &DriverError{Reason: ReasonInternalError, Op: op, Err: err}
}
