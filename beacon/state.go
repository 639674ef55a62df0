// Package beacon owns the single broadcast session of the process and the service
// that feeds it edited and persisted records.
package beacon

import (
	"errors"
	"fmt"

	"github.com/user/ibeacon-blue/radio"
)

// State of a broadcast session.
type State int

const (
	Inactive State = iota
	Starting       // start submitted, driver has not confirmed yet
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Starting:
		return "starting"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrAlreadyActive = errors.New("beacon: broadcast already active")
	ErrNotActive     = errors.New("beacon: broadcast not active")

	// ErrStartAborted resolves a pending start that Stop or Close overtook.
	ErrStartAborted = errors.New("beacon: start aborted by stop")

	// ErrRecoverableConflict matches a ConflictError whose cleanup stop succeeded.
	ErrRecoverableConflict = errors.New("beacon: radio was already advertising")
)

// ConflictError reports that the driver refused to start because it was already
// advertising. The session stopped the driver in response; StopErr is set when that
// stop failed, in which case the session stays Active.
type ConflictError struct {
	Cause   *radio.DriverError
	StopErr error
}

func (e *ConflictError) Error() string {
	if e.StopErr != nil {
		return fmt.Sprintf("beacon: radio already advertising and stop failed: %v", e.StopErr)
	}
	return "beacon: radio was already advertising; stopped it, start again to broadcast"
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrRecoverableConflict && e.StopErr == nil
}

func (e *ConflictError) Unwrap() []error {
	errs := []error{e.Cause}
	if e.StopErr != nil {
		errs = append(errs, e.StopErr)
	}
	return errs
}
