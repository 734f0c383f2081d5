package lifecycle

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced application, document type or
// uploaded document does not exist.
var ErrNotFound = errors.New("not found")

// InvalidTransitionError is returned when an event is not permitted from
// the application's current status. No state is changed.
type InvalidTransitionError struct {
	Event         Event
	CurrentStatus Status
	Reason        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %q from status %q: %s", e.Event, e.CurrentStatus, e.Reason)
}

// GuardFailedError is returned when an event is in principle reachable
// from the current status but its preconditions are unmet.
type GuardFailedError struct {
	Event  Event
	Reason string
}

func (e *GuardFailedError) Error() string {
	return fmt.Sprintf("guard failed for %q: %s", e.Event, e.Reason)
}

// AlreadyConfiguredError is returned when a stage's document set is locked
// against reconfiguration because its gating event has already fired.
type AlreadyConfiguredError struct {
	Stage Stage
}

func (e *AlreadyConfiguredError) Error() string {
	return fmt.Sprintf("document set for stage %q is locked and cannot be reconfigured", e.Stage)
}

// AlreadyFinalizedError is returned on an attempt to re-write a field that
// is set at most once, such as the interview result.
type AlreadyFinalizedError struct {
	Field string
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("%s has already been finalized", e.Field)
}

func invalidTransition(ev Event, status Status, reason string) error {
	return &InvalidTransitionError{Event: ev, CurrentStatus: status, Reason: reason}
}

func guardFailed(ev Event, format string, args ...interface{}) error {
	return &GuardFailedError{Event: ev, Reason: fmt.Sprintf(format, args...)}
}
