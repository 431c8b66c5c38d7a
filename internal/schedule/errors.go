package schedule

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed or missing boundary input before any
// write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrNotConnected means the user has never authorized the external calendar;
// operations whose whole purpose is the external call fail with it.
var ErrNotConnected = errors.New("google calendar not connected")

// ErrNotSynced means the event has no external reference yet, so there is
// nothing to update externally.
var ErrNotSynced = errors.New("event not synced to google calendar")

// ErrNotFound means the referenced record does not exist or is not owned by
// the requesting user.
var ErrNotFound = errors.New("record not found")
