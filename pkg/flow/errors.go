package flow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCommandNotFound is returned when an invocation names an
	// unregistered command.
	ErrCommandNotFound = errors.New("command not found")

	// ErrUnauthorized is returned when a non-privileged sender invokes a
	// private command.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicateCommand is returned by Registry.Register on a name
	// collision. Re-registration is always rejected.
	ErrDuplicateCommand = errors.New("command already registered")

	// ErrStopped resolves a programmatic invocation whose frame was
	// cancelled with the stop token before finishing.
	ErrStopped = errors.New("flow stopped")
)

// CooldownError is returned when a sender invokes a command again before
// its cooldown window has elapsed.
type CooldownError struct {
	Command   string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("command %s on cooldown for %s", e.Command, e.Remaining.Round(time.Second))
}
