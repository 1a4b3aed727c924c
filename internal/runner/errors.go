package runner

import "errors"

// Domain errors for the runner package.
var (
	// ErrInvalidBot is returned when a bot profile fails validation.
	ErrInvalidBot = errors.New("bot: invalid")

	// ErrRunNotFound is returned when a run id is not tracked.
	ErrRunNotFound = errors.New("run: not found")
)
