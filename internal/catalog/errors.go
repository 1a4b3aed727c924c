package catalog

import "errors"

// Domain errors for the catalog package.
var (
	// ErrScriptNotFound is returned when a script name does not exist.
	ErrScriptNotFound = errors.New("script: not found")

	// ErrScriptExists is returned when creating a script whose name is taken.
	ErrScriptExists = errors.New("script: already exists")

	// ErrBotNotFound is returned when a bot id does not exist.
	ErrBotNotFound = errors.New("bot: not found")

	// ErrBotExists is returned when creating a bot whose id or name is taken.
	ErrBotExists = errors.New("bot: already exists")
)
