package remote

import "errors"

var (
	// ErrMissingDependency is returned by NewBridge when a required option is nil.
	ErrMissingDependency = errors.New("remote: missing dependency")

	// ErrBadTopic is returned for command topics that do not parse.
	ErrBadTopic = errors.New("remote: unrecognised command topic")
)
