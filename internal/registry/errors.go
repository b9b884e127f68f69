package registry

import "errors"

// Registry errors. None of these are ever reported to remote clients.
var (
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrEmptyGroupID        = errors.New("group id cannot be empty")
)
