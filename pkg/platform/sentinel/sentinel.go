package sentinel

import "errors"

// Stores and sources return these, possibly wrapped; services translate
// them into domain errors. Input problems use pkg/domain-errors directly.
var (
	// ErrNotFound: no such event, draft or event configuration.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed: a unique key (transaction id, resolution of a
	// request) is already taken.
	ErrAlreadyUsed = errors.New("already used")
	// ErrUnavailable: a store or the configuration source cannot answer
	// right now.
	ErrUnavailable = errors.New("unavailable")
)
