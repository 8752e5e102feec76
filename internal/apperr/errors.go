// Package apperr holds the error kinds shared by the registry, the interview
// sessions and the outer layers that translate them into exit codes or HTTP statuses.
package apperr

import "errors"

var (
	// ErrValidation reports bad caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports a missing candidate or session.
	ErrNotFound = errors.New("not found")
	// ErrCompletion reports a failed or interrupted completion stream.
	ErrCompletion = errors.New("completion failed")
	// ErrStorage reports a rejected read or write in the persistence layer.
	ErrStorage = errors.New("storage failure")
	// ErrBusy reports an operation on a session that is still processing a message.
	ErrBusy = errors.New("session is busy")
)
