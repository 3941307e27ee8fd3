package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")

	// ErrPayloadUnparsable means no extraction strategy recovered a symbol or a price.
	ErrPayloadUnparsable = errors.New("payload unparsable")
	// ErrSignalUnresolved means neither the payload nor context inference produced a kind.
	ErrSignalUnresolved = errors.New("signal unresolved")
	// ErrDuplicateSuppressed is informational: the signal repeated within its cooldown.
	ErrDuplicateSuppressed = errors.New("duplicate suppressed")
)
