// Provides common error definitions for the state engine.
package state_errors

import "errors"

var (
	// schema errors: fatal, abort the call before any mutation
	ErrUnknownType      = errors.New("state: unknown type reference")
	ErrBadManifest      = errors.New("state: malformed manifest")
	ErrBadSchemaVersion = errors.New("state: unsupported schema version")
	ErrDescriptorCycle  = errors.New("state: descriptor cycle with no concrete shape")

	// codec errors: fatal for the encode/decode operation, never defaulted
	ErrUnexpectedEOF       = errors.New("state: unexpected end of input")
	ErrTypeMismatch        = errors.New("state: value does not match descriptor")
	ErrInvalidDiscriminant = errors.New("state: variant discriminant out of range")
	ErrMissingField        = errors.New("state: non-optional record field missing")

	// recoverable, returned to caller logic
	ErrNotFound = errors.New("state: not found")

	// merge errors
	ErrMergeRejected = errors.New("state: custom merge rejected inputs")
	ErrKindMismatch  = errors.New("state: merging different collection kinds")

	ErrClosed = errors.New("state: store is closed")
)
