package services

import "errors"

// Sentinel errors shared across the job orchestration subsystem.
var (
	// ErrOperationNotFound is returned when no operation exists for an id.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrDuplicateOperation is returned by Create when the storage-level
	// unique constraint rejects a second active operation for the same
	// (user, operation type, week). The existing operation is returned
	// alongside it.
	ErrDuplicateOperation = errors.New("an active operation already exists for this week")

	// ErrUnknownOperationType is returned by the dispatcher when no handler
	// is registered for the requested operation type. Raised before any
	// state mutation.
	ErrUnknownOperationType = errors.New("unknown operation type")

	// ErrMalformedReflection is returned when the reflection model output is
	// missing one of the required sections. The draft is rejected rather
	// than patched, so fabricated content never reaches the user.
	ErrMalformedReflection = errors.New("reflection output missing required sections")
)
