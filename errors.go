// Package vfsmux multiplexes heterogeneous storage providers behind a
// single scheme-routed virtual filesystem API.
package vfsmux

import "fmt"

// Result discriminates the taxonomy of OperationError, generalizing
// the teacher's family of distinct error structs (MountPointNotFoundError,
// UnsupportedOperationError, ResourceNotFoundError,
// UnsupportedAttributesError, CancellationError, PermissionDeniedError
// in errors.go) into one type with a comparable discriminant, which
// plays more naturally with errors.Is/As across package boundaries
// than six unrelated struct types would.
type Result int

const (
	// Unknown wraps an opaque, unclassified provider error.
	Unknown Result = iota
	// NoProvider means the resource's scheme has no registered
	// provider. Kept as its own discriminant distinct from an opaque
	// wrapped error per the resolved Open Question in SPEC_FULL.md.
	NoProvider
	// NotFound means the resource does not exist.
	NotFound
	// FileExists means a create/move target already exists and
	// overwrite was not requested.
	FileExists
	// FileIsADirectory means a file operation was attempted on a
	// directory.
	FileIsADirectory
	// FileNotADirectory means a directory operation was attempted on
	// a file.
	FileNotADirectory
	// NoPermissions means the provider or backend rejected the
	// operation as disallowed.
	NoPermissions
	// Unavailable means the provider could not be reached (e.g. a
	// remote bridge's transport is down).
	Unavailable
	// NotSupported means the provider does not implement the
	// capability the operation requires.
	NotSupported
	// ModifiedSince means a conditional write lost a race against a
	// newer version of the resource (the etag/dirty-write check).
	ModifiedSince
	// Cancelled means the operation's context was cancelled before
	// completion.
	Cancelled
)

func (r Result) String() string {
	switch r {
	case NoProvider:
		return "NoProvider"
	case NotFound:
		return "NotFound"
	case FileExists:
		return "FileExists"
	case FileIsADirectory:
		return "FileIsADirectory"
	case FileNotADirectory:
		return "FileNotADirectory"
	case NoPermissions:
		return "NoPermissions"
	case Unavailable:
		return "Unavailable"
	case NotSupported:
		return "NotSupported"
	case ModifiedSince:
		return "ModifiedSince"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// OperationError is the single error type returned by every exported
// fileservice/registry/remote operation. Op and Resource give enough
// context for logging without the caller needing to re-wrap; Cause is
// the underlying provider or transport error, unwrapped via Unwrap so
// errors.Is/As still reach it.
type OperationError struct {
	Result   Result
	Op       string
	Resource string
	Cause    error
}

func (e *OperationError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Resource, e.Result, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Result, e.Cause)
}

// Unwrap returns the cause so errors.Is/As can see through to it.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// NewOperationError builds an OperationError, tolerating a nil cause
// (some Results, like NotSupported, are self-explanatory).
func NewOperationError(result Result, op, resource string, cause error) *OperationError {
	return &OperationError{Result: result, Op: op, Resource: resource, Cause: cause}
}

// Is supports errors.Is(err, vfsmux.Sentinel(vfsmux.NotFound)) style
// comparisons by matching on Result, since Result is not itself an
// error value.
func (e *OperationError) Is(target error) bool {
	other, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return e.Result == other.Result
}

// Sentinel returns a bare OperationError carrying only a Result, for
// use with errors.Is as a comparison target, e.g.
// errors.Is(err, vfsmux.Sentinel(vfsmux.NotFound)).
func Sentinel(result Result) *OperationError {
	return &OperationError{Result: result}
}
