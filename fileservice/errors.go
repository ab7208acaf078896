package fileservice

import (
	"os"

	"github.com/pkg/errors"

	vfsmux "github.com/worldiety/vfsmux"
)

// classify inspects an opaque error returned by a provider and maps it
// onto the service's Result taxonomy where a confident match exists
// (stdlib os errors are the common case for provider/localfs), falling
// back to Unknown otherwise, since the service cannot invent a more
// specific Result for a backend error shape it has never seen. Wrapping
// with github.com/pkg/errors happens in wrapOpaque, not here.
func classify(err error) vfsmux.Result {
	switch {
	case os.IsNotExist(err):
		return vfsmux.NotFound
	case os.IsExist(err):
		return vfsmux.FileExists
	case os.IsPermission(err):
		return vfsmux.NoPermissions
	default:
		return vfsmux.Unknown
	}
}

// wrapOpaque wraps a provider error that classify could not place into
// a known Result, preserving a stack trace via pkg/errors so logs show
// where in the multiplexer the opaque error surfaced, not just where
// the provider raised it.
func wrapOpaque(op, resource string, err error) error {
	return vfsmux.NewOperationError(vfsmux.Unknown, op, resource, errors.WithStack(err))
}
