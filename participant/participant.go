// Package participant implements the before/after hook points
// fileservice fires around its read, write, delete, move, copy and
// mkdir operations, generalizing the
// teacher's builder.go EventBefore* constants and FFireEvent dispatch
// from a single fixed set of named string events into a typed,
// ordered hook registry keyed by OperationKind.
package participant

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// OperationKind identifies which operation a hook fires around,
// mirroring the teacher's EventBeforeOpen/EventBeforeDelete/
// EventBeforeMkBucket/etc. constants.
type OperationKind string

const (
	BeforeRead   OperationKind = "BeforeRead"
	BeforeWrite  OperationKind = "BeforeWrite"
	BeforeDelete OperationKind = "BeforeDelete"
	BeforeMove   OperationKind = "BeforeMove"
	BeforeCopy   OperationKind = "BeforeCopy"
	BeforeMkdir  OperationKind = "BeforeMkdir"

	AfterRead   OperationKind = "AfterRead"
	AfterWrite  OperationKind = "AfterWrite"
	AfterDelete OperationKind = "AfterDelete"
	AfterMove   OperationKind = "AfterMove"
	AfterCopy   OperationKind = "AfterCopy"
	AfterMkdir  OperationKind = "AfterMkdir"
)

// Hook is invoked around an operation. Resource is the URI string the
// operation targets. Errors from Before* and After* hooks alike are
// logged and swallowed: no hook can abort the operation it observes.
type Hook func(ctx context.Context, resource string) error

// Registry holds the ordered hooks per OperationKind.
type Registry struct {
	hooks   map[OperationKind][]Hook
	timeout time.Duration
	log     *logrus.Entry
}

// NewRegistry creates an empty Registry with a default 5s per-hook
// timeout.
func NewRegistry() *Registry {
	return &Registry{
		hooks:   make(map[OperationKind][]Hook),
		timeout: 5 * time.Second,
		log:     logrus.NewEntry(logrus.New()).WithField("component", "participant"),
	}
}

// SetTimeout overrides the default per-hook timeout.
func (r *Registry) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Register appends fn to run for kind, in registration order.
func (r *Registry) Register(kind OperationKind, fn Hook) {
	r.hooks[kind] = append(r.hooks[kind], fn)
}

// FireBefore runs every hook registered for kind in order. A
// participant cannot veto the operation it is observing: every error,
// including a timeout, is collected and logged, never returned to the
// caller, mirroring the "participants errors are logged and
// swallowed — they never fail the outer operation" propagation policy.
func (r *Registry) FireBefore(ctx context.Context, kind OperationKind, resource string) {
	r.runAllAndLog(ctx, kind, resource, "participant hook failed before operation")
}

// FireAfter runs every hook registered for kind, collecting (not
// stopping on) errors into a multierror and logging them, since the
// operation they're reacting to has already completed.
func (r *Registry) FireAfter(ctx context.Context, kind OperationKind, resource string) {
	r.runAllAndLog(ctx, kind, resource, "participant hook failed after operation")
}

func (r *Registry) runAllAndLog(ctx context.Context, kind OperationKind, resource string, warnMsg string) {
	var errs *multierror.Error
	for _, h := range r.hooks[kind] {
		if err := r.runBounded(ctx, h, resource); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		r.log.WithFields(logrus.Fields{"op": kind, "resource": resource}).
			WithError(errs.ErrorOrNil()).Warn(warnMsg)
	}
}

func (r *Registry) runBounded(ctx context.Context, h Hook, resource string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- h(ctx, resource)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
