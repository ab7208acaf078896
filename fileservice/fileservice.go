// Package fileservice is the multiplexer's core: it resolves a URI to
// a registered provider and performs every read/write/move/copy/watch
// operation through whichever capability shape that provider actually
// exposes, adapting between whole-file and random-access I/O as
// needed. It plays the role the teacher's package-level Read/Write/
// Delete/MkDirs/Walk/Copy convenience functions (default.go) played
// over a single Default() FileSystem, generalized across many
// concurrently mounted providers.
package fileservice

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/participant"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/registry"
	"github.com/worldiety/vfsmux/uri"
)

// Service is the entry point applications use instead of talking to a
// provider.BaseProvider directly. It is safe for concurrent use.
type Service struct {
	registry     *registry.Registry
	participants *participant.Registry
	queue        *writeQueue
	log          *logrus.Entry

	mu          sync.RWMutex
	listeners   []func(provider.ChangeEvent)
	opListeners []func(OperationEvent)
	watches     map[string]*watchHandle
}

// OperationType enumerates the service-level operations OnDidRunOperation
// reports, distinct from participant.OperationKind's Before/After hook
// points: this is the "operation completed" notification, not a hook.
type OperationType int

const (
	Create OperationType = iota
	Write
	Move
	CopyOp
	DeleteOp
)

func (t OperationType) String() string {
	switch t {
	case Create:
		return "Create"
	case Write:
		return "Write"
	case Move:
		return "Move"
	case CopyOp:
		return "Copy"
	case DeleteOp:
		return "Delete"
	default:
		return "Unknown"
	}
}

// OperationEvent is fired once an operation completes successfully,
// carrying the resulting stat where one is available (empty for
// Delete). Mirrors builder.go's FFireEvent service-level broadcast,
// generalized from the teacher's single ResourceListener stream into
// its own typed event distinct from the raw provider ChangeEvent feed.
type OperationEvent struct {
	Type     OperationType
	Resource uri.URI
	Stat     provider.FileStat
}

// New creates a Service backed by reg. log may be nil.
func New(reg *registry.Registry, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Service{
		registry:     reg,
		participants: participant.NewRegistry(),
		queue:        newWriteQueue(),
		log:          log.WithField("component", "fileservice"),
		watches:      make(map[string]*watchHandle),
	}
}

// Participants exposes the before/after/error hook registry so callers
// can install cross-cutting behavior (audit logging, quota checks)
// without the Service needing to know about it.
func (s *Service) Participants() *participant.Registry {
	return s.participants
}

// resolveProvider locates the provider for u's scheme, wrapping
// registry errors into the service's own OperationError taxonomy. It
// is the internal routing step every public operation uses; the
// public, spec-shaped Resolve (resolve.go) builds the recursive
// FileStat tree on top of it.
func (s *Service) resolveProvider(ctx context.Context, op string, u uri.URI) (provider.BaseProvider, error) {
	p, err := s.registry.Resolve(ctx, u)
	if err == registry.ErrNoProvider {
		return nil, vfsmux.NewOperationError(vfsmux.NoProvider, op, u.String(), err)
	}
	if err != nil {
		return nil, vfsmux.NewOperationError(vfsmux.Unknown, op, u.String(), err)
	}
	return p, nil
}

// checkWritable rejects op against p if p's capability set has the
// Readonly bit set, whether the provider is natively read-only or a
// mount-level override (internal/config.Mount.CapabilityOverride)
// forced the bit on over an otherwise-writable backing store.
func (s *Service) checkWritable(p provider.BaseProvider, op string, u uri.URI) error {
	if p.Capabilities().IsReadonly() {
		return vfsmux.NewOperationError(vfsmux.NoPermissions, op, u.String(), nil)
	}
	return nil
}

// Exists reports whether u names a resource that currently exists.
func (s *Service) Exists(ctx context.Context, u uri.URI) (bool, error) {
	_, err := s.Stat(ctx, u)
	if err == nil {
		return true, nil
	}
	if opErr, ok := err.(*vfsmux.OperationError); ok && opErr.Result == vfsmux.NotFound {
		return false, nil
	}
	return false, err
}

// Stat returns metadata for u.
func (s *Service) Stat(ctx context.Context, u uri.URI) (provider.FileStat, error) {
	p, err := s.resolveProvider(ctx, "Stat", u)
	if err != nil {
		return provider.FileStat{}, err
	}
	stat, err := p.Stat(ctx, u)
	if err != nil {
		return provider.FileStat{}, wrapProviderErr("Stat", u, err)
	}
	return stat, nil
}

// ReadDirectory lists u's immediate children.
func (s *Service) ReadDirectory(ctx context.Context, u uri.URI) ([]provider.DirEntry, error) {
	p, err := s.resolveProvider(ctx, "ReadDirectory", u)
	if err != nil {
		return nil, err
	}
	entries, err := p.ReadDirectory(ctx, u)
	if err != nil {
		return nil, wrapProviderErr("ReadDirectory", u, err)
	}
	return entries, nil
}

// OnDidChangeFile registers fn to be called for every change event
// fanned out by any mounted provider's watch, mirroring the teacher's
// builder.go FFireEvent/ResourceListener.OnEvent hook point.
func (s *Service) OnDidChangeFile(fn func(provider.ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) fireChange(ev provider.ChangeEvent) {
	s.mu.RLock()
	listeners := append([]func(provider.ChangeEvent){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// OnDidRunOperation registers fn to be called once per successfully
// completed Create/Write/Move/Copy/Delete, separately from the raw
// provider change-event feed OnDidChangeFile carries: this stream
// reports the service-level operation and its resulting stat, not the
// provider's own notion of what changed.
func (s *Service) OnDidRunOperation(fn func(OperationEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opListeners = append(s.opListeners, fn)
}

func (s *Service) fireOperation(ev OperationEvent) {
	s.mu.RLock()
	listeners := append([]func(OperationEvent){}, s.opListeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// OnWillActivateProvider notifies fn just before a not-yet-active
// mounted provider begins activation, the FileService-level mirror of
// registry.WillActivate.
func (s *Service) OnWillActivateProvider(fn func(scheme string)) {
	s.registry.OnEvent(func(ev registry.Event) {
		if ev.Kind == registry.WillActivate {
			fn(ev.Scheme)
		}
	})
}

// OnDidChangeProviderRegistrations notifies fn whenever a scheme is
// registered or unregistered with the underlying registry.
func (s *Service) OnDidChangeProviderRegistrations(fn func(scheme string, registered bool)) {
	s.registry.OnEvent(func(ev registry.Event) {
		switch ev.Kind {
		case registry.Registered:
			fn(ev.Scheme, true)
		case registry.Unregistered:
			fn(ev.Scheme, false)
		}
	})
}

// OnDidChangeProviderCapabilities notifies fn whenever a mounted
// provider's capability set changes after activation — the consumer
// mirror of remote.Client.OnCapabilitiesChanged, reached through the
// registry's own CapabilitiesChanged event so a caller never needs to
// know whether the scheme behind it happens to be remote.
func (s *Service) OnDidChangeProviderCapabilities(fn func(scheme string, caps capability.Set)) {
	s.registry.OnEvent(func(ev registry.Event) {
		if ev.Kind == registry.CapabilitiesChanged {
			fn(ev.Scheme, ev.Caps)
		}
	})
}

// ResolveAll resolves every uri in us to a FileStat, tolerant of
// per-entry failures the same way directory recursion already is: a
// uri that fails to resolve is omitted rather than failing the batch.
func (s *Service) ResolveAll(ctx context.Context, us []uri.URI) []provider.FileStat {
	out := make([]provider.FileStat, 0, len(us))
	for _, u := range us {
		stat, err := s.Stat(ctx, u)
		if err != nil {
			s.log.WithField("resource", u.String()).WithError(err).Debug("resolveAll: skipping unresolved uri")
			continue
		}
		out = append(out, stat)
	}
	return out
}

// CreateFolder creates u and every missing ancestor, the consumer-facing
// name for Mkdirp.
func (s *Service) CreateFolder(ctx context.Context, u uri.URI) error {
	return s.Mkdirp(ctx, u)
}

// wrapProviderErr classifies an opaque provider error using
// errors.Is-compatible sentinels where possible and otherwise wraps it
// as Unknown, mirroring the teacher's "any backend may return its own
// os.PathError-ish error" posture in dp_filesystemprovider.go, but
// normalized into the service's single OperationError type.
func wrapProviderErr(op string, u uri.URI, err error) error {
	if err == nil {
		return nil
	}
	if opErr, ok := err.(*vfsmux.OperationError); ok {
		return opErr
	}
	return vfsmux.NewOperationError(classify(err), op, u.String(), err)
}

// closeQuietly mirrors the teacher's silentClose helper (default.go):
// best-effort Close on a resource already in an error path, where a
// secondary Close failure must never mask the original error.
func closeQuietly(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}
