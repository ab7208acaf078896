// Package registry keeps the scheme → provider table that routes every
// fileservice operation to the right backing store. It plays the role
// the teacher's MountableDataProvider (dp_mountabledataprovider.go)
// played for path-prefix mount points, but keys on URI scheme instead
// of a path-segment tree, matching the spec's "each provider owns a
// distinct scheme" model.
package registry

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

// ActivateFunc lazily constructs a provider on first use, mirroring
// the spec's "activate on demand" provider lifecycle. A scheme
// registered via WithProvider is not constructed until Resolve first
// needs it.
type ActivateFunc func(ctx context.Context) (provider.BaseProvider, error)

// entry holds either an already-active provider or a pending
// activation func plus the future other goroutines racing Resolve
// should join instead of activating twice.
type entry struct {
	mu        sync.Mutex
	active    provider.BaseProvider
	activate  ActivateFunc
	activated chan struct{}
}

// Registration is a disposable handle returned by Register/WithProvider,
// used to unregister a scheme, analogous to the teacher's
// RootProvider.Register but with an explicit removal path the teacher
// never offered.
type Registration struct {
	id     uuid.UUID
	scheme string
	reg    *Registry
}

// Dispose removes the scheme this registration added.
func (r *Registration) Dispose() {
	r.reg.unregister(r.scheme, r.id)
}

// Registry maps URI schemes to providers, activating lazily and
// broadcasting registration/activation events to listeners.
type Registry struct {
	mu        sync.RWMutex
	schemes   map[string]*entry
	ids       map[string]uuid.UUID
	listeners []func(Event)
	log       *logrus.Entry
}

// Event describes a registry lifecycle change, delivered to listeners
// added via OnEvent. Caps is only meaningful for CapabilitiesChanged.
type Event struct {
	Kind   EventKind
	Scheme string
	Caps   capability.Set
}

type EventKind int

const (
	Registered EventKind = iota
	Unregistered
	WillActivate
	Activated
	CapabilitiesChanged
)

// New creates an empty Registry. log may be nil, in which case a
// disabled logger is used.
func New(log *logrus.Entry) *Registry {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Registry{
		schemes: make(map[string]*entry),
		ids:     make(map[string]uuid.UUID),
		log:     log,
	}
}

// Register adds an already-active provider under scheme.
func (r *Registry) Register(scheme string, p provider.BaseProvider) (*Registration, error) {
	return r.WithProvider(scheme, func(ctx context.Context) (provider.BaseProvider, error) {
		return p, nil
	})
}

// WithProvider registers scheme with a lazy activation function. The
// function runs at most once, the first time Resolve is called for
// this scheme; concurrent callers join the same activation instead of
// racing duplicate constructions. It returns ErrAlreadyRegistered if
// scheme is already taken, unlike the teacher's Mount which silently
// overwrote the prior leaf.
func (r *Registry) WithProvider(scheme string, activate ActivateFunc) (*Registration, error) {
	r.mu.Lock()
	if _, exists := r.schemes[scheme]; exists {
		r.mu.Unlock()
		return nil, ErrAlreadyRegistered
	}
	id := uuid.New()
	r.schemes[scheme] = &entry{activate: activate, activated: make(chan struct{})}
	r.ids[scheme] = id
	r.mu.Unlock()

	r.log.WithField("scheme", scheme).Debug("provider registered")
	r.fire(Event{Kind: Registered, Scheme: scheme})
	return &Registration{id: id, scheme: scheme, reg: r}, nil
}

func (r *Registry) unregister(scheme string, id uuid.UUID) {
	r.mu.Lock()
	if r.ids[scheme] != id {
		r.mu.Unlock()
		return
	}
	delete(r.schemes, scheme)
	delete(r.ids, scheme)
	r.mu.Unlock()

	r.log.WithField("scheme", scheme).Debug("provider unregistered")
	r.fire(Event{Kind: Unregistered, Scheme: scheme})
}

// OnEvent appends a listener notified of every future registry event.
func (r *Registry) OnEvent(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) fire(ev Event) {
	r.mu.RLock()
	listeners := append([]func(Event){}, r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Resolve returns the activated provider for u's scheme. It returns
// ErrNoProvider if no scheme is registered for u.Scheme.
func (r *Registry) Resolve(ctx context.Context, u uri.URI) (provider.BaseProvider, error) {
	r.mu.RLock()
	e, ok := r.schemes[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNoProvider
	}
	return r.activate(ctx, u.Scheme, e)
}

func (r *Registry) activate(ctx context.Context, scheme string, e *entry) (provider.BaseProvider, error) {
	e.mu.Lock()
	if e.active != nil {
		p := e.active
		e.mu.Unlock()
		return p, nil
	}
	// Hold the lock across activation: concurrent Resolve calls for
	// the same scheme block here and join the single activation
	// instead of racing duplicate constructions, mirroring the
	// teacher's lazy Mount semantics extended with a join point it
	// never needed (the teacher mounted eagerly).
	r.fire(Event{Kind: WillActivate, Scheme: scheme})
	p, err := e.activate(ctx)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.active = p
	close(e.activated)
	e.mu.Unlock()

	r.log.WithField("scheme", scheme).Debug("provider activated")
	r.fire(Event{Kind: Activated, Scheme: scheme})

	if notifier, ok := provider.IsCapabilityChangeNotifier(p); ok {
		notifier.OnCapabilitiesChanged(func(caps capability.Set) {
			r.log.WithField("scheme", scheme).Debug("provider capabilities changed")
			r.fire(Event{Kind: CapabilitiesChanged, Scheme: scheme, Caps: caps})
		})
	}
	return p, nil
}

// HasCapability reports whether the provider registered for scheme
// supports cap, resolving (and thus activating) it first.
func (r *Registry) HasCapability(ctx context.Context, scheme string, cap capability.Capability) (bool, error) {
	p, err := r.Resolve(ctx, uri.URI{Scheme: scheme, Path: "/"})
	if err != nil {
		return false, err
	}
	return p.Capabilities().Has(cap), nil
}

// Schemes returns the currently registered scheme names.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemes))
	for s := range r.schemes {
		out = append(out, s)
	}
	return out
}
