package fileservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

// watchHandle is the ref-counted subscription backing every
// WatchSession sharing the same (scheme, authority, path, recursive)
// key. Only the first caller actually asks the provider to watch;
// later callers just bump refCount. Cancel is idempotent and safe to
// call more than once, including a race where the session's creating
// goroutine is still starting up when Dispose is called (see
// Service.Watch's handling of the "cancel arrives before the watch
// finished activating" case).
type watchHandle struct {
	mu       sync.Mutex
	key      string
	refCount int
	cancel   context.CancelFunc
	started  bool
	disposed bool // a Dispose has already brought refCount to zero
}

// WatchSession is the handle a caller holds for one Watch subscription.
// Calling Dispose more than once is safe and only the first call has
// any effect.
type WatchSession struct {
	id      uuid.UUID
	handle  *watchHandle
	service *Service
	once    sync.Once
}

// ID uniquely identifies this session.
func (w *WatchSession) ID() uuid.UUID {
	return w.id
}

// Dispose releases this session's interest in the underlying watch. If
// it was the last interested session, the provider-level watch is
// cancelled.
func (w *WatchSession) Dispose() {
	w.once.Do(func() {
		w.service.releaseWatch(w.handle)
	})
}

// Watch subscribes to change notifications under u. recursive requests
// notifications for descendants too, when the provider supports it.
// Multiple Watch calls for the same resource share one underlying
// provider subscription, ref-counted so the last Dispose tears it down.
func (s *Service) Watch(ctx context.Context, u uri.URI, recursive bool) (*WatchSession, error) {
	p, err := s.resolveProvider(ctx, "Watch", u)
	if err != nil {
		return nil, err
	}
	wp, ok := provider.IsWatchable(p)
	if !ok {
		return nil, vfsmux.NewOperationError(vfsmux.NotSupported, "Watch", u.String(), nil)
	}

	key := watchKey(u, recursive)

	s.mu.Lock()
	handle, exists := s.watches[key]
	if !exists {
		handle = &watchHandle{key: key}
		s.watches[key] = handle
	}
	handle.mu.Lock()
	handle.refCount++
	needsStart := !handle.started
	if needsStart {
		handle.started = true
	}
	handle.mu.Unlock()
	s.mu.Unlock()

	session := &WatchSession{id: uuid.New(), handle: handle, service: s}

	if needsStart {
		watchCtx, cancel := context.WithCancel(context.Background())
		handle.mu.Lock()
		handle.cancel = cancel
		disposedAlready := handle.disposed
		handle.mu.Unlock()

		if disposedAlready {
			// Every interested caller already called Dispose before
			// this goroutine got as far as assigning handle.cancel;
			// honor it immediately instead of starting (and leaking) a
			// provider-level watch nobody is listening to.
			cancel()
			s.removeWatch(key)
			return session, nil
		}

		events, err := wp.Watch(watchCtx, u, recursive)
		if err != nil {
			cancel()
			s.removeWatch(key)
			return nil, wrapProviderErr("Watch", u, err)
		}
		go s.pumpWatch(events)
	}

	return session, nil
}

func (s *Service) pumpWatch(events <-chan provider.ChangeEvent) {
	for ev := range events {
		s.fireChange(ev)
	}
}

func (s *Service) releaseWatch(handle *watchHandle) {
	handle.mu.Lock()
	handle.refCount--
	remaining := handle.refCount
	cancel := handle.cancel
	if remaining <= 0 {
		// Mark disposed even if cancel is still nil: the Watch
		// goroutine that is in the process of assigning it will see
		// this flag and cancel itself immediately instead of starting
		// a provider-level watch nobody is listening to anymore.
		handle.disposed = true
	}
	handle.mu.Unlock()

	if remaining <= 0 {
		if cancel != nil {
			cancel()
		}
		s.removeWatch(handle.key)
	}
}

func (s *Service) removeWatch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.watches[key]; ok && h.refCount <= 0 {
		delete(s.watches, key)
	}
}

func watchKey(u uri.URI, recursive bool) string {
	return fmt.Sprintf("%s://%s%s#%v", u.Scheme, u.Authority, u.Path, recursive)
}
