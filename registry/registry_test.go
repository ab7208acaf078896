package registry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

type stubProvider struct {
	caps capability.Set
}

func (s *stubProvider) Capabilities() capability.Set { return s.caps }
func (s *stubProvider) Stat(ctx context.Context, path uri.URI) (provider.FileStat, error) {
	return provider.FileStat{}, nil
}
func (s *stubProvider) ReadDirectory(ctx context.Context, path uri.URI) ([]provider.DirEntry, error) {
	return nil, nil
}
func (s *stubProvider) CreateDirectory(ctx context.Context, path uri.URI) error { return nil }
func (s *stubProvider) Delete(ctx context.Context, path uri.URI, recursive bool) error {
	return nil
}
func (s *stubProvider) Rename(ctx context.Context, oldPath, newPath uri.URI, overwrite bool) error {
	return nil
}

func TestRegisterAndResolve(t *testing.T) {
	r := New(nil)
	p := &stubProvider{caps: capability.Of(capability.FileReadWrite)}
	if _, err := r.Register("mem", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, err := r.Resolve(context.Background(), uri.New("mem", "", "/a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != p {
		t.Fatal("expected resolved provider to be the registered stub")
	}
}

func TestResolveUnknownScheme(t *testing.T) {
	r := New(nil)
	_, err := r.Resolve(context.Background(), uri.New("nope", "", "/a"))
	if err != ErrNoProvider {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	r := New(nil)
	p := &stubProvider{}
	if _, err := r.Register("mem", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register("mem", p); err != ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestLazyActivationRunsOnce(t *testing.T) {
	r := New(nil)
	var calls int32
	p := &stubProvider{}
	reg, err := r.WithProvider("lazy", func(ctx context.Context) (provider.BaseProvider, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return p, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer reg.Dispose()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			_, _ = r.Resolve(context.Background(), uri.New("lazy", "", "/x"))
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one activation, got %d", calls)
	}
}

func TestDisposeRemovesScheme(t *testing.T) {
	r := New(nil)
	reg, _ := r.Register("mem", &stubProvider{})
	reg.Dispose()

	_, err := r.Resolve(context.Background(), uri.New("mem", "", "/a"))
	if err != ErrNoProvider {
		t.Fatalf("expected ErrNoProvider after dispose, got %v", err)
	}
}

func TestEventsFireOnRegisterAndActivate(t *testing.T) {
	r := New(nil)
	var kinds []EventKind
	r.OnEvent(func(ev Event) { kinds = append(kinds, ev.Kind) })

	reg, _ := r.Register("mem", &stubProvider{})
	_, _ = r.Resolve(context.Background(), uri.New("mem", "", "/a"))
	reg.Dispose()

	if len(kinds) != 4 || kinds[0] != Registered || kinds[1] != WillActivate || kinds[2] != Activated || kinds[3] != Unregistered {
		t.Fatalf("unexpected event sequence: %v", kinds)
	}
}
