package fileservice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/worldiety/vfsmux/capability"
	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/participant"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/registry"
	"github.com/worldiety/vfsmux/uri"
)

// memProvider is a minimal WholeFileProvider used to exercise
// fileservice without depending on provider/memfs, keeping this
// package's tests focused on orchestration rather than storage.
type memProvider struct {
	mu       sync.Mutex
	files    map[string][]byte
	versions map[string]int64
	dirs     map[string]bool
	readonly bool
}

func newMemProvider() *memProvider {
	return &memProvider{
		files:    map[string][]byte{},
		versions: map[string]int64{},
		dirs:     map[string]bool{"/": true},
	}
}

func (m *memProvider) Capabilities() capability.Set {
	caps := capability.Of(capability.FileReadWrite, capability.Watch)
	if m.readonly {
		caps = caps.With(capability.Readonly)
	}
	return caps
}

func (m *memProvider) Stat(ctx context.Context, path uri.URI) (provider.FileStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[path.Path] {
		return provider.FileStat{Type: provider.Directory, Name: path.Name()}, nil
	}
	if data, ok := m.files[path.Path]; ok {
		return provider.FileStat{
			Type:  provider.File,
			Size:  int64(len(data)),
			Name:  path.Name(),
			Mtime: time.Unix(0, m.versions[path.Path]),
		}, nil
	}
	return provider.FileStat{}, vfsmux.NewOperationError(vfsmux.NotFound, "Stat", path.String(), nil)
}

func (m *memProvider) ReadDirectory(ctx context.Context, path uri.URI) ([]provider.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := path.Path
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]bool{}
	var out []provider.DirEntry
	addChild := func(name string, stat provider.FileStat) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, provider.DirEntry{Name: name, Stat: stat})
	}
	for p := range m.dirs {
		if p == path.Path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue
		}
		addChild(rest, provider.FileStat{Type: provider.Directory, Name: rest})
	}
	for p, data := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue
		}
		addChild(rest, provider.FileStat{
			Type:  provider.File,
			Size:  int64(len(data)),
			Name:  rest,
			Mtime: time.Unix(0, m.versions[p]),
		})
	}
	return out, nil
}

func (m *memProvider) CreateDirectory(ctx context.Context, path uri.URI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path.Path] = true
	return nil
}

func (m *memProvider) Delete(ctx context.Context, path uri.URI, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path.Path)
	delete(m.dirs, path.Path)
	return nil
}

func (m *memProvider) Rename(ctx context.Context, oldPath, newPath uri.URI, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[oldPath.Path]
	if !ok {
		return vfsmux.NewOperationError(vfsmux.NotFound, "Rename", oldPath.String(), nil)
	}
	delete(m.files, oldPath.Path)
	m.files[newPath.Path] = data
	return nil
}

func (m *memProvider) ReadFile(ctx context.Context, path uri.URI) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Path]
	if !ok {
		return nil, vfsmux.NewOperationError(vfsmux.NotFound, "Read", path.String(), nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memProvider) WriteFile(ctx context.Context, path uri.URI, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Path] = buf
	m.versions[path.Path]++
	return nil
}

func newTestService(t *testing.T) (*Service, *memProvider) {
	t.Helper()
	reg := registry.New(nil)
	p := newMemProvider()
	if _, err := reg.Register("mem", p); err != nil {
		t.Fatalf("register: %v", err)
	}
	return New(reg, nil), p
}

func TestWriteThenReadFile(t *testing.T) {
	s, _ := newTestService(t)
	u := uri.New("mem", "", "/a/b.txt")

	if _, err := s.WriteFile(context.Background(), u, bytes.NewReader([]byte("hello")), ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := s.ReadFile(context.Background(), u)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}
}

func TestWriteFileRejectsStaleETag(t *testing.T) {
	s, _ := newTestService(t)
	u := uri.New("mem", "", "/a.txt")

	tag, err := s.WriteFile(context.Background(), u, bytes.NewReader([]byte("v1")), "")
	if err != nil {
		t.Fatalf("write v1: %v", err)
	}
	if _, err := s.WriteFile(context.Background(), u, bytes.NewReader([]byte("v2")), ""); err != nil {
		t.Fatalf("write v2: %v", err)
	}

	// tag is now stale because writing v2 advanced the provider's
	// version-backed mtime (the size stays 2 bytes).
	_, err = s.WriteFile(context.Background(), u, bytes.NewReader([]byte("v3")), tag)
	opErr, ok := err.(*vfsmux.OperationError)
	if !ok || opErr.Result != vfsmux.ModifiedSince {
		t.Fatalf("expected ModifiedSince, got %v", err)
	}
}

func TestCreateFileRejectsExistingWithoutOverwrite(t *testing.T) {
	s, _ := newTestService(t)
	u := uri.New("mem", "", "/a.txt")

	if _, err := s.CreateFile(context.Background(), u, bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.CreateFile(context.Background(), u, bytes.NewReader([]byte("y")), false)
	opErr, ok := err.(*vfsmux.OperationError)
	if !ok || opErr.Result != vfsmux.FileExists {
		t.Fatalf("expected FileExists, got %v", err)
	}
}

func TestDeleteFiresChangeEvent(t *testing.T) {
	s, _ := newTestService(t)
	u := uri.New("mem", "", "/a.txt")
	_, _ = s.CreateFile(context.Background(), u, bytes.NewReader([]byte("x")), false)

	events := make(chan provider.ChangeEvent, 4)
	s.OnDidChangeFile(func(ev provider.ChangeEvent) { events <- ev })

	if err := s.Delete(context.Background(), u, false); err != nil {
		t.Fatalf("delete: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != provider.Deleted {
			t.Fatalf("expected Deleted event, got %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
	}
}

func TestMoveWithinSameProviderUsesRename(t *testing.T) {
	s, p := newTestService(t)
	src := uri.New("mem", "", "/a.txt")
	dst := uri.New("mem", "", "/b.txt")
	_, _ = s.CreateFile(context.Background(), src, bytes.NewReader([]byte("content")), false)

	if err := s.Move(context.Background(), src, dst, false); err != nil {
		t.Fatalf("move: %v", err)
	}

	if _, ok := p.files[src.Path]; ok {
		t.Fatal("expected source removed after move")
	}
	if data, ok := p.files[dst.Path]; !ok || string(data) != "content" {
		t.Fatal("expected destination to carry the moved content")
	}
}

func TestMoveFiresOperationEventWithDestinationStat(t *testing.T) {
	s, _ := newTestService(t)
	src := uri.New("mem", "", "/a.txt")
	dst := uri.New("mem", "", "/b.txt")
	if _, err := s.CreateFile(context.Background(), src, bytes.NewReader([]byte("content")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	events := make(chan OperationEvent, 4)
	s.OnDidRunOperation(func(ev OperationEvent) { events <- ev })

	if err := s.Move(context.Background(), src, dst, false); err != nil {
		t.Fatalf("move: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != Move {
			t.Fatalf("expected a Move operation event, got %v", ev.Type)
		}
		if ev.Resource.Path != dst.Path {
			t.Fatalf("expected the event to name %s, got %s", dst.Path, ev.Resource.Path)
		}
		if ev.Stat.Size != int64(len("content")) {
			t.Fatalf("expected the event's stat to reflect the moved file, got size %d", ev.Stat.Size)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a Move operation event")
	}
}

func TestCopyFiresOperationEventWithDestinationStat(t *testing.T) {
	s, _ := newTestService(t)
	src := uri.New("mem", "", "/a.txt")
	dst := uri.New("mem", "", "/b.txt")
	if _, err := s.CreateFile(context.Background(), src, bytes.NewReader([]byte("content")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	events := make(chan OperationEvent, 4)
	s.OnDidRunOperation(func(ev OperationEvent) { events <- ev })

	if err := s.Copy(context.Background(), src, dst, false); err != nil {
		t.Fatalf("copy: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != CopyOp {
			t.Fatalf("expected a Copy operation event, got %v", ev.Type)
		}
		if ev.Resource.Path != dst.Path {
			t.Fatalf("expected the event to name %s, got %s", dst.Path, ev.Resource.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a Copy operation event")
	}
}

func TestResolveUnknownSchemeReturnsNoProvider(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Stat(context.Background(), uri.New("nope", "", "/a"))
	opErr, ok := err.(*vfsmux.OperationError)
	if !ok || opErr.Result != vfsmux.NoProvider {
		t.Fatalf("expected NoProvider, got %v", err)
	}
}

func sortedChildNames(children []ResolvedStat) []string {
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func TestResolveListsImmediateChildrenWithoutOptions(t *testing.T) {
	s, _ := newTestService(t)
	if err := s.CreateFolder(context.Background(), uri.New("mem", "", "/a/b")); err != nil {
		t.Fatalf("createFolder: %v", err)
	}
	if _, err := s.CreateFile(context.Background(), uri.New("mem", "", "/a/x.txt"), bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Resolve(context.Background(), uri.New("mem", "", "/a"), ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Type != provider.Directory {
		t.Fatalf("expected a directory stat, got %v", got.Type)
	}
	if names := sortedChildNames(got.Children); len(names) != 2 || names[0] != "b" || names[1] != "x.txt" {
		t.Fatalf("expected children [b x.txt], got %v", names)
	}
	// Without ResolveSingleChildDescendants or a matching ResolveTo,
	// "b" is listed but not itself expanded.
	for _, c := range got.Children {
		if c.Name == "b" && c.Children != nil {
			t.Fatalf("expected %q to not be recursively expanded, got children %v", c.Name, c.Children)
		}
	}
}

func TestResolveWithoutMetadataOnlyReportsChildType(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.CreateFile(context.Background(), uri.New("mem", "", "/a/x.txt"), bytes.NewReader([]byte("hello")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Resolve(context.Background(), uri.New("mem", "", "/a"), ResolveOptions{ResolveMetadata: false})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.Children) != 1 {
		t.Fatalf("expected exactly one child, got %d", len(got.Children))
	}
	if got.Children[0].Type != provider.File {
		t.Fatalf("expected the child's type to still be reported, got %v", got.Children[0].Type)
	}
	if got.Children[0].Size != 0 {
		t.Fatalf("expected size to be left zero without ResolveMetadata, got %d", got.Children[0].Size)
	}
}

func TestResolveWithMetadataPopulatesChildSize(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.CreateFile(context.Background(), uri.New("mem", "", "/a/x.txt"), bytes.NewReader([]byte("hello")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Resolve(context.Background(), uri.New("mem", "", "/a"), ResolveOptions{ResolveMetadata: true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.Children) != 1 || got.Children[0].Size != 5 {
		t.Fatalf("expected the child's full stat (size 5), got %+v", got.Children)
	}
}

func TestResolveToExpandsAncestorsOfTheTarget(t *testing.T) {
	s, _ := newTestService(t)
	target := uri.New("mem", "", "/a/b/c/leaf.txt")
	if _, err := s.CreateFile(context.Background(), target, bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}
	// An unrelated sibling branch that should stay collapsed.
	if err := s.CreateFolder(context.Background(), uri.New("mem", "", "/a/other")); err != nil {
		t.Fatalf("createFolder: %v", err)
	}

	got, err := s.Resolve(context.Background(), uri.New("mem", "", "/a"), ResolveOptions{ResolveTo: []uri.URI{target}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var b *ResolvedStat
	for i := range got.Children {
		if got.Children[i].Name == "b" {
			b = &got.Children[i]
		}
		if got.Children[i].Name == "other" && got.Children[i].Children != nil {
			t.Fatalf("expected the unrelated 'other' branch to stay collapsed, got children %v", got.Children[i].Children)
		}
	}
	if b == nil {
		t.Fatal("expected 'b' among /a's children")
	}
	if len(b.Children) != 1 || b.Children[0].Name != "c" {
		t.Fatalf("expected 'b' to expand into 'c', got %v", b.Children)
	}
	c := b.Children[0]
	if len(c.Children) != 1 || c.Children[0].Name != "leaf.txt" {
		t.Fatalf("expected 'c' to expand down to leaf.txt, got %v", c.Children)
	}
}

func TestResolveSingleChildDescendantsCollapsesAChain(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.CreateFile(context.Background(), uri.New("mem", "", "/a/b/c/leaf.txt"), bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Resolve(context.Background(), uri.New("mem", "", "/a"), ResolveOptions{ResolveSingleChildDescendants: true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.Children) != 1 || got.Children[0].Name != "b" {
		t.Fatalf("expected /a to have a single child 'b', got %v", got.Children)
	}
	b := got.Children[0]
	if len(b.Children) != 1 || b.Children[0].Name != "c" {
		t.Fatalf("expected the single-child chain to auto-expand into 'c', got %v", b.Children)
	}
	c := b.Children[0]
	if len(c.Children) != 1 || c.Children[0].Name != "leaf.txt" {
		t.Fatalf("expected the chain to auto-expand all the way to leaf.txt, got %v", c.Children)
	}
}

func TestResolveSwallowsNotFoundAndReturnsNotFoundForMissingRoot(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Resolve(context.Background(), uri.New("mem", "", "/missing"), ResolveOptions{})
	opErr, ok := err.(*vfsmux.OperationError)
	if !ok || opErr.Result != vfsmux.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMkdirpCreatesEveryMissingSegment(t *testing.T) {
	s, p := newTestService(t)
	if err := s.Mkdirp(context.Background(), uri.New("mem", "", "/a/b/c")); err != nil {
		t.Fatalf("mkdirp: %v", err)
	}
	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		if !p.dirs[dir] {
			t.Fatalf("expected %s to exist", dir)
		}
	}
}

func TestWriteFileRejectedAgainstReadonlyProvider(t *testing.T) {
	s, p := newTestService(t)
	p.readonly = true

	_, err := s.WriteFile(context.Background(), uri.New("mem", "", "/a.txt"), bytes.NewReader([]byte("x")), "")
	opErr, ok := err.(*vfsmux.OperationError)
	if !ok || opErr.Result != vfsmux.NoPermissions {
		t.Fatalf("expected NoPermissions, got %v", err)
	}
	if len(p.files) != 0 {
		t.Fatal("expected the readonly provider to never receive the write")
	}
}

func TestDeleteRejectedAgainstReadonlyProvider(t *testing.T) {
	s, p := newTestService(t)
	u := uri.New("mem", "", "/a.txt")
	if _, err := s.CreateFile(context.Background(), u, bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	p.readonly = true
	err := s.Delete(context.Background(), u, false)
	opErr, ok := err.(*vfsmux.OperationError)
	if !ok || opErr.Result != vfsmux.NoPermissions {
		t.Fatalf("expected NoPermissions, got %v", err)
	}
	if _, ok := p.files[u.Path]; !ok {
		t.Fatal("expected the file to survive a rejected delete")
	}
}

func TestResolveAllSkipsUnresolvableURIsAndReturnsTheRest(t *testing.T) {
	s, _ := newTestService(t)
	ok := uri.New("mem", "", "/a.txt")
	missing := uri.New("mem", "", "/missing.txt")
	if _, err := s.CreateFile(context.Background(), ok, bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	stats := s.ResolveAll(context.Background(), []uri.URI{ok, missing})
	if len(stats) != 1 {
		t.Fatalf("expected exactly the resolvable uri's stat, got %d entries", len(stats))
	}
	if stats[0].Name != ok.Name() {
		t.Fatalf("expected stat for %s, got %s", ok.Name(), stats[0].Name)
	}
}

func TestCreateFolderCreatesEveryMissingSegment(t *testing.T) {
	s, p := newTestService(t)
	if err := s.CreateFolder(context.Background(), uri.New("mem", "", "/x/y")); err != nil {
		t.Fatalf("createFolder: %v", err)
	}
	if !p.dirs["/x/y"] {
		t.Fatal("expected /x/y to exist")
	}
}

func TestOnDidRunOperationFiresCreateWriteAndDeleteWithDistinctTypes(t *testing.T) {
	s, _ := newTestService(t)
	u := uri.New("mem", "", "/a.txt")

	events := make(chan OperationEvent, 8)
	s.OnDidRunOperation(func(ev OperationEvent) { events <- ev })

	if _, err := s.CreateFile(context.Background(), u, bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.WriteFile(context.Background(), u, bytes.NewReader([]byte("xy")), ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Delete(context.Background(), u, false); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []OperationType{Create, Write, DeleteOp}
	for i, wantType := range want {
		select {
		case ev := <-events:
			if ev.Type != wantType {
				t.Fatalf("event %d: expected %v, got %v", i, wantType, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d: expected an OperationEvent of type %v", i, wantType)
		}
	}
}

func TestOnWillActivateProviderFiresBeforeFirstResolve(t *testing.T) {
	reg := registry.New(nil)
	activated := make(chan struct{}, 1)
	if _, err := reg.WithProvider("mem", func(ctx context.Context) (provider.BaseProvider, error) {
		return newMemProvider(), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := New(reg, nil)
	s.OnWillActivateProvider(func(scheme string) {
		if scheme == "mem" {
			activated <- struct{}{}
		}
	})

	if _, err := s.Stat(context.Background(), uri.New("mem", "", "/")); err != nil {
		t.Fatalf("stat: %v", err)
	}

	select {
	case <-activated:
	case <-time.After(time.Second):
		t.Fatal("expected OnWillActivateProvider to fire before resolving the scheme")
	}
}

func TestOnDidChangeProviderRegistrationsReportsRegisterAndUnregister(t *testing.T) {
	reg := registry.New(nil)
	s := New(reg, nil)

	events := make(chan bool, 2)
	s.OnDidChangeProviderRegistrations(func(scheme string, registered bool) {
		if scheme == "mem" {
			events <- registered
		}
	})

	regHandle, err := reg.Register("mem", newMemProvider())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	regHandle.Dispose()

	for _, want := range []bool{true, false} {
		select {
		case got := <-events:
			if got != want {
				t.Fatalf("expected registered=%v, got %v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected a registration event (registered=%v)", want)
		}
	}
}

// capabilityNotifierProvider wraps memProvider to simulate a backing
// store whose capability set changes after activation, so
// OnDidChangeProviderCapabilities has something to fire in a test
// without a real remote server in the loop.
type capabilityNotifierProvider struct {
	*memProvider
	listeners []func(capability.Set)
}

func (p *capabilityNotifierProvider) OnCapabilitiesChanged(fn func(capability.Set)) {
	p.listeners = append(p.listeners, fn)
}

func (p *capabilityNotifierProvider) push(caps capability.Set) {
	for _, fn := range p.listeners {
		fn(caps)
	}
}

var _ provider.CapabilityChangeNotifier = (*capabilityNotifierProvider)(nil)

func TestOnDidChangeProviderCapabilitiesFiresWhenTheUnderlyingProviderPushes(t *testing.T) {
	reg := registry.New(nil)
	p := &capabilityNotifierProvider{memProvider: newMemProvider()}
	if _, err := reg.Register("mem", p); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := New(reg, nil)

	events := make(chan capability.Set, 1)
	s.OnDidChangeProviderCapabilities(func(scheme string, caps capability.Set) {
		if scheme == "mem" {
			events <- caps
		}
	})

	// Activate the provider first: registry only subscribes to
	// CapabilityChangeNotifier once a scheme has actually been activated.
	if _, err := s.Stat(context.Background(), uri.New("mem", "", "/")); err != nil {
		t.Fatalf("stat: %v", err)
	}

	newCaps := capability.Of(capability.FileReadWrite, capability.Readonly)
	p.push(newCaps)

	select {
	case got := <-events:
		if got != newCaps {
			t.Fatalf("expected %v, got %v", newCaps, got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected OnDidChangeProviderCapabilities to fire")
	}
}

func TestBeforeWriteHookCannotVetoTheWrite(t *testing.T) {
	s, p := newTestService(t)
	refused := errors.New("quota exceeded")
	fired := make(chan struct{})
	s.Participants().Register(participant.BeforeWrite, func(ctx context.Context, resource string) error {
		close(fired)
		return refused
	})

	_, err := s.WriteFile(context.Background(), uri.New("mem", "", "/a.txt"), bytes.NewReader([]byte("x")), "")
	if err != nil {
		t.Fatalf("expected the Before hook's error to be swallowed, not propagated, got %v", err)
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected the BeforeWrite hook to run")
	}
	if len(p.files) != 1 {
		t.Fatal("expected the write to reach the provider despite the hook's error")
	}
}

func TestAfterDeleteHookRunsOnceDeleteSucceeds(t *testing.T) {
	s, _ := newTestService(t)
	u := uri.New("mem", "", "/a.txt")
	if _, err := s.CreateFile(context.Background(), u, bytes.NewReader([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	var fired string
	done := make(chan struct{})
	s.Participants().Register(participant.AfterDelete, func(ctx context.Context, resource string) error {
		fired = resource
		close(done)
		return nil
	})

	if err := s.Delete(context.Background(), u, false); err != nil {
		t.Fatalf("delete: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the AfterDelete hook to run")
	}
	if fired != u.String() {
		t.Fatalf("expected the hook to see %s, got %s", u.String(), fired)
	}
}
