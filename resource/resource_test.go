package resource

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldiety/vfsmux/capability"
	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/fileservice"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/registry"
	"github.com/worldiety/vfsmux/uri"
)

type memProvider struct {
	mu       sync.Mutex
	files    map[string][]byte
	versions map[string]int64
}

func newMemProvider() *memProvider {
	return &memProvider{files: map[string][]byte{}, versions: map[string]int64{}}
}

func (m *memProvider) Capabilities() capability.Set {
	return capability.Of(capability.FileReadWrite, capability.Watch)
}

func (m *memProvider) Stat(ctx context.Context, path uri.URI) (provider.FileStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path.Path]
	if !ok {
		return provider.FileStat{}, vfsmux.NewOperationError(vfsmux.NotFound, "Stat", path.String(), nil)
	}
	return provider.FileStat{
		Type:  provider.File,
		Size:  int64(len(data)),
		Name:  path.Name(),
		Mtime: time.Unix(0, m.versions[path.Path]),
	}, nil
}

func (m *memProvider) ReadDirectory(ctx context.Context, path uri.URI) ([]provider.DirEntry, error) {
	return nil, nil
}
func (m *memProvider) CreateDirectory(ctx context.Context, path uri.URI) error { return nil }
func (m *memProvider) Delete(ctx context.Context, path uri.URI, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path.Path)
	return nil
}
func (m *memProvider) Rename(ctx context.Context, oldPath, newPath uri.URI, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[newPath.Path] = m.files[oldPath.Path]
	delete(m.files, oldPath.Path)
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

func newTestResource(t *testing.T) (*Resource, *fileservice.Service, uri.URI) {
	t.Helper()
	reg := registry.New(nil)
	p := newMemProvider()
	_, err := reg.Register("mem", p)
	require.NoError(t, err)

	svc := fileservice.New(reg, nil)
	u := uri.New("mem", "", "/doc.txt")
	return New(svc, u), svc, u
}

func TestInitOnMissingResourceLeavesUnknownVersion(t *testing.T) {
	r, _, _ := newTestResource(t)
	require.NoError(t, r.Init(context.Background()))
	assert.False(t, r.known)
}

func TestReadContentsCachesUntilVersionChanges(t *testing.T) {
	r, svc, u := newTestResource(t)
	_, err := svc.CreateFile(context.Background(), u, bytes.NewReader([]byte("one")), false)
	require.NoError(t, err)

	data, v1, err := r.ReadContents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	data2, v2, err := r.ReadContents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", string(data2))
	assert.Equal(t, v1, v2)

	_, err = svc.WriteFile(context.Background(), u, bytes.NewReader([]byte("two")), "")
	require.NoError(t, err)

	data3, v3, err := r.ReadContents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", string(data3))
	assert.NotEqual(t, v1, v3)
}

func TestSaveContentsRejectsOutOfSyncWrite(t *testing.T) {
	r, svc, u := newTestResource(t)
	_, err := svc.CreateFile(context.Background(), u, bytes.NewReader([]byte("one")), false)
	require.NoError(t, err)

	_, _, err = r.ReadContents(context.Background())
	require.NoError(t, err)

	// Someone else writes behind the resource's back.
	_, err = svc.WriteFile(context.Background(), u, bytes.NewReader([]byte("someone else")), "")
	require.NoError(t, err)

	_, err = r.SaveContents(context.Background(), []byte("mine"))
	assert.ErrorIs(t, err, ErrOutOfSync)
}

func TestSaveContentsSucceedsWhenVersionMatches(t *testing.T) {
	r, svc, u := newTestResource(t)
	_, err := svc.CreateFile(context.Background(), u, bytes.NewReader([]byte("one")), false)
	require.NoError(t, err)

	_, _, err = r.ReadContents(context.Background())
	require.NoError(t, err)

	v, err := r.SaveContents(context.Background(), []byte("two"))
	require.NoError(t, err)
	assert.NotEmpty(t, v.ETag)

	data, _, err := r.ReadContents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestOnDidChangeContentsFiresForMatchingPathOnly(t *testing.T) {
	r, svc, u := newTestResource(t)
	other := uri.New("mem", "", "/other.txt")

	fired := make(chan struct{}, 1)
	r.OnDidChangeContents(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	svc.OnDidChangeFile(func(ev provider.ChangeEvent) {})
	_ = other

	_, err := svc.CreateFile(context.Background(), other, bytes.NewReader([]byte("x")), false)
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("did not expect a change notification for an unrelated resource")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = svc.CreateFile(context.Background(), u, bytes.NewReader([]byte("y")), false)
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification for the matching resource")
	}
}
