// Package memfs implements an in-memory provider.BaseProvider exposing
// only random-access I/O, so fileservice's capability-adaptive
// buffered-pipe code paths (the ones a whole-file provider would skip)
// get exercised by something that needs no real disk. Grounded on
// dp_mountabledataprovider.go's virtualDir/namedEntry tree, repurposed
// here from "provider mount table" to "provider backing store": the
// teacher's tree held other DataProviders at its leaves, this one holds
// file contents.
package memfs

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

type memEntry struct {
	isDir bool
	data  []byte
	mtime time.Time
}

// Provider is an in-memory, random-access-only filesystem. The zero
// value is not usable; use New.
type Provider struct {
	mu      sync.RWMutex
	entries map[string]*memEntry

	watchMu  sync.Mutex
	watchers []chan provider.ChangeEvent
}

var _ provider.BaseProvider = (*Provider)(nil)
var _ provider.RandomAccessProvider = (*Provider)(nil)
var _ provider.WatchProvider = (*Provider)(nil)

// New creates an empty in-memory provider rooted at "/".
func New() *Provider {
	return &Provider{entries: map[string]*memEntry{"/": {isDir: true, mtime: time.Now()}}}
}

// Capabilities reports random-access I/O and watch support; no
// whole-file shortcut and no native folder copy, so callers always
// exercise the generic buffered paths against this provider.
func (p *Provider) Capabilities() capability.Set {
	return capability.Of(capability.FileOpenReadWriteClose, capability.PathCaseSensitive, capability.Watch)
}

func (p *Provider) Stat(ctx context.Context, path uri.URI) (provider.FileStat, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[path.Path]
	if !ok {
		return provider.FileStat{}, vfsmux.NewOperationError(vfsmux.NotFound, "Stat", path.String(), nil)
	}
	return entryStat(path, e), nil
}

func (p *Provider) ReadDirectory(ctx context.Context, path uri.URI) ([]provider.DirEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	parent, ok := p.entries[path.Path]
	if !ok || !parent.isDir {
		return nil, vfsmux.NewOperationError(vfsmux.NotFound, "ReadDirectory", path.String(), nil)
	}

	prefix := path.Path
	if prefix != "/" {
		prefix += "/"
	}
	var out []provider.DirEntry
	for p2, e := range p.entries {
		if p2 == path.Path || !strings.HasPrefix(p2, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p2, prefix)
		if strings.Contains(rest, "/") {
			continue // not an immediate child
		}
		childURI := path
		childURI.Path = p2
		out = append(out, provider.DirEntry{Name: rest, Stat: entryStat(childURI, e)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *Provider) CreateDirectory(ctx context.Context, path uri.URI) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[path.Path]; ok {
		return vfsmux.NewOperationError(vfsmux.FileExists, "CreateDirectory", path.String(), nil)
	}
	p.entries[path.Path] = &memEntry{isDir: true, mtime: time.Now()}
	return nil
}

func (p *Provider) Delete(ctx context.Context, path uri.URI, recursive bool) error {
	p.mu.Lock()
	e, ok := p.entries[path.Path]
	if !ok {
		p.mu.Unlock()
		return vfsmux.NewOperationError(vfsmux.NotFound, "Delete", path.String(), nil)
	}

	prefix := path.Path
	if prefix != "/" {
		prefix += "/"
	}
	var children []string
	for p2 := range p.entries {
		if p2 != path.Path && strings.HasPrefix(p2, prefix) {
			children = append(children, p2)
		}
	}
	if e.isDir && len(children) > 0 && !recursive {
		p.mu.Unlock()
		return vfsmux.NewOperationError(vfsmux.FileNotADirectory, "Delete", path.String(), nil)
	}
	delete(p.entries, path.Path)
	for _, c := range children {
		delete(p.entries, c)
	}
	p.mu.Unlock()

	p.fire(provider.ChangeEvent{Type: provider.Deleted, Path: path})
	return nil
}

func (p *Provider) Rename(ctx context.Context, oldPath, newPath uri.URI, overwrite bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[oldPath.Path]
	if !ok {
		return vfsmux.NewOperationError(vfsmux.NotFound, "Rename", oldPath.String(), nil)
	}
	if _, exists := p.entries[newPath.Path]; exists && !overwrite {
		return vfsmux.NewOperationError(vfsmux.FileExists, "Rename", newPath.String(), nil)
	}
	delete(p.entries, oldPath.Path)
	e.mtime = time.Now()
	p.entries[newPath.Path] = e
	return nil
}

// OpenReadWrite returns a handle over an in-memory copy of path's bytes.
// Writes are only committed back to the provider's table on Close,
// mirroring the teacher's RandomAccessor contract where Close is the
// durability boundary.
func (p *Provider) OpenReadWrite(ctx context.Context, path uri.URI, create bool) (provider.RandomAccessor, error) {
	p.mu.Lock()
	e, ok := p.entries[path.Path]
	if !ok {
		if !create {
			p.mu.Unlock()
			return nil, vfsmux.NewOperationError(vfsmux.NotFound, "OpenReadWrite", path.String(), nil)
		}
		e = &memEntry{mtime: time.Now()}
		p.entries[path.Path] = e
	}
	data := append([]byte{}, e.data...)
	p.mu.Unlock()

	return &memAccessor{provider: p, path: path, data: data}, nil
}

func (p *Provider) commit(path uri.URI, data []byte) {
	p.mu.Lock()
	e, ok := p.entries[path.Path]
	if !ok {
		e = &memEntry{}
		p.entries[path.Path] = e
	}
	e.data = data
	e.mtime = time.Now()
	p.mu.Unlock()
	p.fire(provider.ChangeEvent{Type: provider.Changed, Path: path})
}

// Watch returns a channel fed from an internal broadcast list rather
// than any OS facility, since there is nothing underneath this
// provider to subscribe to. Delete and the commit of a written handle
// on Close fire into every still-open watcher whose path equals the
// changed resource or, for a recursive watch, is an ancestor of it;
// CreateDirectory and Rename fire no events.
func (p *Provider) Watch(ctx context.Context, path uri.URI, recursive bool) (<-chan provider.ChangeEvent, error) {
	raw := make(chan provider.ChangeEvent, 32)
	filtered := make(chan provider.ChangeEvent, 32)

	p.watchMu.Lock()
	p.watchers = append(p.watchers, raw)
	p.watchMu.Unlock()

	go func() {
		defer close(filtered)
		for {
			select {
			case <-ctx.Done():
				p.removeWatcher(raw)
				return
			case ev, ok := <-raw:
				if !ok {
					return
				}
				if ev.Path.Equal(path) || (recursive && path.IsEqualOrParent(ev.Path)) {
					select {
					case filtered <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return filtered, nil
}

func (p *Provider) removeWatcher(ch chan provider.ChangeEvent) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	for i, w := range p.watchers {
		if w == ch {
			p.watchers = append(p.watchers[:i], p.watchers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (p *Provider) fire(ev provider.ChangeEvent) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	for _, w := range p.watchers {
		select {
		case w <- ev:
		default:
		}
	}
}

func entryStat(path uri.URI, e *memEntry) provider.FileStat {
	ft := provider.File
	if e.isDir {
		ft = provider.Directory
	}
	return provider.FileStat{Type: ft, Size: int64(len(e.data)), Mtime: e.mtime, Name: path.Name()}
}

// memAccessor is an io.Reader/Writer/Seeker/Closer over an in-memory
// copy of a resource's bytes, committed back to the owning Provider on
// Close.
type memAccessor struct {
	provider *Provider
	path     uri.URI
	data     []byte
	offset   int64
	closed   bool
}

func (a *memAccessor) Read(p []byte) (int, error) {
	if a.offset >= int64(len(a.data)) {
		return 0, io.EOF
	}
	n := copy(p, a.data[a.offset:])
	a.offset += int64(n)
	return n, nil
}

func (a *memAccessor) Write(p []byte) (int, error) {
	end := a.offset + int64(len(p))
	if end > int64(len(a.data)) {
		grown := make([]byte, end)
		copy(grown, a.data)
		a.data = grown
	}
	n := copy(a.data[a.offset:end], p)
	a.offset += int64(n)
	return n, nil
}

func (a *memAccessor) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = a.offset
	case io.SeekEnd:
		base = int64(len(a.data))
	}
	a.offset = base + offset
	return a.offset, nil
}

func (a *memAccessor) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.provider.commit(a.path, a.data)
	return nil
}
