// Package localfs implements a provider.BaseProvider over the local
// disk, grounded on the teacher's FilesystemDataProvider
// (dp_filesystemprovider.go) and LocalFileSystem (dp_localfilesystem.go):
// same os.MkdirAll-retry-on-write, os.Rename-falling-back-to-delete-
// and-retry behavior, generalized onto the capability-typed provider
// family instead of the teacher's single monolithic DataProvider/
// FileSystem interface.
package localfs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	vfsmux "github.com/worldiety/vfsmux"
	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

const trashDirName = ".vfsmux-trash"

// Provider mounts a root directory on disk as a provider.BaseProvider,
// optionally restricted below Root the way the teacher's Prefix field
// scoped a FilesystemDataProvider to an artificial root.
type Provider struct {
	Root string
	log  *logrus.Entry
}

var _ provider.BaseProvider = (*Provider)(nil)
var _ provider.WholeFileProvider = (*Provider)(nil)
var _ provider.RandomAccessProvider = (*Provider)(nil)
var _ provider.FolderCopyProvider = (*Provider)(nil)
var _ provider.WatchProvider = (*Provider)(nil)

// New mounts root. log may be nil.
func New(root string, log *logrus.Entry) *Provider {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Provider{Root: root, log: log.WithField("component", "provider.localfs").WithField("root", root)}
}

// Capabilities reports whole-file and random-access I/O, native folder
// copy via a filesystem walk, trash support (a .vfsmux-trash
// directory under Root, created on first use), and fsnotify-backed
// watching.
// Path comparisons delegate to the host OS so PathCaseSensitive is set
// only on platforms whose filesystem is actually case sensitive.
func (p *Provider) Capabilities() capability.Set {
	caps := capability.Of(
		capability.FileReadWrite,
		capability.FileOpenReadWriteClose,
		capability.FileFolderCopy,
		capability.Trash,
		capability.Watch,
	)
	if caseSensitiveFS() {
		caps = caps.With(capability.PathCaseSensitive)
	}
	return caps
}

// resolve maps a URI's path onto a native filesystem path below Root,
// normalizing ".." the way the teacher's Resolve does via Path.Normalize
// before joining the prefix, so a caller cannot escape Root.
func (p *Provider) resolve(path uri.URI) string {
	segments := path.Names()
	cleaned := make([]string, 0, len(segments))
	depth := 0
	for _, s := range segments {
		switch s {
		case "..":
			if depth > 0 {
				cleaned = cleaned[:len(cleaned)-1]
				depth--
			}
		case ".":
			// skip
		default:
			cleaned = append(cleaned, s)
			depth++
		}
	}
	return filepath.Join(p.Root, filepath.Join(cleaned...))
}

func (p *Provider) trashDir() string {
	return filepath.Join(p.Root, trashDirName)
}

func (p *Provider) Stat(ctx context.Context, path uri.URI) (provider.FileStat, error) {
	info, err := os.Stat(p.resolve(path))
	if err != nil {
		return provider.FileStat{}, classify(err)
	}
	return toFileStat(info), nil
}

func (p *Provider) ReadDirectory(ctx context.Context, path uri.URI) ([]provider.DirEntry, error) {
	entries, err := os.ReadDir(p.resolve(path))
	if err != nil {
		return nil, classify(err)
	}
	out := make([]provider.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name() == trashDirName && path.Path == "/" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, provider.DirEntry{Name: e.Name(), Stat: toFileStat(info)})
	}
	return out, nil
}

func (p *Provider) CreateDirectory(ctx context.Context, path uri.URI) error {
	if err := os.Mkdir(p.resolve(path), 0o755); err != nil {
		return classify(err)
	}
	return nil
}

// Delete removes path by moving it into the trash directory, falling
// back to os.RemoveAll only if that move fails; the caller has no
// per-call choice between the two. This provider always honors the Trash capability by moving rather than
// erasing; a caller wanting a hard delete uses Purge.
func (p *Provider) Delete(ctx context.Context, path uri.URI, recursive bool) error {
	full := p.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return classify(err)
	}
	if info.IsDir() && !recursive {
		entries, err := os.ReadDir(full)
		if err == nil && len(entries) > 0 {
			return vfsmux.NewOperationError(vfsmux.FileNotADirectory, "Delete", path.String(), nil)
		}
	}
	if err := p.moveToTrash(full, path); err != nil {
		// Trashing failed (e.g. cross-device); fall back to a hard
		// delete rather than leaving the caller's Delete unsatisfied.
		if rmErr := os.RemoveAll(full); rmErr != nil {
			return classify(rmErr)
		}
	}
	return nil
}

func (p *Provider) moveToTrash(full string, path uri.URI) error {
	trash := p.trashDir()
	if err := os.MkdirAll(trash, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(trash, sanitizeTrashName(path)+"."+time.Now().UTC().Format("20060102T150405.000000000"))
	return os.Rename(full, dest)
}

func sanitizeTrashName(path uri.URI) string {
	return strings.ReplaceAll(strings.TrimPrefix(path.Path, "/"), "/", "_")
}

// Purge permanently empties the trash directory, a housekeeping
// operation the wire protocol and fileservice do not expose directly
// but cmd/vfsmuxd can drive.
func (p *Provider) Purge() error {
	return os.RemoveAll(p.trashDir())
}

// Rename mirrors the teacher's Rename-then-delete-and-retry fallback:
// some filesystems refuse os.Rename onto an existing target, so a
// failed attempt is retried once after removing the destination.
func (p *Provider) Rename(ctx context.Context, oldPath, newPath uri.URI, overwrite bool) error {
	oldFull, newFull := p.resolve(oldPath), p.resolve(newPath)
	if !overwrite {
		if _, err := os.Stat(newFull); err == nil {
			return vfsmux.NewOperationError(vfsmux.FileExists, "Rename", newPath.String(), nil)
		}
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		if rmErr := os.RemoveAll(newFull); rmErr != nil {
			return classify(err)
		}
		if err2 := os.Rename(oldFull, newFull); err2 != nil {
			return classify(err)
		}
	}
	return nil
}

func (p *Provider) ReadFile(ctx context.Context, path uri.URI) (io.ReadCloser, error) {
	f, err := os.Open(p.resolve(path))
	if err != nil {
		return nil, classify(err)
	}
	return f, nil
}

// WriteFile mirrors the teacher's Write: create, and if the parent
// directory is missing, create it and retry once.
func (p *Provider) WriteFile(ctx context.Context, path uri.URI, data io.Reader) error {
	full := p.resolve(path)
	f, err := os.Create(full)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr != nil {
				return classify(err)
			}
			f, err = os.Create(full)
		}
		if err != nil {
			return classify(err)
		}
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return classify(err)
	}
	return nil
}

func (p *Provider) OpenReadWrite(ctx context.Context, path uri.URI, create bool) (provider.RandomAccessor, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	full := p.resolve(path)
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		if create && os.IsNotExist(err) {
			if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr != nil {
				return nil, classify(err)
			}
			f, err = os.OpenFile(full, flags, 0o644)
		}
		if err != nil {
			return nil, classify(err)
		}
	}
	return f, nil
}

// CopyFolder copies source recursively to target using the OS's own
// walk instead of fileservice's generic child-by-child fan-out,
// exercising the FileFolderCopy capability path.
func (p *Provider) CopyFolder(ctx context.Context, source, target uri.URI, overwrite bool) error {
	srcFull, dstFull := p.resolve(source), p.resolve(target)
	if !overwrite {
		if _, err := os.Stat(dstFull); err == nil {
			return vfsmux.NewOperationError(vfsmux.FileExists, "CopyFolder", target.String(), nil)
		}
	}
	return filepath.WalkDir(srcFull, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcFull, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstFull, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		out, err := os.Create(dst)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, src)
		return err
	})
}

// Watch follows path (and, if recursive, everything below it) using
// fsnotify, translating raw fsnotify.Op bits into provider.ChangeType.
// The returned channel is closed when ctx is done.
func (p *Provider) Watch(ctx context.Context, path uri.URI, recursive bool) (<-chan provider.ChangeEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, classify(err)
	}

	root := p.resolve(path)
	if err := addWatchRecursive(watcher, root, recursive); err != nil {
		watcher.Close()
		return nil, classify(err)
	}

	out := make(chan provider.ChangeEvent, 32)
	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				changeType, ok := toChangeType(ev.Op)
				if !ok {
					continue
				}
				rel, err := filepath.Rel(p.Root, ev.Name)
				if err != nil {
					continue
				}
				evURI := path
				evURI.Path = "/" + filepath.ToSlash(rel)
				select {
				case out <- provider.ChangeEvent{Type: changeType, Path: evURI}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.log.WithError(err).Warn("watch error")
			}
		}
	}()

	return out, nil
}

func addWatchRecursive(w *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		return w.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func toChangeType(op fsnotify.Op) (provider.ChangeType, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return provider.Created, true
	case op&fsnotify.Remove != 0:
		return provider.Deleted, true
	case op&fsnotify.Write != 0, op&fsnotify.Rename != 0, op&fsnotify.Chmod != 0:
		return provider.Changed, true
	default:
		return 0, false
	}
}

func toFileStat(info os.FileInfo) provider.FileStat {
	ft := provider.File
	if info.IsDir() {
		ft = provider.Directory
	}
	if info.Mode()&os.ModeSymlink != 0 {
		ft = provider.SymbolicLink
	}
	return provider.FileStat{
		Type:  ft,
		Size:  info.Size(),
		Mtime: info.ModTime(),
		Name:  info.Name(),
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return vfsmux.NewOperationError(vfsmux.NotFound, "", "", err)
	case os.IsExist(err):
		return vfsmux.NewOperationError(vfsmux.FileExists, "", "", err)
	case os.IsPermission(err):
		return vfsmux.NewOperationError(vfsmux.NoPermissions, "", "", err)
	default:
		return vfsmux.NewOperationError(vfsmux.Unknown, "", "", err)
	}
}

func caseSensitiveFS() bool {
	return runtime.GOOS != "windows" && runtime.GOOS != "darwin"
}
