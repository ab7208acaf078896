// Package provider declares the contract every backing store must
// satisfy to be mounted into a registry.Registry and driven by
// fileservice. A provider is a tagged-variant family: every provider
// implements BaseProvider, and then at least one of WholeFileProvider
// or RandomAccessProvider for content I/O, plus any optional
// FolderCopyProvider/WatchProvider it is able to accelerate natively.
package provider

import (
	"context"
	"io"
	"time"

	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/uri"
)

// FileType distinguishes regular files from directories and symlinks,
// mirroring the teacher's os.FileMode-derived ResourceInfo but reduced
// to the three shapes the service actually branches on.
type FileType int

const (
	Unknown FileType = iota
	File
	Directory
	SymbolicLink
)

func (t FileType) String() string {
	switch t {
	case File:
		return "file"
	case Directory:
		return "dir"
	case SymbolicLink:
		return "symlink"
	default:
		return "unknown"
	}
}

// FileStat is the normalized metadata record every provider returns
// from Stat, generalizing the teacher's ResourceInfo (path.go,
// dp_filesystemprovider.go ReadAttrs) to the full stat shape the
// fileservice etag and listing operations need.
type FileStat struct {
	Type    FileType
	Size    int64
	Mtime   time.Time
	Ctime   time.Time
	Name    string
	Symlink string // target, when Type == SymbolicLink
}

// DirEntry is one child returned from ReadDirectory.
type DirEntry struct {
	Name string
	Stat FileStat
}

// BaseProvider is the minimum every provider must implement: identity
// metadata, capability negotiation, and the operations common to every
// I/O style (stat, directory listing, delete, mkdir, rename).
type BaseProvider interface {
	// Capabilities returns the fixed or (for remote providers)
	// currently negotiated capability set.
	Capabilities() capability.Set

	// Stat returns metadata for path, or an error satisfying
	// errors.Is(err, vfsmux.Sentinel(vfsmux.NotFound)) if it does not
	// exist.
	Stat(ctx context.Context, path uri.URI) (FileStat, error)

	// ReadDirectory lists the immediate children of path.
	ReadDirectory(ctx context.Context, path uri.URI) ([]DirEntry, error)

	// CreateDirectory creates a single directory level; it does not
	// need to create missing parents (fileservice.Mkdirp handles
	// recursion uniformly across providers).
	CreateDirectory(ctx context.Context, path uri.URI) error

	// Delete removes path. If recursive is false and path is a
	// non-empty directory, implementations should return an error.
	Delete(ctx context.Context, path uri.URI, recursive bool) error

	// Rename moves oldPath to newPath within the same provider.
	// overwrite controls whether an existing newPath is replaced.
	Rename(ctx context.Context, oldPath, newPath uri.URI, overwrite bool) error
}

// WholeFileProvider is implemented by providers whose natural I/O unit
// is the entire file content, mirroring dataprovider.go's
// Read/Write(path) (io.ReadCloser/WriteCloser, error).
type WholeFileProvider interface {
	ReadFile(ctx context.Context, path uri.URI) (io.ReadCloser, error)
	WriteFile(ctx context.Context, path uri.URI, data io.Reader) error
}

// RandomAccessProvider is implemented by providers that can open a
// seekable handle for partial reads/writes, mirroring
// randomaccess.go's RandomAccessProvider/RandomAccessor split.
type RandomAccessProvider interface {
	OpenReadWrite(ctx context.Context, path uri.URI, create bool) (RandomAccessor, error)
}

// RandomAccessor groups the seekable handle operations, equivalent to
// the teacher's RandomAccessor interface.
type RandomAccessor interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// FolderCopyProvider is an optional accelerator: a provider able to
// copy a folder server-side (e.g. a rename-based or COW filesystem)
// implements it so fileservice.Copy can skip the child-by-child
// buffered walk, mirroring the teacher's FileFolderCopy capability.
type FolderCopyProvider interface {
	CopyFolder(ctx context.Context, source, target uri.URI, overwrite bool) error
}

// WatchProvider is an optional accelerator for native change
// notification. Watch returns no cancel function: events are delivered
// on the returned channel, and cancelling ctx ends the watch.
type WatchProvider interface {
	Watch(ctx context.Context, path uri.URI, recursive bool) (<-chan ChangeEvent, error)
}

// CapabilityChangeNotifier is an optional accelerator implemented by a
// provider whose capability set can change after activation — a remote
// mount whose server renegotiates, or a backing store toggled readonly
// at runtime. OnCapabilitiesChanged registers fn to be called with the
// provider's new Set every time it changes; registry subscribes on
// activation so fileservice.OnDidChangeProviderCapabilities has
// something to fire.
type CapabilityChangeNotifier interface {
	OnCapabilitiesChanged(fn func(capability.Set))
}

// ChangeType enumerates the fixed wire values for a ChangeEvent,
// matching the external protocol's numbering (1=created, 2=changed,
// 3=deleted) so local and remote providers produce identical event
// streams.
type ChangeType int

const (
	Created ChangeType = 1
	Changed ChangeType = 2
	Deleted ChangeType = 3
)

// ChangeEvent is one change notification as emitted by a provider's
// Watch and fanned out by fileservice to registered listeners.
type ChangeEvent struct {
	Type ChangeType
	Path uri.URI
}

// Capabilities returns p's capability.Set via whichever capability
// surface p implements. It is a convenience used by registry and
// fileservice so they never need a type switch of their own.
func Capabilities(p BaseProvider) capability.Set {
	return p.Capabilities()
}

// IsWholeFile reports whether p implements WholeFileProvider.
func IsWholeFile(p BaseProvider) (WholeFileProvider, bool) {
	wp, ok := p.(WholeFileProvider)
	return wp, ok
}

// IsRandomAccess reports whether p implements RandomAccessProvider.
func IsRandomAccess(p BaseProvider) (RandomAccessProvider, bool) {
	rp, ok := p.(RandomAccessProvider)
	return rp, ok
}

// IsFolderCopy reports whether p implements FolderCopyProvider.
func IsFolderCopy(p BaseProvider) (FolderCopyProvider, bool) {
	fp, ok := p.(FolderCopyProvider)
	return fp, ok
}

// IsWatchable reports whether p implements WatchProvider.
func IsWatchable(p BaseProvider) (WatchProvider, bool) {
	wp, ok := p.(WatchProvider)
	return wp, ok
}

// IsCapabilityChangeNotifier reports whether p implements
// CapabilityChangeNotifier.
func IsCapabilityChangeNotifier(p BaseProvider) (CapabilityChangeNotifier, bool) {
	n, ok := p.(CapabilityChangeNotifier)
	return n, ok
}
