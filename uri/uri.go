// Package uri implements the resource identifiers used to address files
// and folders across providers. A URI is always of the shape
//
//	scheme://authority/path?query#fragment
//
// Scheme selects the provider (see package registry), authority is
// provider-specific (often empty for local providers), and path segments
// are always separated with a forward slash regardless of the host OS.
package uri

import (
	"net/url"
	"strings"
)

// URI identifies a resource within a mounted provider.
type URI struct {
	Scheme    string
	Authority string
	Path      string
	Query     string
	Fragment  string
}

// Parse splits raw into its URI components. It never fails: if raw
// cannot be parsed as a URL, the whole string is kept as a scheme-less
// path, mirroring the teacher's tolerant Path parsing in path.go.
func Parse(raw string) URI {
	u, err := url.Parse(raw)
	if err != nil {
		return URI{Path: cleanPath(raw)}
	}
	return URI{
		Scheme:    u.Scheme,
		Authority: u.Host,
		Path:      cleanPath(u.Path),
		Query:     u.RawQuery,
		Fragment:  u.Fragment,
	}
}

// New builds a URI from its parts, normalizing path.
func New(scheme, authority, path string) URI {
	return URI{Scheme: scheme, Authority: authority, Path: cleanPath(path)}
}

// cleanPath normalizes slashes the way the teacher's Path.Names/String
// round trip does: split on "/", drop empty segments, rejoin with a
// single leading slash.
func cleanPath(p string) string {
	segments := names(p)
	return "/" + strings.Join(segments, "/")
}

func names(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// String renders the URI back into its canonical textual form.
func (u URI) String() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
		b.WriteString(u.Authority)
	}
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteString("?")
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// Names returns the non-empty path segments.
func (u URI) Names() []string {
	return names(u.Path)
}

// Name returns the last path segment, or "" for the root.
func (u URI) Name() string {
	n := u.Names()
	if len(n) == 0 {
		return ""
	}
	return n[len(n)-1]
}

// Parent returns the URI one segment up. The parent of the root is the
// root itself.
func (u URI) Parent() URI {
	n := u.Names()
	if len(n) == 0 {
		return u
	}
	out := u
	out.Path = "/" + strings.Join(n[:len(n)-1], "/")
	out.Query = ""
	out.Fragment = ""
	return out
}

// IsAbsolute reports whether the URI carries a scheme.
func (u URI) IsAbsolute() bool {
	return u.Scheme != ""
}

// Join appends additional segments to the path.
func (u URI) Join(names ...string) URI {
	out := u
	all := append(append([]string{}, u.Names()...), names...)
	out.Path = "/" + strings.Join(all, "/")
	return out
}

// Resolve interprets other relative to u: if other is absolute it is
// returned unchanged, otherwise its path is joined onto u's.
func (u URI) Resolve(other URI) URI {
	if other.IsAbsolute() {
		return other
	}
	return u.Join(other.Names()...)
}

// Equal compares two URIs for exact, scheme-and-authority-sensitive
// equality.
func (u URI) Equal(other URI) bool {
	return u.Scheme == other.Scheme && u.Authority == other.Authority && u.Path == other.Path
}

// IsEqualOrParent reports whether u is equal to other or an ancestor
// directory of other, used to reject cross-hierarchy moves/copies and
// watch-scope checks.
func (u URI) IsEqualOrParent(other URI) bool {
	if u.Scheme != other.Scheme || u.Authority != other.Authority {
		return false
	}
	if u.Path == other.Path {
		return true
	}
	prefix := u.Path
	if prefix != "/" {
		prefix += "/"
	}
	return strings.HasPrefix(other.Path, prefix)
}

// TrimPrefix strips prefix's path from u's path, returning a
// provider-relative URI. Used when handing a path to a mounted
// provider that only knows about paths below its mount point.
func (u URI) TrimPrefix(prefix URI) URI {
	rest := strings.TrimPrefix(u.Path, prefix.Path)
	out := u
	out.Path = cleanPath(rest)
	out.Scheme = ""
	out.Authority = ""
	return out
}

// WithScheme returns a copy of u using the given scheme and authority.
func (u URI) WithScheme(scheme, authority string) URI {
	out := u
	out.Scheme = scheme
	out.Authority = authority
	return out
}
