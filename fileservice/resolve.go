package fileservice

import (
	"context"
	"strings"

	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

// ResolveOptions controls how far Resolve expands a directory's
// subtree, mirroring spec's resolve(uri, options) parameter shape.
type ResolveOptions struct {
	// ResolveMetadata requests a full per-child Stat during directory
	// expansion; without it, only the child's FileType (from
	// ReadDirectory) is reported and the rest of its FileStat is left
	// zero.
	ResolveMetadata bool

	// ResolveTo seeds the prefix trie with additional target URIs:
	// every ancestor directory of each one is force-expanded on the
	// way down, the way a "reveal this file in the tree" UI action
	// auto-opens the folders leading to it.
	ResolveTo []uri.URI

	// ResolveSingleChildDescendants auto-expands a directory chain
	// where every level has exactly one entry, collapsing runs like
	// a/b/c/d (each containing only the next) into one reveal instead
	// of requiring N manual expansions.
	ResolveSingleChildDescendants bool
}

// ResolvedStat is the tree-shaped result of Resolve: a directory's
// Children are populated according to ResolveOptions, recursively.
// Unlike the flat provider.FileStat Stat returns, this is what the
// spec's resolve operation is actually contracted to produce.
type ResolvedStat struct {
	provider.FileStat
	ETag     ETag
	Children []ResolvedStat
}

// Resolve implements the service's resolve(uri, options) operation:
// it stats u, and if u names a directory, recursively expands its
// children subject to a prefix trie seeded with u and every
// options.ResolveTo URI (always expanding the immediate children of
// u itself, then descending further only into children on the path
// to a seeded target, or — when ResolveSingleChildDescendants is set
// — into directories with no siblings). Per-child failures are
// swallowed and the failing entry omitted, never failing the whole
// call; a directory whose ReadDirectory itself fails resolves with
// Children == nil rather than erroring out.
func (s *Service) Resolve(ctx context.Context, u uri.URI, opts ResolveOptions) (ResolvedStat, error) {
	p, err := s.resolveProvider(ctx, "Resolve", u)
	if err != nil {
		return ResolvedStat{}, err
	}
	stat, err := p.Stat(ctx, u)
	if err != nil {
		return ResolvedStat{}, wrapProviderErr("Resolve", u, err)
	}

	caseSensitive := p.Capabilities().Has(capability.PathCaseSensitive)
	trie := newPrefixTrie(caseSensitive)
	trie.addAncestors(u)
	for _, target := range opts.ResolveTo {
		trie.addAncestors(target)
	}

	return s.resolveTree(ctx, p, u, stat, opts, trie, true)
}

// resolveTree stats are assumed already known (stat) for u; expandChildren
// forces listing u's own children regardless of the trie, used for the
// root of the call (and for any node the trie or single-child rule
// already decided to descend into).
func (s *Service) resolveTree(ctx context.Context, p provider.BaseProvider, u uri.URI, stat provider.FileStat, opts ResolveOptions, trie *prefixTrie, expandChildren bool) (ResolvedStat, error) {
	result := ResolvedStat{FileStat: stat, ETag: ComputeETag(stat)}
	if stat.Type != provider.Directory || !expandChildren {
		return result, nil
	}

	entries, err := p.ReadDirectory(ctx, u)
	if err != nil {
		// A failed readdir leaves children = [] rather than failing
		// the whole resolve.
		return result, nil
	}

	singleChild := opts.ResolveSingleChildDescendants && len(entries) == 1

	result.Children = make([]ResolvedStat, 0, len(entries))
	for _, entry := range entries {
		childURI := u.Join(entry.Name)

		childStat := entry.Stat
		if opts.ResolveMetadata {
			fetched, statErr := p.Stat(ctx, childURI)
			if statErr != nil {
				// Entry-level errors are swallowed to null and filtered.
				continue
			}
			childStat = fetched
		} else {
			childStat = provider.FileStat{Type: entry.Stat.Type, Name: entry.Name}
		}

		descend := childStat.Type == provider.Directory && (trie.contains(childURI) || singleChild)
		child, err := s.resolveTree(ctx, p, childURI, childStat, opts, trie, descend)
		if err != nil {
			continue
		}
		result.Children = append(result.Children, child)
	}
	return result, nil
}

// prefixTrie records every ancestor path (including the endpoint
// itself) of each seeded URI, so resolveTree can cheaply ask "is this
// directory on the way to something the caller asked to reveal".
// Despite the name it is backed by a flat set rather than a nested
// node structure: the paths involved are shallow enough that a map
// lookup per ancestor is simpler than walking trie nodes, and gives
// identical results.
type prefixTrie struct {
	caseSensitive bool
	paths         map[string]struct{}
}

func newPrefixTrie(caseSensitive bool) *prefixTrie {
	return &prefixTrie{caseSensitive: caseSensitive, paths: map[string]struct{}{}}
}

func (t *prefixTrie) key(u uri.URI) string {
	if t.caseSensitive {
		return u.String()
	}
	return strings.ToLower(u.String())
}

func (t *prefixTrie) addAncestors(u uri.URI) {
	cur := uri.URI{Scheme: u.Scheme, Authority: u.Authority, Path: "/"}
	t.paths[t.key(cur)] = struct{}{}
	for _, name := range u.Names() {
		cur = cur.Join(name)
		t.paths[t.key(cur)] = struct{}{}
	}
}

func (t *prefixTrie) contains(u uri.URI) bool {
	_, ok := t.paths[t.key(u)]
	return ok
}
