package fileservice

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/worldiety/vfsmux/provider"
)

// ETag is an opaque optimistic-concurrency token computed from a
// FileStat's size and modification time.
type ETag string

// ComputeETag hashes size and mtime together. WriteFile re-stats the
// resource at write time and compares the caller's ETag with
// ComputeETag of that fresh stat; no caller-held mtime enters the
// comparison, so any change of size or mtime on the backing store,
// including an mtime-only change, is reported as a conflict. Two writes
// that leave size and mtime equal (e.g. within a provider's mtime
// resolution) produce the same ETag and are not detected.
func ComputeETag(stat provider.FileStat) ETag {
	h := sha1.New()
	fmt.Fprintf(h, "%d:%d", stat.Size, stat.Mtime.UnixNano())
	return ETag(hex.EncodeToString(h.Sum(nil)))
}

// Matches reports whether e is empty (meaning "no conditional
// check requested") or equal to the ETag computed from stat.
func (e ETag) Matches(stat provider.FileStat) bool {
	if e == "" {
		return true
	}
	return e == ComputeETag(stat)
}

// zeroTime is the Unix epoch. ComputeETag does not substitute it for a
// missing modification time; it hashes whatever Mtime the stat carries.
var zeroTime = time.Unix(0, 0)
