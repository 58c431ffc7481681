// Package snapshot computes the opaque snapshot ETag stamped on every node
// and edge (spec §3): a SHA-256 over ordered fixture file contents plus a
// coarse timestamp bucket, so two ingest runs against unchanged fixtures in
// the same bucket produce the same ETag.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Unknown is the sentinel ETag value meaning "no snapshot has been built
// yet"; it is distinct from any valid computed ETag (§3).
const Unknown = "unknown"

// BucketWindow is the coarse time bucket width folded into the ETag so that
// re-ingesting byte-identical fixtures within the same window is idempotent
// while still rotating the ETag across windows.
const BucketWindow = time.Hour

// FileContent pairs a fixture's path with its raw bytes for ordered hashing.
type FileContent struct {
	Path    string
	Content []byte
}

// Compute returns the ETag for files as of now: sort files by path (ingest
// already collects them recursively in a deterministic walk order, but
// sorting here makes the function total over any caller-supplied order),
// then hash each path and its content in order, plus the coarse time bucket.
func Compute(files []FileContent, now time.Time) string {
	ordered := append([]FileContent(nil), files...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	h := sha256.New()
	for _, f := range ordered {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write(f.Content)
		h.Write([]byte{0})
	}
	bucket := now.Truncate(BucketWindow).Unix()
	h.Write([]byte{byte(bucket), byte(bucket >> 8), byte(bucket >> 16), byte(bucket >> 24)})
	return hex.EncodeToString(h.Sum(nil))
}

// IsKnown reports whether etag is a real snapshot value, i.e. neither empty
// nor the Unknown sentinel (§3, §4.4 "skip writes when snapshot_etag ==
// unknown").
func IsKnown(etag string) bool {
	return etag != "" && etag != Unknown
}
