// Package bundle defines the per-request artifact bundle shared by the
// Gateway and ingest CLI (spec §6): envelope.json, evidence_pre.json,
// evidence_post.json, response.json, llm_raw.json, validator_report.json,
// bundle.manifest.json, and an optional receipt.json. MinIO persistence of
// these bytes is an external collaborator (§1); this package only defines
// the shapes and the manifest invariant (the listed set must match exactly,
// no extras).
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Artifact names, fixed by the spec.
const (
	NameEnvelope        = "envelope.json"
	NameEvidencePre      = "evidence_pre.json"
	NameEvidencePost     = "evidence_post.json"
	NameResponse         = "response.json"
	NameLLMRaw           = "llm_raw.json"
	NameValidatorReport  = "validator_report.json"
	NameManifest         = "bundle.manifest.json"
	NameReceipt          = "receipt.json"
)

// ManifestEntry describes one artifact in the manifest (§6).
type ManifestEntry struct {
	Name        string `json:"name"`
	SHA256      string `json:"sha256"`
	Bytes       int    `json:"bytes"`
	ContentType string `json:"content_type"`
}

// Manifest lists every artifact produced for one request. The set listed
// here must match exactly the set of files actually written — no extras
// (§6, checked by the validator's manifest-integrity pass, §4.12).
type Manifest struct {
	RequestID string          `json:"request_id"`
	Artifacts []ManifestEntry `json:"artifacts"`
}

// Builder accumulates artifacts for one request and renders the Manifest.
type Builder struct {
	requestID string
	artifacts map[string][]byte
	order     []string
}

// NewBuilder starts a bundle for requestID.
func NewBuilder(requestID string) *Builder {
	return &Builder{requestID: requestID, artifacts: make(map[string][]byte)}
}

// Add stores raw bytes for a named artifact (a canonical-JSON encoding,
// typically), recording insertion order for deterministic manifest output.
func (b *Builder) Add(name string, content []byte) {
	if _, exists := b.artifacts[name]; !exists {
		b.order = append(b.order, name)
	}
	b.artifacts[name] = content
}

// Get returns a previously added artifact's bytes.
func (b *Builder) Get(name string) ([]byte, bool) {
	v, ok := b.artifacts[name]
	return v, ok
}

// Manifest renders the manifest for every artifact added so far, each
// stamped "application/json" (the only content type this module produces).
func (b *Builder) Manifest() Manifest {
	m := Manifest{RequestID: b.requestID}
	for _, name := range b.order {
		content := b.artifacts[name]
		sum := sha256.Sum256(content)
		m.Artifacts = append(m.Artifacts, ManifestEntry{
			Name:        name,
			SHA256:      hex.EncodeToString(sum[:]),
			Bytes:       len(content),
			ContentType: "application/json",
		})
	}
	return m
}

// VerifyManifest checks that manifest lists exactly the artifacts in
// actual (by name), each with a matching sha256/size, rejecting extras on
// either side (§6, §4.12's manifest-integrity check).
func VerifyManifest(manifest Manifest, actual map[string][]byte) error {
	listed := make(map[string]ManifestEntry, len(manifest.Artifacts))
	for _, e := range manifest.Artifacts {
		listed[e.Name] = e
	}
	if len(listed) != len(actual) {
		return fmt.Errorf("bundle: manifest lists %d artifacts, %d present", len(listed), len(actual))
	}
	for name, content := range actual {
		entry, ok := listed[name]
		if !ok {
			return fmt.Errorf("bundle: artifact %q not in manifest", name)
		}
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != entry.SHA256 {
			return fmt.Errorf("bundle: artifact %q sha256 mismatch", name)
		}
		if len(content) != entry.Bytes {
			return fmt.Errorf("bundle: artifact %q size mismatch", name)
		}
	}
	return nil
}
