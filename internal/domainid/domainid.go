// Package domainid implements the wire anchor / storage key grammar and the
// slug normalisation rules used across ingest and policy (spec §3, §4.14),
// ported from original_source's core_utils.domain / core_utils.ids.
package domainid

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	domainRe  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*(?:/[a-z0-9]+(?:-[a-z0-9]+)*)*$`)
	idRe      = regexp.MustCompile(`^[a-z0-9][a-z0-9._:-]+$`)
	anchorRe  = regexp.MustCompile(`^([a-z0-9]+(?:-[a-z0-9]+)*(?:/[a-z0-9]+(?:-[a-z0-9]+)*)*)#([a-z0-9][a-z0-9._:-]+)$`)
	segmentRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugIDRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,}[a-z0-9]$`)
	tagRe     = regexp.MustCompile(`^[a-z0-9_]+$`)
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
)

// IsValidDomain reports whether d matches the domain grammar of §3.
func IsValidDomain(d string) bool { return domainRe.MatchString(d) }

// IsValidID reports whether id matches the id grammar of §3.
func IsValidID(id string) bool { return idRe.MatchString(id) }

// IsAnchor reports whether s is a well-formed wire anchor "<domain>#<id>".
func IsAnchor(s string) bool { return anchorRe.MatchString(s) }

// ParseAnchor splits a wire anchor into its domain and id parts.
func ParseAnchor(s string) (domain, id string, ok bool) {
	m := anchorRe.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// AnchorToStorageKey replaces the single "#" separator with "_" (§3). The
// input must already be a valid wire anchor.
func AnchorToStorageKey(anchor string) (string, error) {
	domain, id, ok := ParseAnchor(anchor)
	if !ok {
		return "", fmt.Errorf("domainid: invalid anchor %q", anchor)
	}
	return domain + "_" + id, nil
}

// StorageKeyToAnchor inverts AnchorToStorageKey by locating the first "_"
// after the last "/" in the storage key (domain segments use "/" and "-",
// never "_", so the first remaining "_" is the separator we introduced).
func StorageKeyToAnchor(key string) (string, error) {
	lastSlash := strings.LastIndex(key, "/")
	rest := key[lastSlash+1:]
	idx := strings.Index(rest, "_")
	if idx < 0 {
		return "", fmt.Errorf("domainid: no separator in storage key %q", key)
	}
	sepPos := lastSlash + 1 + idx
	domain := key[:sepPos]
	id := key[sepPos+1:]
	anchor := domain + "#" + id
	if !IsAnchor(anchor) {
		return "", fmt.Errorf("domainid: storage key %q does not round-trip", key)
	}
	return anchor, nil
}

// NormalizeDomain applies NFKC, lower-cases, maps underscores/whitespace to
// dashes, and validates each "/"-separated segment against segmentRe.
func NormalizeDomain(d string) (string, error) {
	s := norm.NFKC.String(d)
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, s)
	segs := strings.Split(s, "/")
	for _, seg := range segs {
		if !segmentRe.MatchString(seg) {
			return "", fmt.Errorf("domainid: invalid domain segment %q in %q", seg, d)
		}
	}
	return s, nil
}

// SlugifyID normalises a raw id into the ingest-time id grammar
// "^[a-z0-9][a-z0-9-]{2,}[a-z0-9]$": NFKC, lower-case, non [a-z0-9] runs
// collapsed to a single "-", leading/trailing "-" trimmed.
func SlugifyID(raw string) (string, error) {
	s := norm.NFKC.String(raw)
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if !slugIDRe.MatchString(s) {
		return "", fmt.Errorf("domainid: %q does not slugify to a valid id", raw)
	}
	return s, nil
}

// SlugifyTag normalises a tag into "^[a-z0-9_]+$": NFKC, lower-case,
// non [a-z0-9] runs collapsed to a single "_".
func SlugifyTag(raw string) (string, error) {
	s := norm.NFKC.String(raw)
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" || !tagRe.MatchString(s) {
		return "", fmt.Errorf("domainid: %q does not slugify to a valid tag", raw)
	}
	return s, nil
}

// IsSlug reports whether s already satisfies the ingest-time id grammar.
func IsSlug(s string) bool { return slugIDRe.MatchString(s) }

// StableShortID returns an 8-hex-char deterministic short id derived from
// sha1(seed), used to correlate ingest batches in logs without leaking the
// full fingerprint.
func StableShortID(seed string) string {
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])[:8]
}

// EdgeID computes the deterministic edge id "{kind}:{from}:{to}" (§3).
func EdgeID(kind, from, to string) string {
	return fmt.Sprintf("%s:%s:%s", kind, from, to)
}
