// Package canon implements stable, deterministic JSON serialisation and the
// sha256 fingerprints derived from it (spec §4.1).
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Bytes returns the canonical byte representation of x: object keys sorted,
// compact separators, UTF-8, no insignificant whitespace. Any value produced
// by encoding/json.Unmarshal (maps, slices, strings, float64, bool, nil) or
// any value implementing json.Marshaler is accepted.
func Bytes(x interface{}) ([]byte, error) {
	norm, err := normalize(x)
	if err != nil {
		return nil, fmt.Errorf("canon: normalize: %w", err)
	}
	return encode(norm)
}

// MustBytes panics on error; reserved for values known to be canonicalisable
// (constructed internally, not derived from untrusted input).
func MustBytes(x interface{}) []byte {
	b, err := Bytes(x)
	if err != nil {
		panic(err)
	}
	return b
}

// normalize round-trips x through encoding/json so that struct field tags,
// json.Marshaler implementations, etc. are applied once before the
// deterministic encoder walks the result.
func normalize(x interface{}) (interface{}, error) {
	raw, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf []byte
	var err error
	buf, err = appendValue(buf, v)
	return buf, err
}

func appendValue(buf []byte, v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if t {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case json.Number:
		return append(buf, t.String()...), nil
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	case []interface{}:
		buf = append(buf, '[')
		for i, item := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendValue(buf, item)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf, err = appendValue(buf, t[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return nil, fmt.Errorf("canon: unsupported type %T", v)
	}
}

// SHA256Hex returns the lower-case hex sha256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// EnsurePrefix prefixes hex with "sha256:" if not already present.
func EnsurePrefix(hex string) string {
	const p = "sha256:"
	if len(hex) >= len(p) && hex[:len(p)] == p {
		return hex
	}
	return p + hex
}

// Fingerprint canonicalises x and returns its prefixed sha256 fingerprint.
func Fingerprint(x interface{}) (string, error) {
	b, err := Bytes(x)
	if err != nil {
		return "", err
	}
	return EnsurePrefix(SHA256Hex(b)), nil
}

// MustFingerprint panics on error; for internally constructed bases only.
func MustFingerprint(x interface{}) string {
	fp, err := Fingerprint(x)
	if err != nil {
		panic(err)
	}
	return fp
}
