// Package policy implements the header-derived policy engine (spec §4.2):
// effective-policy derivation, fingerprinting, ACL checks, and field
// masking. Ported from original_source's memory_api.policy.
package policy

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/batvault/batvault/internal/bverr"
	"github.com/batvault/batvault/internal/canon"
)

// RequiredHeaders is the fixed set of headers every Memory/Gateway request
// must carry (case-insensitive).
var RequiredHeaders = []string{
	"x-user-id", "x-policy-version", "x-policy-key",
	"x-request-id", "x-trace-id", "x-user-roles",
}

// Policy is the effective, request-scoped policy derived from headers and
// the active role profile.
type Policy struct {
	UserID          string
	Role            string
	Namespaces      []string
	DomainScopes    []string
	EdgeAllowlist   []string
	Sensitivity     string
	MaxHops         int
	AliasMaxHops    int
	PolicyVersion   string
	PolicyKey       string
	ExtraVisible    []string
	FieldVisibility map[string]FieldVisibility
	DeniedStatus    int
	RequestID       string
	TraceID         string
	PolicyFP        string
}

// sensRank returns order's index of level, or -1 if absent.
func sensRank(order []string, level string) int {
	for i, l := range order {
		if l == level {
			return i
		}
	}
	return -1
}

func minSensitivity(order []string, a, b string) string {
	ra, rb := sensRank(order, a), sensRank(order, b)
	if ra < 0 {
		return b
	}
	if rb < 0 {
		return a
	}
	if ra < rb {
		return a
	}
	return b
}

func headerCSV(h http.Header, name string) []string {
	v := h.Get(name)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	if a == nil {
		return append([]string(nil), b...)
	}
	set := make(map[string]bool, len(b))
	for _, x := range b {
		set[x] = true
	}
	var out []string
	for _, x := range a {
		if set[x] {
			out = append(out, x)
		}
	}
	return out
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// RequireHeaders validates that every header in RequiredHeaders is present
// and non-empty; fail-closed before any storage access (§7, P8).
func RequireHeaders(h http.Header) error {
	var missing []string
	for _, name := range RequiredHeaders {
		if h.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return bverr.New(bverr.KindPolicyError, "missing required headers: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ComputeEffectivePolicy derives the request's effective Policy from
// headers and the role profile they select (§4.2). sensitivityOrder is the
// low-to-high ordered sensitivity vocabulary (config.SensitivityOrderList).
func ComputeEffectivePolicy(h http.Header, loader *RoleLoader, sensitivityOrder []string) (*Policy, error) {
	if err := RequireHeaders(h); err != nil {
		return nil, err
	}

	roles := headerCSV(h, "X-User-Roles")
	role := roles[0]
	profile, err := loader.Load(role)
	if err != nil {
		return nil, bverr.New(bverr.KindPolicyError, "unknown role %q", role).WithSubkind("unknown_role")
	}

	namespaces := intersect(headerCSV(h, "X-User-Namespaces"), profile.Namespaces)
	if headerCSV(h, "X-User-Namespaces") == nil {
		namespaces = profile.Namespaces
	}
	scopes := intersect(headerCSV(h, "X-Domain-Scopes"), profile.DomainScopes)
	if headerCSV(h, "X-Domain-Scopes") == nil {
		scopes = profile.DomainScopes
	}
	edges := intersect(headerCSV(h, "X-Edge-Allow"), profile.EdgeAllowlist)
	if headerCSV(h, "X-Edge-Allow") == nil {
		edges = profile.EdgeAllowlist
	}

	sensitivity := profile.SensitivityCeiling
	if hdr := h.Get("X-Sensitivity-Ceiling"); hdr != "" {
		sensitivity = minSensitivity(sensitivityOrder, sensitivity, hdr)
	}

	maxHops := 1
	if hdr := h.Get("X-Max-Hops"); hdr != "" {
		if v, err := strconv.Atoi(hdr); err == nil && v < maxHops {
			maxHops = v
		}
	}

	aliasMaxHops := profile.AliasMaxHops
	if aliasMaxHops <= 0 || aliasMaxHops > 3 {
		aliasMaxHops = 1
	}

	deniedStatus := http.StatusForbidden
	if hdr := h.Get("X-Denied-Status"); hdr != "" {
		if v, err := strconv.Atoi(hdr); err == nil && (v == http.StatusForbidden || v == http.StatusNotFound) {
			deniedStatus = v
		}
	}

	p := &Policy{
		UserID:          h.Get("X-User-Id"),
		Role:            role,
		Namespaces:      namespaces,
		DomainScopes:    scopes,
		EdgeAllowlist:   edges,
		Sensitivity:     sensitivity,
		MaxHops:         maxHops,
		AliasMaxHops:    aliasMaxHops,
		PolicyVersion:   h.Get("X-Policy-Version"),
		PolicyKey:       h.Get("X-Policy-Key"),
		ExtraVisible:    profile.ExtraVisible,
		FieldVisibility: profile.FieldVisibility,
		DeniedStatus:    deniedStatus,
		RequestID:       h.Get("X-Request-Id"),
		TraceID:         h.Get("X-Trace-Id"),
	}

	fvFP, err := canon.Fingerprint(p.FieldVisibility)
	if err != nil {
		return nil, bverr.Wrap(bverr.KindInternal, err, "fingerprint field_visibility")
	}
	basis := map[string]interface{}{
		"role":           p.Role,
		"namespaces":     sortedCopy(p.Namespaces),
		"scopes":         sortedCopy(p.DomainScopes),
		"edge_allowlist": sortedCopy(p.EdgeAllowlist),
		"sensitivity":    p.Sensitivity,
		"max_hops":       p.MaxHops,
		"policy_version": p.PolicyVersion,
		"extra_visible":  sortedCopy(p.ExtraVisible),
		"fv_hash":        fvFP,
	}
	fp, err := canon.Fingerprint(basis)
	if err != nil {
		return nil, bverr.Wrap(bverr.KindInternal, err, "fingerprint policy basis")
	}
	p.PolicyFP = fp

	return p, nil
}
