package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FieldVisibility describes which fields of a node type are visible to a
// role, and whether free-text rationale fields are exposed.
type FieldVisibility struct {
	VisibleFields    []string `json:"visible_fields"`
	RationaleVisible bool     `json:"rationale_visible"`
}

// RoleProfile is the on-disk "role-<slug>.json" document (spec §6).
type RoleProfile struct {
	Role               string                     `json:"role"`
	Namespaces         []string                   `json:"namespaces"`
	DomainScopes       []string                   `json:"domain_scopes"`
	EdgeAllowlist      []string                   `json:"edge_allowlist"`
	SensitivityCeiling string                     `json:"sensitivity_ceiling"`
	AliasMaxHops       int                        `json:"alias_max_hops"`
	ExtraVisible       []string                   `json:"extra_visible"`
	FieldVisibility    map[string]FieldVisibility `json:"field_visibility"`
}

// RoleLoader resolves role profiles from a policy directory, following the
// resolution priority of original_source's _policy_dir(): $POLICY_DIR, then
// the caller-provided default directory.
type RoleLoader struct {
	Dir   string
	cache map[string]*RoleProfile
}

// NewRoleLoader builds a loader rooted at dir (already resolved by caller,
// e.g. from config.PolicyConfig.PolicyDir / $POLICY_DIR).
func NewRoleLoader(dir string) *RoleLoader {
	return &RoleLoader{Dir: dir, cache: make(map[string]*RoleProfile)}
}

// Load reads and parses "role-<slug>.json" for role, caching the result.
func (l *RoleLoader) Load(role string) (*RoleProfile, error) {
	if p, ok := l.cache[role]; ok {
		return p, nil
	}
	path := filepath.Join(l.Dir, fmt.Sprintf("role-%s.json", role))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: unknown role %q: %w", role, err)
	}
	var p RoleProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("policy: malformed role profile %q: %w", path, err)
	}
	if p.AliasMaxHops <= 0 {
		p.AliasMaxHops = 1
	}
	l.cache[role] = &p
	return &p, nil
}

// Smoke loads every "role-*.json" under dir and reports malformed profiles,
// for use by the ingest CLI's --check-policies flag (SPEC_FULL §SF.4.2).
func Smoke(dir string) []error {
	var errs []error
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []error{fmt.Errorf("policy smoke: read %s: %w", dir, err)}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("policy smoke: %s: %w", name, err))
			continue
		}
		var p RoleProfile
		if err := json.Unmarshal(data, &p); err != nil {
			errs = append(errs, fmt.Errorf("policy smoke: %s: %w", name, err))
			continue
		}
		if p.Role == "" {
			errs = append(errs, fmt.Errorf("policy smoke: %s: missing role field", name))
		}
	}
	return errs
}
