package policy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseHeaders() http.Header {
	h := http.Header{}
	h.Set("X-User-Id", "u1")
	h.Set("X-User-Roles", "engineer,admin")
	h.Set("X-Policy-Version", "v1")
	h.Set("X-Policy-Key", "k1")
	h.Set("X-Request-Id", "r1")
	h.Set("X-Trace-Id", "t1")
	return h
}

func TestRequireHeaders_MissingFailsClosed(t *testing.T) {
	h := http.Header{}
	h.Set("X-User-Id", "u1")
	err := RequireHeaders(h)
	require.Error(t, err)
}

func TestComputeEffectivePolicy_UsesFirstRole(t *testing.T) {
	loader := NewRoleLoader("../../policy/roles")
	p, err := ComputeEffectivePolicy(baseHeaders(), loader, []string{"low", "medium", "high"})
	require.NoError(t, err)
	assert.Equal(t, "engineer", p.Role)
	assert.Equal(t, 1, p.MaxHops)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, p.PolicyFP)
}

func TestComputeEffectivePolicy_UnknownRole(t *testing.T) {
	h := baseHeaders()
	h.Set("X-User-Roles", "nonexistent")
	loader := NewRoleLoader("../../policy/roles")
	_, err := ComputeEffectivePolicy(h, loader, []string{"low", "medium", "high"})
	require.Error(t, err)
}

func TestComputeEffectivePolicy_NarrowsSensitivity(t *testing.T) {
	h := baseHeaders()
	h.Set("X-Sensitivity-Ceiling", "low")
	loader := NewRoleLoader("../../policy/roles")
	p, err := ComputeEffectivePolicy(h, loader, []string{"low", "medium", "high"})
	require.NoError(t, err)
	assert.Equal(t, "low", p.Sensitivity)
}

func TestComputeEffectivePolicy_Deterministic(t *testing.T) {
	loader := NewRoleLoader("../../policy/roles")
	order := []string{"low", "medium", "high"}
	p1, err := ComputeEffectivePolicy(baseHeaders(), loader, order)
	require.NoError(t, err)
	p2, err := ComputeEffectivePolicy(baseHeaders(), loader, order)
	require.NoError(t, err)
	assert.Equal(t, p1.PolicyFP, p2.PolicyFP)
}

func TestACLCheck_DomainOutOfScope(t *testing.T) {
	loader := NewRoleLoader("../../policy/roles")
	p, err := ComputeEffectivePolicy(baseHeaders(), loader, []string{"low", "medium", "high"})
	require.NoError(t, err)
	node := Node{"id": "hr_d-hr-01", "type": "DECISION", "domain": "hr", "sensitivity": "low"}
	res := ACLCheck(node, p, []string{"low", "medium", "high"})
	assert.False(t, res.Allowed)
	assert.Equal(t, "acl:domain_out_of_scope", res.Reason)
}

func TestACLCheck_SensitivityExceeded(t *testing.T) {
	loader := NewRoleLoader("../../policy/roles")
	p, err := ComputeEffectivePolicy(baseHeaders(), loader, []string{"low", "medium", "high"})
	require.NoError(t, err)
	node := Node{"id": "eng_d-eng-010", "type": "DECISION", "domain": "eng", "sensitivity": "high"}
	res := ACLCheck(node, p, []string{"low", "medium", "high"})
	assert.False(t, res.Allowed)
	assert.Equal(t, "acl:sensitivity_exceeded", res.Reason)
}

func TestFieldMask_NormalisesIDAndHidesRationale(t *testing.T) {
	loader := NewRoleLoader("../../policy/roles")
	p, err := ComputeEffectivePolicy(baseHeaders(), loader, []string{"low", "medium", "high"})
	require.NoError(t, err)
	node := Node{
		"id": "eng_d-eng-010", "type": "DECISION", "domain": "eng",
		"title": "Exit plasma", "rationale": "too costly",
	}
	masked, summary := FieldMaskWithSummary(node, p)
	assert.Equal(t, "eng#d-eng-010", masked["id"])
	assert.Equal(t, "Exit plasma", masked["title"])
	_, hasRationale := masked["rationale"]
	assert.False(t, hasRationale)
	assert.Equal(t, 1, summary.TotalRemoved)
}
