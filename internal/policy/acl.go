package policy

import (
	"fmt"
	"strings"

	"github.com/batvault/batvault/internal/bverr"
)

// Node is the flexible node representation used across policy/storage: a
// decoded JSON object plus the handful of fields every node carries.
type Node map[string]interface{}

func (n Node) str(key string) string {
	v, _ := n[key].(string)
	return v
}

func (n Node) strSlice(key string) []string {
	raw, ok := n[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ACLResult carries the check verdict and, on denial, the machine reason.
type ACLResult struct {
	Allowed bool
	Reason  string
}

func sensitivityRank(order []string, s string) int {
	for i, l := range order {
		if l == s {
			return i
		}
	}
	return -1
}

func containsAny(roleSet, nodeSet []string) bool {
	if len(nodeSet) == 0 {
		return true
	}
	if len(roleSet) == 0 {
		return false
	}
	set := make(map[string]bool, len(roleSet))
	for _, s := range roleSet {
		set[s] = true
	}
	for _, s := range nodeSet {
		if set[s] {
			return true
		}
	}
	return false
}

func domainInScopes(domain string, scopes []string) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, pattern := range scopes {
		if globMatch(pattern, domain) {
			return true
		}
	}
	return false
}

// globMatch supports "*" as a trailing wildcard segment, e.g. "eng/*".
func globMatch(pattern, s string) bool {
	if pattern == s {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(s, prefix)
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(s, prefix)
	}
	return false
}

// ACLCheck determines whether node is visible under policy, fail-closed
// (spec §4.2). Reasons mirror original_source's acl: prefix convention.
func ACLCheck(node Node, p *Policy, sensitivityOrder []string) ACLResult {
	if p.Role == "" {
		return ACLResult{false, "acl:role_missing"}
	}

	rolesAllowed := node.strSlice("roles_allowed")
	if len(rolesAllowed) > 0 && !containsAny([]string{p.Role}, rolesAllowed) {
		return ACLResult{false, "acl:role_missing"}
	}

	nodeNamespaces := node.strSlice("namespaces")
	if len(nodeNamespaces) > 0 && !containsAny(p.Namespaces, nodeNamespaces) {
		return ACLResult{false, "acl:namespace_mismatch"}
	}

	nodeSensitivity := node.str("sensitivity")
	if nodeSensitivity != "" {
		nr := sensitivityRank(sensitivityOrder, nodeSensitivity)
		pr := sensitivityRank(sensitivityOrder, p.Sensitivity)
		if nr >= 0 && pr >= 0 && nr > pr {
			return ACLResult{false, "acl:sensitivity_exceeded"}
		}
	}

	domain := node.str("domain")
	if domain != "" && !domainInScopes(domain, p.DomainScopes) {
		return ACLResult{false, "acl:domain_out_of_scope"}
	}

	return ACLResult{true, ""}
}

// DeniedError renders an ACL denial as a bverr.Error using the policy's
// configured denied status (X-Denied-Status, default 403).
func DeniedError(res ACLResult, p *Policy) *bverr.Error {
	subkind := strings.TrimPrefix(res.Reason, "acl:")
	return bverr.New(bverr.KindACLDenied, fmt.Sprintf("denied: %s", res.Reason)).
		WithSubkind(subkind).
		WithRequestID(p.RequestID).
		WithStatus(p.DeniedStatus)
}
