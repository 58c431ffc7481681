package meta

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMirrorHeaders_SetsPresentFingerprintsOnly(t *testing.T) {
	h := http.Header{}
	m := Meta{PolicyID: "role-eng-v1", PolicyFingerprint: "sha256:p", RequestID: "req-1", SnapshotETag: "snap-1"}
	MirrorHeaders(h, m, "sha256:allowed")

	assert.Equal(t, "sha256:p", h.Get(HeaderPolicyFP))
	assert.Equal(t, "req-1", h.Get(HeaderRequestID))
	assert.Equal(t, "snap-1", h.Get(HeaderSnapshotETag))
	assert.Equal(t, "sha256:allowed", h.Get(HeaderAllowedIDsFP))
	assert.Empty(t, h.Get(HeaderPromptFP))
	assert.Empty(t, h.Get(HeaderBundleFP))
	assert.Empty(t, h.Get(HeaderTraceID))
}

func TestMirrorHeaders_OmitsEmptyOptionalFields(t *testing.T) {
	h := http.Header{}
	MirrorHeaders(h, Meta{}, "")
	assert.Empty(t, h.Get(HeaderPolicyFP))
	assert.Empty(t, h.Get(HeaderRequestID))
	assert.Empty(t, h.Get(HeaderAllowedIDsFP))
}

func TestMeta_GatewayVersionConstant(t *testing.T) {
	assert.NotEmpty(t, GatewayVersion)
}
