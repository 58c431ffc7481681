package bverr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UsesDefaultStatus(t *testing.T) {
	err := New(KindACLDenied, "role %q cannot read namespace %q", "viewer", "eng")
	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.Equal(t, `role "viewer" cannot read namespace "eng"`, err.Message)
	assert.Equal(t, "acl_denied", err.Code())
}

func TestWithSubkind_ChangesCode(t *testing.T) {
	err := New(KindPreconditionFailed, "no snapshot available").WithSubkind("no_snapshot")
	assert.Equal(t, "precondition_failed:no_snapshot", err.Code())
	assert.Equal(t, "precondition_failed:no_snapshot: no snapshot available", err.Error())
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindStorageUnavailable, cause, "cannot reach storage")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
}

func TestWithStatus_Overrides(t *testing.T) {
	err := New(KindACLDenied, "denied").WithStatus(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, err.Status)
}

func TestToEnvelope_RendersWireShape(t *testing.T) {
	err := New(KindValidationFailed, "bad request").
		WithRequestID("req-1").
		WithDetails(map[string]interface{}{"field": "anchor_id"})

	env := err.ToEnvelope()
	assert.Equal(t, "validation_failed", env.Error.Code)
	assert.Equal(t, "bad request", env.Error.Message)
	assert.Equal(t, "req-1", env.Error.RequestID)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "anchor_id", env.Error.Details["field"])
}
