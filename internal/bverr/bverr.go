// Package bverr centralises the BatVault error taxonomy (spec §7) the way
// the teacher centralises shared constants in internal/core.
package bverr

import (
	"fmt"
	"net/http"
)

// Kind is a machine-readable error code from the fixed taxonomy of §7.
type Kind string

const (
	KindValidationFailed    Kind = "validation_failed"
	KindPolicyError         Kind = "policy_error"
	KindACLDenied           Kind = "acl_denied"
	KindDomainMismatch      Kind = "domain_mismatch"
	KindPreconditionFailed  Kind = "precondition_failed"
	KindNotFound            Kind = "not_found"
	KindUpstreamTimeout     Kind = "upstream_timeout"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindSignatureMissing    Kind = "bundle_signature_missing"
	KindSignatureInvalid    Kind = "bundle_signature_invalid"
	KindManifestMismatch    Kind = "manifest_mismatch"
	KindInternal            Kind = "internal"
)

// defaultStatus maps each Kind to its default HTTP status; ACL denials and
// precondition failures may be overridden per-request (X-Denied-Status, or
// the concrete precondition subkind).
var defaultStatus = map[Kind]int{
	KindValidationFailed:   http.StatusBadRequest,
	KindPolicyError:        http.StatusBadRequest,
	KindACLDenied:          http.StatusForbidden,
	KindDomainMismatch:     http.StatusForbidden,
	KindPreconditionFailed: http.StatusPreconditionFailed,
	KindNotFound:           http.StatusNotFound,
	KindUpstreamTimeout:    http.StatusGatewayTimeout,
	KindStorageUnavailable: http.StatusServiceUnavailable,
	KindSignatureMissing:   http.StatusUnprocessableEntity,
	KindSignatureInvalid:   http.StatusUnprocessableEntity,
	KindManifestMismatch:   http.StatusUnprocessableEntity,
	KindInternal:           http.StatusInternalServerError,
}

// Error is the typed error carried through request handling; it is rendered
// as {error:{code,message,request_id,details?}, request_id} at the HTTP edge.
type Error struct {
	Kind      Kind
	Subkind   string
	Message   string
	RequestID string
	Status    int
	Details   map[string]interface{}
	cause     error
}

func (e *Error) Error() string {
	if e.Subkind != "" {
		return fmt.Sprintf("%s:%s: %s", e.Kind, e.Subkind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the wire error code, "kind" or "kind:subkind" when a subkind
// is set (e.g. "precondition_failed:no_snapshot", "acl_denied:role_missing").
func (e *Error) Code() string {
	if e.Subkind != "" {
		return string(e.Kind) + ":" + e.Subkind
	}
	return string(e.Kind)
}

// New builds an Error with the Kind's default status.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Status: defaultStatus[kind]}
}

// Wrap builds an Error around cause, preserving it for errors.Is/As chains.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	e := New(kind, format, args...)
	e.cause = cause
	return e
}

// WithSubkind attaches a subkind (role_missing, namespace_mismatch, ...).
func (e *Error) WithSubkind(sk string) *Error {
	e.Subkind = sk
	return e
}

// WithStatus overrides the default HTTP status (e.g. X-Denied-Status).
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithRequestID attaches the request id for the error envelope.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithDetails attaches structured details to the error envelope.
func (e *Error) WithDetails(d map[string]interface{}) *Error {
	e.Details = d
	return e
}

// Envelope is the wire shape of §7's error body.
type Envelope struct {
	Error     EnvelopeBody `json:"error"`
	RequestID string       `json:"request_id"`
}

// EnvelopeBody is the nested "error" object of Envelope.
type EnvelopeBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToEnvelope renders e as the wire error envelope.
func (e *Error) ToEnvelope() Envelope {
	return Envelope{
		Error: EnvelopeBody{
			Code:      e.Code(),
			Message:   e.Message,
			RequestID: e.RequestID,
			Details:   e.Details,
		},
		RequestID: e.RequestID,
	}
}
