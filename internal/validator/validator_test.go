package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batvault/batvault/internal/evidence"
	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/pkg/bundle"
)

func sampleEvidence() *evidence.WhyDecisionEvidence {
	return &evidence.WhyDecisionEvidence{
		Anchor: policy.Node{"id": "eng#d-anchor", "maker": "Jane", "timestamp": "2021-05-01T00:00:00Z", "title": "Adopt gRPC"},
		Events: []policy.Node{
			{"id": "eng#e-1", "title": "Latency regressed"},
		},
		Transitions: evidence.Transitions{
			Succeeding: []policy.Node{{"id": "eng#d-next", "title": "Deprecate REST"}},
		},
		AllowedIDs: []string{"eng#d-anchor", "eng#d-next", "eng#e-1"},
	}
}

func TestValidate_AllChecksPassWithNoManifestOrReceipt(t *testing.T) {
	in := Input{
		Evidence: sampleEvidence(),
		PolicyFP: "sha256:abc",
		CitedIDs: []string{"eng#d-anchor", "eng#e-1"},
	}
	report := Validate(in)
	assert.True(t, report.Pass)
	assert.Empty(t, report.Errors)
}

func TestValidate_NilEvidenceFailsFast(t *testing.T) {
	report := Validate(Input{})
	require.False(t, report.Pass)
	assert.Contains(t, report.Errors, ErrSchemaError)
	assert.Len(t, report.Checks, 1)
}

func TestValidate_CitedIDsNotSubsetFails(t *testing.T) {
	in := Input{
		Evidence: sampleEvidence(),
		PolicyFP: "sha256:abc",
		CitedIDs: []string{"eng#d-anchor", "not-allowed"},
	}
	report := Validate(in)
	assert.False(t, report.Pass)
	assert.Contains(t, report.Errors, ErrSupportingIDsNotSubset)
}

func TestValidate_CitedIDsMissingAnchorFails(t *testing.T) {
	in := Input{
		Evidence: sampleEvidence(),
		PolicyFP: "sha256:abc",
		CitedIDs: []string{"eng#e-1"},
	}
	report := Validate(in)
	assert.False(t, report.Pass)
	assert.Contains(t, report.Errors, ErrSupportingIDsNotSubset)
}

func TestValidate_ReceiptPresentWithoutKeyFailsClosed(t *testing.T) {
	in := Input{
		Evidence: sampleEvidence(),
		PolicyFP: "sha256:abc",
		CitedIDs: []string{"eng#d-anchor"},
		Receipt:  []byte("not-empty"),
	}
	report := Validate(in)
	assert.False(t, report.Pass)
	assert.Contains(t, report.Errors, "bundle_signature_invalid")
}

func TestValidate_ReceiptRoundTripsWithRealKey(t *testing.T) {
	pub, priv, err := generateTestKey()
	require.NoError(t, err)

	ev := sampleEvidence()
	sig, err := SignReceipt(ev, priv)
	require.NoError(t, err)

	in := Input{
		Evidence:      ev,
		PolicyFP:      "sha256:abc",
		CitedIDs:      []string{"eng#d-anchor"},
		Receipt:       sig,
		ReceiptPubKey: pub,
	}
	report := Validate(in)
	assert.True(t, report.Pass)
}

func TestValidate_TamperedBundleFailsReceiptCheck(t *testing.T) {
	pub, priv, err := generateTestKey()
	require.NoError(t, err)

	ev := sampleEvidence()
	sig, err := SignReceipt(ev, priv)
	require.NoError(t, err)

	tampered := sampleEvidence()
	tampered.Anchor["title"] = "Tampered"

	in := Input{
		Evidence:      tampered,
		PolicyFP:      "sha256:abc",
		CitedIDs:      []string{"eng#d-anchor"},
		Receipt:       sig,
		ReceiptPubKey: pub,
	}
	report := Validate(in)
	assert.False(t, report.Pass)
}

func TestValidate_ManifestRejectsExtraFile(t *testing.T) {
	b := bundle.NewBuilder("req-1")
	b.Add("a.json", []byte(`{}`))
	manifest := b.Manifest()

	in := Input{
		Evidence:      sampleEvidence(),
		PolicyFP:      "sha256:abc",
		CitedIDs:      []string{"eng#d-anchor"},
		Manifest:      &manifest,
		ManifestFiles: map[string][]byte{"a.json": []byte(`{}`), "b.json": []byte(`{}`)},
	}
	report := Validate(in)
	assert.False(t, report.Pass)
	assert.Contains(t, report.Errors, "manifest_mismatch")
}

func TestValidate_ManifestRejectsContentMismatch(t *testing.T) {
	b := bundle.NewBuilder("req-1")
	b.Add("a.json", []byte(`{}`))
	manifest := b.Manifest()

	in := Input{
		Evidence:      sampleEvidence(),
		PolicyFP:      "sha256:abc",
		CitedIDs:      []string{"eng#d-anchor"},
		Manifest:      &manifest,
		ManifestFiles: map[string][]byte{"a.json": []byte(`{"changed":true}`)},
	}
	report := Validate(in)
	assert.False(t, report.Pass)
	assert.Contains(t, report.Errors, "manifest_mismatch")
}

func TestValidate_ManifestMatchesPasses(t *testing.T) {
	b := bundle.NewBuilder("req-1")
	b.Add("a.json", []byte(`{}`))
	manifest := b.Manifest()

	in := Input{
		Evidence:      sampleEvidence(),
		PolicyFP:      "sha256:abc",
		CitedIDs:      []string{"eng#d-anchor"},
		Manifest:      &manifest,
		ManifestFiles: map[string][]byte{"a.json": []byte(`{}`)},
	}
	report := Validate(in)
	assert.True(t, report.Pass)
}
