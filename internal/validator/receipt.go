package validator

import (
	"crypto/ed25519"

	"github.com/batvault/batvault/internal/canon"
	"github.com/batvault/batvault/internal/evidence"
)

// SignReceipt signs ev's canonical bundle bytes with priv, producing the
// optional receipt signature of §4.12. Grounded on the teacher's
// Ed25519Provider.Sign: canonicalise then sign raw bytes, no pre-hashing
// (Ed25519 hashes internally).
func SignReceipt(ev *evidence.WhyDecisionEvidence, priv ed25519.PrivateKey) ([]byte, error) {
	basis, err := canon.Bytes(ev)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, basis), nil
}

// VerifyReceipt reports whether sig is a valid Ed25519 signature over ev's
// canonical bundle bytes under pub. A signature present with a missing or
// empty key is the caller's responsibility to treat as fail-closed (§4.12);
// VerifyReceipt itself just checks cryptographic validity.
func VerifyReceipt(ev *evidence.WhyDecisionEvidence, sig []byte, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	basis, err := canon.Bytes(ev)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, basis, sig)
}
