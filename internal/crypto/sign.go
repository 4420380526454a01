package crypto

import (
	"crypto/ed25519"
	"crypto/subtle"
)

// Verify reports whether sig is a valid Ed25519 signature over msg under the
// key claimed by userID. It is deterministic and compares in constant time
// (ed25519.Verify already does; subtle.ConstantTimeCompare backs the small
// amount of additional bookkeeping this package adds around it).
func Verify(userID UserID, sig Signature, msg []byte) bool {
	pub := ed25519.PublicKey(userID[:])
	return ed25519.Verify(pub, msg, sig[:])
}

// VerifyOrErr is Verify with an error return for call sites that want to
// propagate ErrBadSignature directly.
func VerifyOrErr(userID UserID, sig Signature, msg []byte) error {
	if !Verify(userID, sig, msg) {
		return ErrBadSignature
	}
	return nil
}

// constantTimeEqual compares two equal-length byte slices without leaking
// timing information, for any call site comparing raw signature/key bytes
// outside of ed25519.Verify itself (e.g. idempotent-upload comparisons).
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
