// Package crypto implements the wire-identifier and signing primitives that
// every other Diskuto package builds on: parsing/encoding of UserID and
// Signature values, Ed25519 signature verification, and the multihash
// envelope used to content-address attachment blobs.
//
// Encoding must be byte-exact across implementations: a UserID printed by
// one server must parse back to the same 32 bytes on any other, so URLs
// built on one server resolve on another.
package crypto

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// UserIDSize is the length in bytes of an Ed25519 public key.
const UserIDSize = 32

// SignatureSize is the length in bytes of an Ed25519 signature.
const SignatureSize = 64

// UserID is a 32-byte Ed25519 public key, the globally unique identity of an
// author on the network.
type UserID [UserIDSize]byte

// Signature is a 64-byte Ed25519 signature. Within a user's namespace it also
// serves as the content-address of the signed Item.
type Signature [SignatureSize]byte

// ParseUserID decodes the canonical base58 text form of a UserID.
func ParseUserID(text string) (UserID, error) {
	var id UserID
	raw, err := base58.Decode(text)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(raw) != UserIDSize {
		return id, fmt.Errorf("%w: got %d bytes, want %d", ErrWrongLength, len(raw), UserIDSize)
	}
	copy(id[:], raw)
	return id, nil
}

// String renders the UserID in canonical base58 text form.
func (u UserID) String() string {
	return base58.Encode(u[:])
}

// Bytes returns the raw 32 public-key bytes.
func (u UserID) Bytes() []byte { return u[:] }

// Less reports whether u sorts strictly before other in byte order. Used by
// deterministic tie-breakers.
func (u UserID) Less(other UserID) bool {
	for i := range u {
		if u[i] != other[i] {
			return u[i] < other[i]
		}
	}
	return false
}

// ParseSignature decodes the canonical base58 text form of a Signature.
func ParseSignature(text string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(text)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(raw) != SignatureSize {
		return sig, fmt.Errorf("%w: got %d bytes, want %d", ErrWrongLength, len(raw), SignatureSize)
	}
	copy(sig[:], raw)
	return sig, nil
}

// String renders the Signature in canonical base58 text form.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// Bytes returns the raw 64 signature bytes.
func (s Signature) Bytes() []byte { return s[:] }

// Less reports whether s sorts strictly before other in byte order. Feed
// pagination uses this as the deterministic tie-breaker within equal
// timestamps.
func (s Signature) Less(other Signature) bool {
	for i := range s {
		if s[i] != other[i] {
			return s[i] < other[i]
		}
	}
	return false
}
