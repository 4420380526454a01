package crypto

import "errors"

// Sentinel errors returned by Parse* and Verify. Callers map these to HTTP
// status codes at the boundary rather than inspecting error strings.
var (
	ErrInvalidEncoding = errors.New("crypto: invalid base58 encoding")
	ErrWrongLength     = errors.New("crypto: wrong decoded length")
	ErrBadSignature    = errors.New("crypto: signature does not verify")
	ErrUnsupportedHash = errors.New("crypto: unsupported multihash algorithm")
)
