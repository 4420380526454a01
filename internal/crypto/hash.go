package crypto

import (
	"crypto/sha512"
	"io"

	mh "github.com/multiformats/go-multihash"
)

// Multihash is the canonical multihash envelope (algorithm tag + digest)
// used to content-address attachment blobs. Only sha512 is produced by this
// server, and ParseMultihash rejects any other algorithm with
// ErrUnsupportedHash.
type Multihash []byte

// HashStream consumes r fully and returns its sha512 multihash envelope.
func HashStream(r io.Reader) (Multihash, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	sum := h.Sum(nil)
	enc, err := mh.Encode(sum, mh.SHA2_512)
	if err != nil {
		return nil, err
	}
	return Multihash(enc), nil
}

// HashBytes is HashStream over an in-memory buffer.
func HashBytes(b []byte) (Multihash, error) {
	sum := sha512.Sum512(b)
	enc, err := mh.Encode(sum[:], mh.SHA2_512)
	if err != nil {
		return nil, err
	}
	return Multihash(enc), nil
}

// ParseMultihash validates that b is a well-formed multihash envelope using
// the sha512 algorithm, the only one this server accepts on ingestion.
func ParseMultihash(b []byte) (Multihash, error) {
	decoded, err := mh.Decode(b)
	if err != nil {
		return nil, err
	}
	if decoded.Code != mh.SHA2_512 {
		return nil, ErrUnsupportedHash
	}
	return Multihash(b), nil
}

// Equal reports byte equality between two multihash envelopes.
func (m Multihash) Equal(other Multihash) bool {
	return constantTimeEqual(m, other)
}

// Hex returns the lowercase hex encoding of the envelope, used to derive the
// blob store's on-disk path.
func (m Multihash) Hex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(m)*2)
	for i, b := range m {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// String renders the multihash as base58 text, the form used in B2-style
// attachment URLs elsewhere in the network.
func (m Multihash) String() string {
	return encodeBase58(m)
}
