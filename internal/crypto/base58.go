package crypto

import "github.com/mr-tron/base58"

// encodeBase58 applies the Bitcoin-alphabet base58 encoding shared by all
// wire identifiers (UserID, Signature, Multihash).
func encodeBase58(b []byte) string { return base58.Encode(b) }
