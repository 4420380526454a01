package feed

import "google.golang.org/protobuf/encoding/protowire"

const (
	fieldListEntry          protowire.Number = 1
	fieldEntryUserID        protowire.Number = 1
	fieldEntrySignature     protowire.Number = 2
	fieldEntryTimestampMsUTC protowire.Number = 3
)

// Encode serializes an ItemList to the same length-prefixed wire format
// internal/item uses for Items, so clients decode both response shapes with
// one primitive set.
func (l ItemList) Encode() []byte {
	var out []byte
	for _, ref := range l.Items {
		out = protowire.AppendTag(out, fieldListEntry, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeRef(ref))
	}
	return out
}

func encodeRef(r Ref) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldEntryUserID, protowire.BytesType)
	out = protowire.AppendBytes(out, r.UserID.Bytes())
	out = protowire.AppendTag(out, fieldEntrySignature, protowire.BytesType)
	out = protowire.AppendBytes(out, r.Signature.Bytes())
	out = protowire.AppendTag(out, fieldEntryTimestampMsUTC, protowire.VarintType)
	out = protowire.AppendVarint(out, protowire.EncodeZigZag(r.TimestampMsUTC))
	return out
}
