package item

import (
	"github.com/diskuto/diskuto-api/internal/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers, assigned once and never reused — an implementer extending
// this codec adds new numbers rather than recycling old ones, the same
// forward-compatibility discipline protobuf schemas follow.
const (
	fieldItemTimestamp = protowire.Number(1)
	fieldItemUTCOffset = protowire.Number(2)
	fieldItemPost      = protowire.Number(3)
	fieldItemComment   = protowire.Number(4)
	fieldItemProfile   = protowire.Number(5)

	fieldPostTitle       = protowire.Number(1)
	fieldPostBody        = protowire.Number(2)
	fieldPostAttachment  = protowire.Number(3)

	fieldAttachmentName = protowire.Number(1)
	fieldAttachmentSize = protowire.Number(2)
	fieldAttachmentHash = protowire.Number(3)

	fieldCommentReplyTo = protowire.Number(1)
	fieldCommentBody    = protowire.Number(2)

	fieldReplyToUserID    = protowire.Number(1)
	fieldReplyToSignature = protowire.Number(2)

	fieldProfileDisplayName = protowire.Number(1)
	fieldProfileAbout       = protowire.Number(2)
	fieldProfileFollows     = protowire.Number(3)
	fieldProfileServers     = protowire.Number(4)

	fieldFollowUserID      = protowire.Number(1)
	fieldFollowDisplayName = protowire.Number(2)
)

// decode walks the top-level message, dispatching known fields and skipping
// anything it doesn't recognize (protowire.ConsumeFieldValue), which is what
// makes the codec forward-compatible: bytes we don't understand are simply
// never touched, and Raw retains them verbatim.
func decode(raw []byte) (*Item, error) {
	it := &Item{Raw: raw}

	var sawKnownKind bool
	var unknownKindField int32

	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]

		switch {
		case num == fieldItemTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			it.TimestampMsUTC = protowire.DecodeZigZag(v)
			b = b[n:]

		case num == fieldItemUTCOffset && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			it.UTCOffsetMinutes = int32(protowire.DecodeZigZag(v))
			b = b[n:]

		case num == fieldItemPost && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
			if sawKnownKind || unknownKindField != 0 {
				return nil, ErrMultipleKindsSet
			}
			post, err := decodePost(msg)
			if err != nil {
				return nil, err
			}
			it.Kind = KindPost
			it.Post = post
			sawKnownKind = true

		case num == fieldItemComment && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
			if sawKnownKind || unknownKindField != 0 {
				return nil, ErrMultipleKindsSet
			}
			c, err := decodeComment(msg)
			if err != nil {
				return nil, err
			}
			it.Kind = KindComment
			it.Comment = c
			sawKnownKind = true

		case num == fieldItemProfile && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
			if sawKnownKind || unknownKindField != 0 {
				return nil, ErrMultipleKindsSet
			}
			p, err := decodeProfile(msg)
			if err != nil {
				return nil, err
			}
			it.Kind = KindProfile
			it.Profile = p
			sawKnownKind = true

		default:
			// Unrecognized field, including an unrecognized kind variant
			// (field number >= 3 that isn't 3/4/5). Treat any bytes-typed
			// field >= 3 as a candidate "unknown kind" for the
			// exactly-one-kind invariant; anything else is just skipped.
			n2 := protowire.ConsumeFieldValue(num, typ, b)
			if n2 < 0 {
				return nil, ErrMalformed
			}
			if typ == protowire.BytesType && int32(num) >= 3 {
				if sawKnownKind || unknownKindField != 0 {
					return nil, ErrMultipleKindsSet
				}
				unknownKindField = int32(num)
			}
			b = b[n2:]
		}
	}

	if !sawKnownKind {
		if unknownKindField != 0 {
			it.Kind = KindUnknown
			it.UnknownKindField = unknownKindField
			return it, nil
		}
		return nil, ErrUnknownKindEmpty
	}
	return it, nil
}

func decodePost(b []byte) (*Post, error) {
	p := &Post{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]
		switch {
		case num == fieldPostTitle && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			p.Title = string(v)
			b = b[n:]
		case num == fieldPostBody && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			p.Body = string(v)
			b = b[n:]
		case num == fieldPostAttachment && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
			a, err := decodeAttachment(v)
			if err != nil {
				return nil, err
			}
			p.Attachments = append(p.Attachments, *a)
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, b)
			if n2 < 0 {
				return nil, ErrMalformed
			}
			b = b[n2:]
		}
	}
	return p, nil
}

func decodeAttachment(b []byte) (*Attachment, error) {
	a := &Attachment{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]
		switch {
		case num == fieldAttachmentName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			a.Name = string(v)
			b = b[n:]
		case num == fieldAttachmentSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			a.SizeBytes = int64(v)
			b = b[n:]
		case num == fieldAttachmentHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			a.Hash = crypto.Multihash(append([]byte(nil), v...))
			b = b[n:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, b)
			if n2 < 0 {
				return nil, ErrMalformed
			}
			b = b[n2:]
		}
	}
	if a.Name == "" {
		return nil, ErrMissingRequiredField
	}
	return a, nil
}

func decodeComment(b []byte) (*Comment, error) {
	c := &Comment{}
	var sawReplyTo bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]
		switch {
		case num == fieldCommentReplyTo && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
			rt, err := decodeReplyTo(v)
			if err != nil {
				return nil, err
			}
			c.ReplyTo = *rt
			sawReplyTo = true
		case num == fieldCommentBody && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			c.Body = string(v)
			b = b[n:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, b)
			if n2 < 0 {
				return nil, ErrMalformed
			}
			b = b[n2:]
		}
	}
	if !sawReplyTo {
		return nil, ErrMissingRequiredField
	}
	return c, nil
}

func decodeReplyTo(b []byte) (*ReplyTo, error) {
	rt := &ReplyTo{}
	var sawUser, sawSig bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]
		switch {
		case num == fieldReplyToUserID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			if len(v) != crypto.UserIDSize {
				return nil, ErrMalformed
			}
			copy(rt.UserID[:], v)
			sawUser = true
			b = b[n:]
		case num == fieldReplyToSignature && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			if len(v) != crypto.SignatureSize {
				return nil, ErrMalformed
			}
			copy(rt.Signature[:], v)
			sawSig = true
			b = b[n:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, b)
			if n2 < 0 {
				return nil, ErrMalformed
			}
			b = b[n2:]
		}
	}
	if !sawUser || !sawSig {
		return nil, ErrMissingRequiredField
	}
	return rt, nil
}

func decodeProfile(b []byte) (*Profile, error) {
	p := &Profile{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]
		switch {
		case num == fieldProfileDisplayName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			p.DisplayName = string(v)
			b = b[n:]
		case num == fieldProfileAbout && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			p.About = string(v)
			b = b[n:]
		case num == fieldProfileFollows && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
			f, err := decodeFollowEntry(v)
			if err != nil {
				return nil, err
			}
			p.Follows = append(p.Follows, *f)
		case num == fieldProfileServers && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			p.Servers = append(p.Servers, string(v))
			b = b[n:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, b)
			if n2 < 0 {
				return nil, ErrMalformed
			}
			b = b[n2:]
		}
	}
	return p, nil
}

func decodeFollowEntry(b []byte) (*FollowEntry, error) {
	f := &FollowEntry{}
	var sawUser bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]
		switch {
		case num == fieldFollowUserID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			if len(v) != crypto.UserIDSize {
				return nil, ErrMalformed
			}
			copy(f.UserID[:], v)
			sawUser = true
			b = b[n:]
		case num == fieldFollowDisplayName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			f.DisplayName = string(v)
			b = b[n:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, b)
			if n2 < 0 {
				return nil, ErrMalformed
			}
			b = b[n2:]
		}
	}
	if !sawUser {
		return nil, ErrMissingRequiredField
	}
	return f, nil
}
