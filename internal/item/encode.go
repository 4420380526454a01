package item

import (
	"github.com/diskuto/diskuto-api/internal/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

// Builder constructs wire-format Item bytes for tests and for clients that
// want to produce a record before signing it. Production traffic into this
// server always arrives pre-encoded (and pre-signed) from the author's own
// client; the server itself never re-encodes an Item, only decodes and
// stores the bytes it received (see the package doc in item.go).
type Builder struct {
	timestampMsUTC   int64
	utcOffsetMinutes int32
	post             *Post
	comment          *Comment
	profile          *Profile
}

// NewBuilder starts a Builder for the given timestamp/offset.
func NewBuilder(timestampMsUTC int64, utcOffsetMinutes int32) *Builder {
	return &Builder{timestampMsUTC: timestampMsUTC, utcOffsetMinutes: utcOffsetMinutes}
}

// WithPost sets the Post kind variant.
func (b *Builder) WithPost(p Post) *Builder { b.post = &p; return b }

// WithComment sets the Comment kind variant.
func (b *Builder) WithComment(c Comment) *Builder { b.comment = &c; return b }

// WithProfile sets the Profile kind variant.
func (b *Builder) WithProfile(p Profile) *Builder { b.profile = &p; return b }

// Encode serializes the builder to wire-format bytes.
func (b *Builder) Encode() []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldItemTimestamp, protowire.VarintType)
	out = protowire.AppendVarint(out, protowire.EncodeZigZag(b.timestampMsUTC))
	out = protowire.AppendTag(out, fieldItemUTCOffset, protowire.VarintType)
	out = protowire.AppendVarint(out, protowire.EncodeZigZag(int64(b.utcOffsetMinutes)))

	switch {
	case b.post != nil:
		out = protowire.AppendTag(out, fieldItemPost, protowire.BytesType)
		out = protowire.AppendBytes(out, encodePost(*b.post))
	case b.comment != nil:
		out = protowire.AppendTag(out, fieldItemComment, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeComment(*b.comment))
	case b.profile != nil:
		out = protowire.AppendTag(out, fieldItemProfile, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeProfile(*b.profile))
	}
	return out
}

func encodePost(p Post) []byte {
	var out []byte
	if p.Title != "" {
		out = protowire.AppendTag(out, fieldPostTitle, protowire.BytesType)
		out = protowire.AppendBytes(out, []byte(p.Title))
	}
	out = protowire.AppendTag(out, fieldPostBody, protowire.BytesType)
	out = protowire.AppendBytes(out, []byte(p.Body))
	for _, a := range p.Attachments {
		out = protowire.AppendTag(out, fieldPostAttachment, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeAttachment(a))
	}
	return out
}

func encodeAttachment(a Attachment) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldAttachmentName, protowire.BytesType)
	out = protowire.AppendBytes(out, []byte(a.Name))
	out = protowire.AppendTag(out, fieldAttachmentSize, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(a.SizeBytes))
	out = protowire.AppendTag(out, fieldAttachmentHash, protowire.BytesType)
	out = protowire.AppendBytes(out, a.Hash)
	return out
}

func encodeComment(c Comment) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldCommentReplyTo, protowire.BytesType)
	out = protowire.AppendBytes(out, encodeReplyTo(c.ReplyTo))
	out = protowire.AppendTag(out, fieldCommentBody, protowire.BytesType)
	out = protowire.AppendBytes(out, []byte(c.Body))
	return out
}

func encodeReplyTo(rt ReplyTo) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldReplyToUserID, protowire.BytesType)
	out = protowire.AppendBytes(out, rt.UserID.Bytes())
	out = protowire.AppendTag(out, fieldReplyToSignature, protowire.BytesType)
	out = protowire.AppendBytes(out, rt.Signature.Bytes())
	return out
}

func encodeProfile(p Profile) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldProfileDisplayName, protowire.BytesType)
	out = protowire.AppendBytes(out, []byte(p.DisplayName))
	out = protowire.AppendTag(out, fieldProfileAbout, protowire.BytesType)
	out = protowire.AppendBytes(out, []byte(p.About))
	for _, f := range p.Follows {
		out = protowire.AppendTag(out, fieldProfileFollows, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeFollowEntry(f))
	}
	for _, s := range p.Servers {
		out = protowire.AppendTag(out, fieldProfileServers, protowire.BytesType)
		out = protowire.AppendBytes(out, []byte(s))
	}
	return out
}

func encodeFollowEntry(f FollowEntry) []byte {
	var out []byte
	out = protowire.AppendTag(out, fieldFollowUserID, protowire.BytesType)
	out = protowire.AppendBytes(out, f.UserID.Bytes())
	if f.DisplayName != "" {
		out = protowire.AppendTag(out, fieldFollowDisplayName, protowire.BytesType)
		out = protowire.AppendBytes(out, []byte(f.DisplayName))
	}
	return out
}

// attachmentHash is a small convenience used by tests to build a valid
// Attachment from raw bytes.
func attachmentHash(data []byte) crypto.Multihash {
	mh, err := crypto.HashBytes(data)
	if err != nil {
		panic(err)
	}
	return mh
}
