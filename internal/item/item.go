// Package item implements the content model: the Item binary record, its
// kind variants (Post, Comment, Profile), and the structural invariants
// checked at ingestion.
//
// The wire format is a hand-rolled protobuf-compatible encoding built on
// google.golang.org/protobuf/encoding/protowire rather than generated
// .proto code: field numbers are assigned below and decoded with the same
// tag/varint/length-delimited primitives protobuf uses, which gives
// forward-compatible unknown-field behavior for free — an unrecognized
// field is simply skipped during decode, and the original bytes the item
// arrived in (not a re-encoding of the decoded struct) are what every
// downstream component stores and serves back.
package item

import (
	"time"

	"github.com/diskuto/diskuto-api/internal/crypto"
)

// Kind identifies which variant of Item.Post/Comment/Profile is populated.
type Kind int

const (
	// KindUnknown marks an item whose kind field number this codec version
	// does not recognize. Such items are stored and served byte-exact but
	// excluded from feed/homepage projections, per the Open Question
	// decision in SPEC_FULL.md.
	KindUnknown Kind = iota
	KindPost
	KindComment
	KindProfile
)

func (k Kind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindComment:
		return "comment"
	case KindProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Attachment is a named binary blob referenced by a Post, with its declared
// length and content hash.
type Attachment struct {
	Name      string
	SizeBytes int64
	Hash      crypto.Multihash
}

// ReplyTo identifies the (author, item) pair a Comment responds to.
type ReplyTo struct {
	UserID    crypto.UserID
	Signature crypto.Signature
}

// FollowEntry is one entry of a Profile's follows list.
type FollowEntry struct {
	UserID      crypto.UserID
	DisplayName string
}

// Post is the Post kind variant: optional title, CommonMark body, and zero
// or more attachments.
type Post struct {
	Title       string
	Body        string
	Attachments []Attachment
}

// Comment is the Comment kind variant.
type Comment struct {
	ReplyTo ReplyTo
	Body    string
}

// Profile is the Profile kind variant.
type Profile struct {
	DisplayName string
	About       string
	Follows     []FollowEntry
	Servers     []string
}

// Item is a fully decoded, structurally-valid signed record. Raw always
// holds the exact bytes the item was decoded from; every component that
// persists or serves an Item uses Raw, never a re-encoding of the struct
// fields, so that the author's signature remains valid.
type Item struct {
	TimestampMsUTC   int64
	UTCOffsetMinutes int32
	Kind             Kind

	Post    *Post
	Comment *Comment
	Profile *Profile

	// UnknownKindField is the protobuf field number of the kind variant
	// when Kind == KindUnknown. Zero when Kind is a recognized variant.
	UnknownKindField int32

	Raw []byte
}

// ValidationConfig carries the operator-configured limits ParseAndValidate
// checks against. It is supplied by internal/serverconfig.
type ValidationConfig struct {
	Now                time.Time
	FutureSkew         time.Duration
	ItemMaxBytes       int64
	AttachmentMaxBytes int64
}

const maxAttachmentNameLength = 255

// ParseAndValidate decodes raw and checks every invariant that can be
// verified independent of authorization/quota/storage state: structural
// well-formedness, exactly-one-kind, timestamp skew, attachment name/size
// rules, and the item-max byte budget. It does not verify the signature or
// consult any authorization policy — callers do that separately before
// treating the result as admissible.
func ParseAndValidate(raw []byte, cfg ValidationConfig) (*Item, error) {
	it, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(it, raw, cfg); err != nil {
		return nil, err
	}
	return it, nil
}

func validate(it *Item, raw []byte, cfg ValidationConfig) error {
	if cfg.ItemMaxBytes > 0 {
		total := int64(len(raw))
		if it.Post != nil {
			for _, a := range it.Post.Attachments {
				total += a.SizeBytes
			}
		}
		if total > cfg.ItemMaxBytes {
			return ErrOversizedItem
		}
	}

	if cfg.FutureSkew > 0 {
		now := cfg.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		maxAllowed := now.Add(cfg.FutureSkew).UnixMilli()
		if it.TimestampMsUTC > maxAllowed {
			return ErrTimestampOutOfRange
		}
	}

	if it.Post != nil {
		seen := make(map[string]struct{}, len(it.Post.Attachments))
		for _, a := range it.Post.Attachments {
			if a.Name == "" || len(a.Name) > maxAttachmentNameLength || containsPathSeparator(a.Name) {
				return ErrAttachmentNameInvalid
			}
			if _, dup := seen[a.Name]; dup {
				return ErrDuplicateAttachmentName
			}
			seen[a.Name] = struct{}{}
			if a.SizeBytes < 0 {
				return ErrAttachmentNameInvalid
			}
			if cfg.AttachmentMaxBytes > 0 && a.SizeBytes > cfg.AttachmentMaxBytes {
				return ErrOversizedItem
			}
			if _, err := crypto.ParseMultihash(a.Hash); err != nil {
				return ErrAttachmentHashAlgorithmUnsupported
			}
		}
	}

	return nil
}

func containsPathSeparator(name string) bool {
	for _, r := range name {
		if r == '/' || r == '\\' || r == 0 {
			return true
		}
	}
	return name == "." || name == ".."
}
