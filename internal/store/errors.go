package store

import "errors"

// ErrAttachmentNotDeclared is returned when an upload targets an
// attachment name the item's Post never declared, mapped to
// ingest.CodeMalformed (400) since a client that sends this has
// already misread the item it's attaching to.
var ErrAttachmentNotDeclared = errors.New("store: attachment not declared")

// ErrAttachmentSizeMismatch is returned when an uploaded body's length
// does not match the size the Post declared for that attachment.
var ErrAttachmentSizeMismatch = errors.New("store: attachment size mismatch")

// ErrAttachmentHashMismatch is returned when an uploaded body's content
// hash does not match the hash the Post declared for that attachment.
var ErrAttachmentHashMismatch = errors.New("store: attachment hash mismatch")
