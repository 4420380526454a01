package item

import "errors"

// Sentinel decode/validation errors. The HTTP boundary maps all of these to
// 400 Bad Request; they are distinguished here only so tests and logs can
// tell them apart.
var (
	ErrMalformed                     = errors.New("item: malformed wire record")
	ErrMissingRequiredField          = errors.New("item: missing required field")
	ErrUnknownKindEmpty              = errors.New("item: no kind variant populated")
	ErrMultipleKindsSet              = errors.New("item: more than one kind variant populated")
	ErrTimestampOutOfRange           = errors.New("item: timestamp outside permitted future skew")
	ErrAttachmentNameInvalid         = errors.New("item: attachment name invalid")
	ErrDuplicateAttachmentName       = errors.New("item: duplicate attachment name")
	ErrAttachmentHashAlgorithmUnsupported = errors.New("item: attachment hash algorithm unsupported")
	ErrOversizedItem                 = errors.New("item: item exceeds configured maximum size")
)
