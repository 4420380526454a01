// Package ingest drives the two-phase item/file upload state machine: an
// Item's row is authorized and committed before any of its attachment
// bytes arrive, and each attachment is separately validated against the
// item's declared {name, size, hash} before it is folded into the
// content-addressed blob store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/feedcache"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/metrics"
	"github.com/diskuto/diskuto-api/internal/policy"
	"github.com/diskuto/diskuto-api/internal/store"
)

// Outcome distinguishes the non-error results an ingest call can produce,
// so httpapi can map each to its status code (201/202) without re-deriving
// the decision.
type Outcome int

const (
	// Created means this is the first successful insert of the item.
	Created Outcome = iota
	// AlreadyPresent means the item already existed; no state changed.
	AlreadyPresent
)

// Rejection is returned (as an error) when an item is structurally invalid,
// unauthorized, or over a resource limit. Code is one of the sentinel
// RejectionCode values below; httpapi maps it to the matching HTTP status.
type Rejection struct {
	Code RejectionCode
	Err  error
}

func (r *Rejection) Error() string { return r.Err.Error() }
func (r *Rejection) Unwrap() error { return r.Err }

// RejectionCode enumerates the non-2xx outcomes of item ingestion.
type RejectionCode int

const (
	// CodeMalformed covers codec/validation failures and bad signatures;
	// maps to 400.
	CodeMalformed RejectionCode = iota
	// CodeForbidden covers policy.Forbidden decisions; maps to 403.
	CodeForbidden
	// CodeQuotaExceeded covers policy.QuotaExceeded decisions; maps to 507.
	CodeQuotaExceeded
	// CodeTooLarge covers a declared Content-Length over the server's
	// configured item/attachment cap; maps to 413. httpapi checks this
	// against the Content-Length header before reading the body, since by
	// the time an oversized body is fully buffered the resource exhaustion
	// the cap exists to prevent has already happened.
	CodeTooLarge
)

// Service wires together the packages an item PUT must pass through:
// signature verification, parse/validate, authorization, and storage.
type Service struct {
	Store    *store.Store
	Policy   *policy.Policy
	Follows  *feedcache.FollowCache
	Validate item.ValidationConfig
	Now      func() int64
}

// PutItem handles a PUT of raw item bytes under (uid, sig). It verifies
// the signature, decodes and validates the record, checks authorization
// and quota, and inserts the row, all before any attachment bytes are
// expected.
func (s *Service) PutItem(ctx context.Context, uid crypto.UserID, sig crypto.Signature, raw []byte) (Outcome, error) {
	if !crypto.Verify(uid, sig, raw) {
		metrics.IngestRejections.WithLabelValues("bad_signature").Inc()
		return 0, &Rejection{Code: CodeMalformed, Err: fmt.Errorf("signature does not verify")}
	}

	validate := s.Validate
	validate.Now = time.UnixMilli(s.Now())
	it, err := item.ParseAndValidate(raw, validate)
	if err != nil {
		metrics.IngestRejections.WithLabelValues("invalid_item").Inc()
		return 0, &Rejection{Code: CodeMalformed, Err: err}
	}

	already, err := s.Store.HasItem(ctx, uid, sig)
	if err != nil {
		return 0, fmt.Errorf("check existing item: %w", err)
	}
	if already {
		return AlreadyPresent, nil
	}

	newBytes := int64(len(raw))
	if it.Post != nil {
		for _, a := range it.Post.Attachments {
			newBytes += a.SizeBytes
		}
	}

	// Fast preflight: reject an obviously forbidden or over-quota request
	// before paying for a write transaction. This is not the authoritative
	// decision — InsertItemAdmitted re-makes it atomically against the
	// insert itself, since known-user status and quota usage can both
	// change between this read and the write.
	decision, err := s.Policy.MayAccept(ctx, uid, it, newBytes)
	if err != nil {
		return 0, fmt.Errorf("evaluate policy: %w", err)
	}
	switch decision {
	case policy.Forbidden:
		metrics.IngestRejections.WithLabelValues("forbidden").Inc()
		return 0, &Rejection{Code: CodeForbidden, Err: fmt.Errorf("user not admitted")}
	case policy.QuotaExceeded:
		metrics.IngestRejections.WithLabelValues("quota_exceeded").Inc()
		return 0, &Rejection{Code: CodeQuotaExceeded, Err: fmt.Errorf("quota exceeded")}
	}

	isFollowed, err := s.Follows.IsFollowedByKnownUser(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("check transitive admission: %w", err)
	}

	received := s.Now()
	err = s.Store.InsertItemAdmitted(ctx, uid, sig, it, received, newBytes, s.Policy.DefaultQuotaBytes, isFollowed)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			return AlreadyPresent, nil
		case errors.Is(err, store.ErrForbidden):
			metrics.IngestRejections.WithLabelValues("forbidden").Inc()
			return 0, &Rejection{Code: CodeForbidden, Err: fmt.Errorf("user not admitted")}
		case errors.Is(err, store.ErrQuotaExceeded):
			metrics.IngestRejections.WithLabelValues("quota_exceeded").Inc()
			return 0, &Rejection{Code: CodeQuotaExceeded, Err: fmt.Errorf("quota exceeded")}
		default:
			return 0, fmt.Errorf("insert item: %w", err)
		}
	}

	if it.Kind == item.KindProfile {
		s.Follows.Invalidate(uid)
	}

	metrics.ItemsIngested.WithLabelValues(it.Kind.String()).Inc()
	metrics.BytesStored.WithLabelValues("item").Add(float64(newBytes))

	return Created, nil
}

// PutAttachment handles an upload of one attachment's bytes for an
// already-stored item. size is the declared Content-Length; callers must
// have already rejected a missing length header (411) before calling
// this.
func (s *Service) PutAttachment(ctx context.Context, uid crypto.UserID, sig crypto.Signature, name string, size int64, body io.Reader) (Outcome, error) {
	meta, err := s.Store.GetFileMeta(ctx, uid, sig, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, &Rejection{Code: CodeMalformed, Err: fmt.Errorf("attachment %q was not declared by this item", name)}
		}
		return 0, fmt.Errorf("get file meta: %w", err)
	}
	if meta.Completed {
		return AlreadyPresent, nil
	}

	if err := s.Store.UploadAttachment(ctx, uid, sig, name, size, body); err != nil {
		if errors.Is(err, store.ErrAttachmentSizeMismatch) || errors.Is(err, store.ErrAttachmentHashMismatch) {
			metrics.IngestRejections.WithLabelValues("attachment_mismatch").Inc()
			return 0, &Rejection{Code: CodeMalformed, Err: err}
		}
		if errors.Is(err, store.ErrAttachmentNotDeclared) {
			metrics.IngestRejections.WithLabelValues("attachment_not_declared").Inc()
			return 0, &Rejection{Code: CodeMalformed, Err: err}
		}
		return 0, fmt.Errorf("upload attachment: %w", err)
	}
	metrics.BytesStored.WithLabelValues("attachment").Add(float64(size))
	return Created, nil
}
