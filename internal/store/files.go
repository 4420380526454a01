package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/diskuto/diskuto-api/internal/crypto"
)

// FileMeta is the declared metadata for one attachment, read back out of
// the files table so the upload handler can validate an incoming body
// against it before committing to the blob store.
type FileMeta struct {
	SizeBytes int64
	Hash      crypto.Multihash
	Completed bool
}

// GetFileMeta returns the declared metadata for (uid, sig, name).
func (s *Store) GetFileMeta(ctx context.Context, uid crypto.UserID, sig crypto.Signature, name string) (FileMeta, error) {
	return doPool(ctx, s.readPool, func() (FileMeta, error) {
		var fm FileMeta
		var hash []byte
		err := s.reader.QueryRow(
			`SELECT size_bytes, hash, completed FROM files WHERE user_id = ? AND signature = ? AND name = ?`,
			uid.Bytes(), sig.Bytes(), name,
		).Scan(&fm.SizeBytes, &hash, &fm.Completed)
		if err == sql.ErrNoRows {
			return fm, ErrNotFound
		}
		if err != nil {
			return fm, fmt.Errorf("get file meta: %w", err)
		}
		fm.Hash = crypto.Multihash(hash)
		return fm, nil
	})
}

// UploadAttachment streams body into blob storage, validates it against the
// declared size and hash, commits it into the content-addressed store, and
// marks the files row complete. It runs entirely on a store worker so a
// client disconnect mid-upload (ctx cancelled) lets the write finish and be
// discarded rather than leaving a torn blob on disk.
func (s *Store) UploadAttachment(ctx context.Context, uid crypto.UserID, sig crypto.Signature, name string, size int64, body io.Reader) error {
	_, err := doPool(ctx, s.writePool, func() (struct{}, error) {
		return struct{}{}, s.uploadAttachment(uid, sig, name, size, body)
	})
	return err
}

func (s *Store) uploadAttachment(uid crypto.UserID, sig crypto.Signature, name string, size int64, body io.Reader) error {
	var declaredSize int64
	var declaredHash []byte
	var completed bool
	err := s.writer.QueryRow(
		`SELECT size_bytes, hash, completed FROM files WHERE user_id = ? AND signature = ? AND name = ?`,
		uid.Bytes(), sig.Bytes(), name,
	).Scan(&declaredSize, &declaredHash, &completed)
	if err == sql.ErrNoRows {
		return ErrAttachmentNotDeclared
	}
	if err != nil {
		return fmt.Errorf("lookup declared attachment: %w", err)
	}
	if completed {
		return nil // idempotent re-upload of an already-completed attachment
	}
	if size != declaredSize {
		return ErrAttachmentSizeMismatch
	}

	staged, err := s.blobs.NewStagingFile()
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	stagedPath := staged.Name()

	hasher, err := crypto.HashStream(io.TeeReader(io.LimitReader(body, size+1), staged))
	if err != nil {
		staged.Close()
		discardStaged(stagedPath)
		return fmt.Errorf("hash upload: %w", err)
	}
	if err := staged.Sync(); err != nil {
		staged.Close()
		discardStaged(stagedPath)
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := staged.Close(); err != nil {
		discardStaged(stagedPath)
		return fmt.Errorf("close staging file: %w", err)
	}
	if !hasher.Equal(crypto.Multihash(declaredHash)) {
		discardStaged(stagedPath)
		return ErrAttachmentHashMismatch
	}

	if err := s.blobs.Commit(stagedPath, crypto.Multihash(declaredHash)); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}

	_, err = s.writer.Exec(
		`UPDATE files SET completed = 1, blob_location = ? WHERE user_id = ? AND signature = ? AND name = ?`,
		crypto.Multihash(declaredHash).Hex(), uid.Bytes(), sig.Bytes(), name,
	)
	if err != nil {
		return fmt.Errorf("mark attachment complete: %w", err)
	}
	return nil
}

// OpenAttachment returns a reader for a completed attachment's blob.
func (s *Store) OpenAttachment(ctx context.Context, uid crypto.UserID, sig crypto.Signature, name string) (io.ReadCloser, int64, error) {
	fm, err := s.GetFileMeta(ctx, uid, sig, name)
	if err != nil {
		return nil, 0, err
	}
	if !fm.Completed {
		return nil, 0, ErrNotFound
	}
	f, err := s.blobs.Open(fm.Hash)
	if err != nil {
		return nil, 0, fmt.Errorf("open attachment blob: %w", err)
	}
	return f, fm.SizeBytes, nil
}
