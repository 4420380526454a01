package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/google/uuid"
)

// BlobStore is a content-addressable file store keyed by the sha512
// multihash of the blob's contents, written via a tmp-then-rename sequence
// so a reader never observes a partially-written file. The sharded
// files/<first-digest-byte-hex>/<rest-of-digest-hex> layout avoids the
// single-directory file-count limits a flat layout would hit at scale.
//
// Two-phase ingestion means the hash is declared before the bytes arrive,
// so BlobStore also exposes the tmp staging path that UploadAttachment
// writes an in-flight upload to before it has validated the final hash.
type BlobStore struct {
	root string
}

// NewBlobStore roots a BlobStore at dir, creating it and its tmp
// subdirectory if they don't already exist.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob store dirs: %w", err)
	}
	return &BlobStore{root: dir}, nil
}

func (b *BlobStore) pathFor(h crypto.Multihash) string {
	hex := h.Hex()
	// A sha512 envelope opens with the same two bytes (algorithm code and
	// digest length) for every blob, so the shard is taken from the digest.
	if len(hex) > 4 {
		hex = hex[4:]
	}
	if len(hex) < 2 {
		return filepath.Join(b.root, "short", hex)
	}
	return filepath.Join(b.root, hex[:2], hex[2:])
}

// NewStagingFile creates a uniquely-named tmp file that the caller streams
// an upload body into before its hash is known.
func (b *BlobStore) NewStagingFile() (*os.File, error) {
	name := filepath.Join(b.root, "tmp", uuid.NewString())
	return os.Create(name)
}

// Commit renames a staged file into its final content-addressed location.
// It is idempotent: if a blob with the same hash already exists (two users
// uploaded identical attachment bytes), the staged file is discarded rather
// than erroring, since the existing blob is byte-identical by construction.
func (b *BlobStore) Commit(stagedPath string, h crypto.Multihash) error {
	final := b.pathFor(h)
	if _, err := os.Stat(final); err == nil {
		return os.Remove(stagedPath)
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.Rename(stagedPath, final); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

// Open returns a reader for the blob addressed by h.
func (b *BlobStore) Open(h crypto.Multihash) (*os.File, error) {
	return os.Open(b.pathFor(h))
}

// Has reports whether a blob with hash h is already committed.
func (b *BlobStore) Has(h crypto.Multihash) bool {
	_, err := os.Stat(b.pathFor(h))
	return err == nil
}

// Size returns the size in bytes of the committed blob addressed by h.
func (b *BlobStore) Size(h crypto.Multihash) (int64, error) {
	fi, err := os.Stat(b.pathFor(h))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Remove deletes the committed blob addressed by h, used by the sweeper
// once a blob's last referencing files row is gone.
func (b *BlobStore) Remove(h crypto.Multihash) error {
	err := os.Remove(b.pathFor(h))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// discardStaged removes a tmp file that failed validation (hash or size
// mismatch) before it was ever committed.
func discardStaged(path string) {
	_ = os.Remove(path)
}
