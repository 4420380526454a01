package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/metrics"
)

// sweepInterval is how often the background sweeper runs.
const sweepInterval = 15 * time.Minute

// staleTmpAge is how long a tmp staging file can sit unclaimed before the
// sweeper treats it as abandoned (an upload that never finished, e.g. a
// client that disconnected mid-PUT).
const staleTmpAge = time.Hour

// RunSweeper blocks, running a sweep pass on every tick until ctx is
// cancelled. cmd/diskuto starts it in its own goroutine alongside the HTTP
// server.
func (s *Store) RunSweeper(ctx context.Context, log *logrus.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepOnce(log); err != nil {
				log.WithError(err).Error("sweep failed")
			}
		}
	}
}

func (s *Store) sweepOnce(log *logrus.Logger) error {
	n, err := s.sweepStaleTmp()
	if err != nil {
		return err
	}
	if n > 0 {
		log.WithField("count", n).Info("swept stale tmp uploads")
	}

	n, err = s.sweepOrphanedBlobs()
	if err != nil {
		return err
	}
	if n > 0 {
		log.WithField("count", n).Info("swept orphaned blobs")
	}

	total, err := s.totalBlobBytes()
	if err != nil {
		return err
	}
	metrics.BlobStoreBytes.Set(float64(total))

	return nil
}

// totalBlobBytes sums the size of every completed attachment, refreshing
// the blob_store_bytes gauge on each sweep pass.
func (s *Store) totalBlobBytes() (int64, error) {
	var total int64
	err := s.reader.QueryRow(`SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE completed = 1`).Scan(&total)
	return total, err
}

// sweepStaleTmp removes tmp staging files older than staleTmpAge that were
// never committed, an upload that was abandoned mid-flight.
func (s *Store) sweepStaleTmp() (int, error) {
	dir := filepath.Join(s.blobs.root, "tmp")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := time.Now().Add(-staleTmpAge)
	swept := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				swept++
			}
		}
	}
	return swept, nil
}

// sweepOrphanedBlobs removes declared-but-never-completed files rows whose
// parent item no longer exists (the item insert and attachment declaration
// are transactional together, so this only fires if an item row was later
// deleted by an operator, not during normal operation) along with any
// completed attachment whose last referencing files row is gone. A blob's
// hash can be shared by multiple files rows (two items attaching the same
// bytes), so the blob itself is only reclaimed once no files row anywhere
// still points at that hash.
func (s *Store) sweepOrphanedBlobs() (int, error) {
	tx, err := s.writer.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin sweep: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT DISTINCT hash FROM files WHERE completed = 1 AND NOT EXISTS (
			SELECT 1 FROM items WHERE items.user_id = files.user_id AND items.signature = files.signature
		)`,
	)
	if err != nil {
		return 0, fmt.Errorf("find orphaned blob hashes: %w", err)
	}
	var candidates [][]byte
	for rows.Next() {
		var h []byte
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan orphaned hash: %w", err)
		}
		candidates = append(candidates, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	res, err := tx.Exec(
		`DELETE FROM files WHERE NOT EXISTS (
			SELECT 1 FROM items WHERE items.user_id = files.user_id AND items.signature = files.signature
		)`,
	)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned files rows: %w", err)
	}
	n, _ := res.RowsAffected()

	reclaimable := make([][]byte, 0, len(candidates))
	for _, h := range candidates {
		var exists int
		err := tx.QueryRow(`SELECT 1 FROM files WHERE hash = ? AND completed = 1 LIMIT 1`, h).Scan(&exists)
		switch {
		case err == nil:
			// another files row still points at this blob; keep it on disk
		case err == sql.ErrNoRows:
			reclaimable = append(reclaimable, h)
		default:
			return int(n), fmt.Errorf("check remaining blob references: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return int(n), fmt.Errorf("commit sweep: %w", err)
	}

	for _, h := range reclaimable {
		if err := s.blobs.Remove(crypto.Multihash(h)); err != nil {
			return int(n), fmt.Errorf("remove orphaned blob: %w", err)
		}
	}

	return int(n), nil
}
