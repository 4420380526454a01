package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/item"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by single-row lookups that find nothing, letting
// httpapi map it to a 404 without inspecting sql.ErrNoRows directly.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned by InsertItem when (user, signature) is
// already present, an idempotent retry: the caller treats it as a
// 202, not an error.
var ErrAlreadyExists = errors.New("store: item already exists")

// ErrForbidden is returned by InsertItemAdmitted when uid is neither a
// known user nor followed by one.
var ErrForbidden = errors.New("store: forbidden")

// ErrQuotaExceeded is returned by InsertItemAdmitted when the insert would
// push uid's stored bytes over its quota.
var ErrQuotaExceeded = errors.New("store: quota exceeded")

// InsertItem stores a validated Item's row, plus one declared (incomplete)
// files row per attachment, inside a single transaction so a concurrent
// reader never observes an item without its attachment placeholders. It
// runs on a store worker, never on the calling goroutine directly.
//
// InsertItem performs no authorization or quota check; it is for callers
// that have already decided (or don't need) admission, such as schema
// seeding. internal/ingest uses InsertItemAdmitted instead.
func (s *Store) InsertItem(ctx context.Context, uid crypto.UserID, sig crypto.Signature, it *item.Item, receivedUTCMs int64) error {
	_, err := doPool(ctx, s.writePool, func() (struct{}, error) {
		tx, err := s.writer.Begin()
		if err != nil {
			return struct{}{}, fmt.Errorf("begin insert: %w", err)
		}
		defer tx.Rollback()
		if err := insertItemRows(tx, uid, sig, it, receivedUTCMs); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, tx.Commit()
	})
	return err
}

// InsertItemAdmitted performs the known-user/transitive-follow admission
// check, the quota check, and the item insert inside one writer
// transaction, so a second concurrent insert for the same user can never
// read the same "not yet over quota" total another write is also about to
// commit: the sum is re-read fresh inside this transaction, and the
// writer's single connection serializes it against every other write.
//
// isFollowed is the caller's own resolution of the transitive-follow case
// (internal/store cannot depend on internal/feedcache without a import
// cycle); known-user status, any quota override, and bytes-used are all
// read fresh here rather than taken from the caller.
func (s *Store) InsertItemAdmitted(ctx context.Context, uid crypto.UserID, sig crypto.Signature, it *item.Item, receivedUTCMs, newBytes, defaultQuotaBytes int64, isFollowed bool) error {
	_, err := doPool(ctx, s.writePool, func() (struct{}, error) {
		return struct{}{}, s.insertItemAdmittedTx(uid, sig, it, receivedUTCMs, newBytes, defaultQuotaBytes, isFollowed)
	})
	return err
}

func (s *Store) insertItemAdmittedTx(uid crypto.UserID, sig crypto.Signature, it *item.Item, receivedUTCMs, newBytes, defaultQuotaBytes int64, isFollowed bool) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM items WHERE user_id = ? AND signature = ?`, uid.Bytes(), sig.Bytes()).Scan(&exists)
	switch {
	case err == nil:
		return ErrAlreadyExists
	case err != sql.ErrNoRows:
		return fmt.Errorf("check existing item: %w", err)
	}

	var quotaOverride sql.NullInt64
	known := true
	err = tx.QueryRow(`SELECT quota_bytes FROM known_users WHERE user_id = ?`, uid.Bytes()).Scan(&quotaOverride)
	if err == sql.ErrNoRows {
		known = false
	} else if err != nil {
		return fmt.Errorf("check known user: %w", err)
	}

	if !known && !isFollowed {
		return ErrForbidden
	}

	quota := defaultQuotaBytes
	if known && quotaOverride.Valid {
		quota = quotaOverride.Int64
	}
	if quota >= 0 {
		var itemBytes, fileBytes sql.NullInt64
		if err := tx.QueryRow(`SELECT SUM(LENGTH(raw_bytes)) FROM items WHERE user_id = ?`, uid.Bytes()).Scan(&itemBytes); err != nil {
			return fmt.Errorf("sum item bytes: %w", err)
		}
		if err := tx.QueryRow(`SELECT SUM(size_bytes) FROM files WHERE user_id = ? AND completed = 1`, uid.Bytes()).Scan(&fileBytes); err != nil {
			return fmt.Errorf("sum file bytes: %w", err)
		}
		if itemBytes.Int64+fileBytes.Int64+newBytes > quota {
			return ErrQuotaExceeded
		}
	}

	if err := insertItemRows(tx, uid, sig, it, receivedUTCMs); err != nil {
		return err
	}
	return tx.Commit()
}

// insertItemRows writes an item's row and its declared (incomplete) files
// rows within tx, shared by InsertItem and InsertItemAdmitted.
func insertItemRows(tx *sql.Tx, uid crypto.UserID, sig crypto.Signature, it *item.Item, receivedUTCMs int64) error {
	var replyUser, replySig any
	if it.Comment != nil {
		replyUser = it.Comment.ReplyTo.UserID.Bytes()
		replySig = it.Comment.ReplyTo.Signature.Bytes()
	}

	_, err := tx.Exec(
		`INSERT INTO items (user_id, signature, received_utc_ms, timestamp_ms_utc, kind, reply_to_userid, reply_to_signature, raw_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uid.Bytes(), sig.Bytes(), receivedUTCMs, it.TimestampMsUTC, int(it.Kind), replyUser, replySig, it.Raw,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert item: %w", err)
	}

	if it.Post != nil {
		for _, a := range it.Post.Attachments {
			_, err = tx.Exec(
				`INSERT INTO files (user_id, signature, name, size_bytes, hash, completed) VALUES (?, ?, ?, ?, ?, 0)`,
				uid.Bytes(), sig.Bytes(), a.Name, a.SizeBytes, []byte(a.Hash),
			)
			if err != nil {
				return fmt.Errorf("declare attachment %q: %w", a.Name, err)
			}
		}
	}

	return nil
}

// GetItem returns the stored row for (uid, sig). Raw is the byte-exact
// encoding the item was ingested with.
func (s *Store) GetItem(ctx context.Context, uid crypto.UserID, sig crypto.Signature) ([]byte, error) {
	return doPool(ctx, s.readPool, func() ([]byte, error) {
		var raw []byte
		err := s.reader.QueryRow(
			`SELECT raw_bytes FROM items WHERE user_id = ? AND signature = ?`,
			uid.Bytes(), sig.Bytes(),
		).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get item: %w", err)
		}
		return raw, nil
	})
}

// HasItem reports whether (uid, sig) already exists, used by the ingest
// handler to decide between 201 and 202 without paying for the raw bytes.
func (s *Store) HasItem(ctx context.Context, uid crypto.UserID, sig crypto.Signature) (bool, error) {
	return doPool(ctx, s.readPool, func() (bool, error) {
		var exists int
		err := s.reader.QueryRow(
			`SELECT 1 FROM items WHERE user_id = ? AND signature = ?`,
			uid.Bytes(), sig.Bytes(),
		).Scan(&exists)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("has item: %w", err)
		}
		return true, nil
	})
}

// Row is one item row as returned by the multi-item list queries: enough
// to build a feed.Ref (author, signature, timestamp) without re-parsing
// Raw just to recover the identity columns the item wire format itself
// doesn't carry.
type Row struct {
	UserID         crypto.UserID
	Signature      crypto.Signature
	TimestampMsUTC int64
	Raw            []byte
}

// ListUserItems returns one user's items, newest first (or oldest-first
// within an After window; see Window.clause), within w.
func (s *Store) ListUserItems(ctx context.Context, uid crypto.UserID, w Window) ([]Row, error) {
	return doPool(ctx, s.readPool, func() ([]Row, error) {
		return s.listRows(`user_id = ? AND `, []any{uid.Bytes()}, w)
	})
}

// ListHomepage returns items from every known_users row flagged
// on_homepage, across all authors, newest first.
func (s *Store) ListHomepage(ctx context.Context, w Window) ([]Row, error) {
	return doPool(ctx, s.readPool, func() ([]Row, error) {
		return s.listRows(`user_id IN (SELECT user_id FROM known_users WHERE on_homepage = 1) AND `, nil, w)
	})
}

// ListItemsForUsers returns items authored by any of uids, newest first,
// the query behind a user's follows-feed once the caller has resolved the
// follow set from the latest Profile.
func (s *Store) ListItemsForUsers(ctx context.Context, uids []crypto.UserID, w Window) ([]Row, error) {
	return doPool(ctx, s.readPool, func() ([]Row, error) {
		if len(uids) == 0 {
			return nil, nil
		}
		placeholders := make([]byte, 0, len(uids)*2)
		args := make([]any, 0, len(uids))
		for i, u := range uids {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, u.Bytes())
		}
		return s.listRows(`user_id IN (`+string(placeholders)+`) AND `, args, w)
	})
}

// ListReplies returns comments addressed to (uid, sig) via reply_to, in
// chronological (oldest-first) thread order regardless of window direction.
func (s *Store) ListReplies(ctx context.Context, uid crypto.UserID, sig crypto.Signature, w Window) ([]Row, error) {
	return doPool(ctx, s.readPool, func() ([]Row, error) {
		where, args, _ := w.clause("timestamp_ms_utc", "signature")
		args = append([]any{uid.Bytes(), sig.Bytes()}, args...)
		limit := w.Limit
		if limit <= 0 || limit > maxPageLimit {
			limit = maxPageLimit
		}
		rows, err := s.reader.Query(
			`SELECT user_id, signature, timestamp_ms_utc, raw_bytes FROM items WHERE reply_to_userid = ? AND reply_to_signature = ? AND `+where+
				` ORDER BY timestamp_ms_utc ASC, signature ASC LIMIT ?`,
			append(args, limit)...,
		)
		if err != nil {
			return nil, fmt.Errorf("list replies: %w", err)
		}
		return scanItemRows(rows)
	})
}

// LatestProfileRaw returns the most recent Profile-kind item authored by
// uid, or ErrNotFound if the author has never posted one.
func (s *Store) LatestProfileRaw(ctx context.Context, uid crypto.UserID) ([]byte, error) {
	return doPool(ctx, s.readPool, func() ([]byte, error) {
		var raw []byte
		err := s.reader.QueryRow(
			`SELECT raw_bytes FROM items WHERE user_id = ? AND kind = ? ORDER BY timestamp_ms_utc DESC, signature DESC LIMIT 1`,
			uid.Bytes(), int(item.KindProfile),
		).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("latest profile: %w", err)
		}
		return raw, nil
	})
}

// TotalBytes sums raw_bytes length plus completed attachment sizes for uid,
// the figure internal/policy compares against a user's quota.
func (s *Store) TotalBytes(ctx context.Context, uid crypto.UserID) (int64, error) {
	return doPool(ctx, s.readPool, func() (int64, error) {
		var itemBytes, fileBytes sql.NullInt64
		if err := s.reader.QueryRow(`SELECT SUM(LENGTH(raw_bytes)) FROM items WHERE user_id = ?`, uid.Bytes()).Scan(&itemBytes); err != nil {
			return 0, fmt.Errorf("sum item bytes: %w", err)
		}
		if err := s.reader.QueryRow(`SELECT SUM(size_bytes) FROM files WHERE user_id = ? AND completed = 1`, uid.Bytes()).Scan(&fileBytes); err != nil {
			return 0, fmt.Errorf("sum file bytes: %w", err)
		}
		return itemBytes.Int64 + fileBytes.Int64, nil
	})
}

func (s *Store) listRows(scopeWhere string, scopeArgs []any, w Window) ([]Row, error) {
	where, args, desc := w.clause("timestamp_ms_utc", "signature")
	order := "DESC"
	if !desc {
		order = "ASC"
	}
	limit := w.Limit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	allArgs := append(append([]any{}, scopeArgs...), args...)
	rows, err := s.reader.Query(
		`SELECT user_id, signature, timestamp_ms_utc, raw_bytes FROM items WHERE `+scopeWhere+where+
			` ORDER BY timestamp_ms_utc `+order+`, signature `+order+` LIMIT ?`,
		append(allArgs, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return scanItemRows(rows)
}

func scanItemRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		var uidBytes, sigBytes []byte
		if err := rows.Scan(&uidBytes, &sigBytes, &r.TimestampMsUTC, &r.Raw); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		copy(r.UserID[:], uidBytes)
		copy(r.Signature[:], sigBytes)
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsKnownUser reports whether uid has a known_users row at all.
func (s *Store) IsKnownUser(ctx context.Context, uid crypto.UserID) (bool, error) {
	return doPool(ctx, s.readPool, func() (bool, error) {
		var exists int
		err := s.reader.QueryRow(`SELECT 1 FROM known_users WHERE user_id = ?`, uid.Bytes()).Scan(&exists)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("is known user: %w", err)
		}
		return true, nil
	})
}

// KnownUserQuota returns the per-user override quota for uid, or ok=false
// if the row has no override (the caller falls back to the server default).
func (s *Store) KnownUserQuota(ctx context.Context, uid crypto.UserID) (quota int64, ok bool, err error) {
	_, err = doPool(ctx, s.readPool, func() (struct{}, error) {
		var q sql.NullInt64
		e := s.reader.QueryRow(`SELECT quota_bytes FROM known_users WHERE user_id = ?`, uid.Bytes()).Scan(&q)
		if e == sql.ErrNoRows {
			return struct{}{}, nil
		}
		if e != nil {
			return struct{}{}, fmt.Errorf("known user quota: %w", e)
		}
		if q.Valid {
			quota, ok = q.Int64, true
		}
		return struct{}{}, nil
	})
	return quota, ok, err
}

// AddKnownUser inserts or updates a known_users row.
func (s *Store) AddKnownUser(ctx context.Context, uid crypto.UserID, onHomepage bool, quotaBytes *int64, notes string) error {
	_, err := doPool(ctx, s.writePool, func() (struct{}, error) {
		var q any
		if quotaBytes != nil {
			q = *quotaBytes
		}
		_, e := s.writer.Exec(
			`INSERT INTO known_users (user_id, on_homepage, quota_bytes, notes) VALUES (?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET on_homepage = excluded.on_homepage, quota_bytes = excluded.quota_bytes, notes = excluded.notes`,
			uid.Bytes(), onHomepage, q, notes,
		)
		return struct{}{}, e
	})
	return err
}

// RemoveKnownUser deletes a known_users row, leaving the user's already
// stored items untouched.
func (s *Store) RemoveKnownUser(ctx context.Context, uid crypto.UserID) error {
	_, err := doPool(ctx, s.writePool, func() (struct{}, error) {
		_, e := s.writer.Exec(`DELETE FROM known_users WHERE user_id = ?`, uid.Bytes())
		return struct{}{}, e
	})
	return err
}

// KnownUser is one row of the `user list` CLI output.
type KnownUser struct {
	UserID     crypto.UserID
	OnHomepage bool
	QuotaBytes *int64
	Notes      string
}

// ListKnownUsers returns every known_users row, ordered by user_id.
func (s *Store) ListKnownUsers(ctx context.Context) ([]KnownUser, error) {
	return doPool(ctx, s.readPool, func() ([]KnownUser, error) {
		rows, err := s.reader.Query(`SELECT user_id, on_homepage, quota_bytes, notes FROM known_users ORDER BY user_id`)
		if err != nil {
			return nil, fmt.Errorf("list known users: %w", err)
		}
		defer rows.Close()
		var out []KnownUser
		for rows.Next() {
			var idBytes []byte
			var ku KnownUser
			var quota sql.NullInt64
			if err := rows.Scan(&idBytes, &ku.OnHomepage, &quota, &ku.Notes); err != nil {
				return nil, fmt.Errorf("scan known user: %w", err)
			}
			copy(ku.UserID[:], idBytes)
			if quota.Valid {
				ku.QuotaBytes = &quota.Int64
			}
			out = append(out, ku)
		}
		return out, rows.Err()
	})
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
