package store

import (
	"database/sql"
	"fmt"
)

// ExpectedSchemaVersion is the schema version this build of the server
// requires. serve refuses to start if the on-disk schema version is below
// this; the operator runs `db upgrade` first.
const ExpectedSchemaVersion = 1

// migration is one forward-only, numbered schema step. Migrations never
// change once released; a later version adds a new migration rather than
// editing an old one.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE known_users (
				user_id      BLOB PRIMARY KEY,
				on_homepage  INTEGER NOT NULL DEFAULT 0,
				quota_bytes  INTEGER,
				notes        TEXT
			)`,
			`CREATE TABLE items (
				user_id             BLOB NOT NULL,
				signature           BLOB NOT NULL,
				received_utc_ms     INTEGER NOT NULL,
				timestamp_ms_utc    INTEGER NOT NULL,
				kind                INTEGER NOT NULL,
				reply_to_userid     BLOB,
				reply_to_signature  BLOB,
				raw_bytes           BLOB NOT NULL,
				PRIMARY KEY (user_id, signature)
			)`,
			`CREATE INDEX idx_items_user_ts ON items (user_id, timestamp_ms_utc DESC, signature DESC)`,
			`CREATE INDEX idx_items_ts ON items (timestamp_ms_utc DESC, signature DESC)`,
			`CREATE INDEX idx_items_reply ON items (reply_to_userid, reply_to_signature, timestamp_ms_utc, signature)`,
			`CREATE INDEX idx_items_profile ON items (user_id, kind, timestamp_ms_utc DESC, signature DESC)`,
			`CREATE TABLE files (
				user_id        BLOB NOT NULL,
				signature      BLOB NOT NULL,
				name           TEXT NOT NULL,
				size_bytes     INTEGER NOT NULL,
				hash           BLOB NOT NULL,
				blob_location  TEXT,
				completed      INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (user_id, signature, name)
			)`,
			`CREATE INDEX idx_files_hash ON files (hash, completed)`,
		},
	},
}

// Init creates the schema at the latest known version. It is the backing
// implementation of the `db init` CLI command.
func Init(db *sql.DB) error {
	return Migrate(db, ExpectedSchemaVersion)
}

// Migrate applies every pending migration up to and including target, each
// inside its own transaction, and records progress in schema_version so a
// second run is a no-op.
func Migrate(db *sql.DB, target int) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_version table: %w", err)
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current || m.version > target {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if current == 0 {
			if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
		} else {
			if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, m.version); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		current = m.version
	}
	return nil
}

// CurrentVersion reads the on-disk schema version, or 0 for a database that
// has never been initialized.
func CurrentVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("ensure schema_version table: %w", err)
	}
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// EnsureVersion returns an error if the on-disk schema is older than
// ExpectedSchemaVersion, the check `serve` runs at startup.
func EnsureVersion(db *sql.DB) error {
	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}
	if current < ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d is older than required %d; run `db upgrade`", current, ExpectedSchemaVersion)
	}
	return nil
}
