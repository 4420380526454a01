package main

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/diskuto/diskuto-api/internal/serverconfig"
	"github.com/diskuto/diskuto-api/internal/store"
)

// dbCmd groups the schema-management subcommands: `db init` and
// `db upgrade`. Both run against the writer connection directly, outside
// store.Open's worker-pool dispatch, since they execute before the server
// considers the schema usable.
func dbCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "manage the sqlite schema"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "create a fresh database at the configured path",
		RunE:  dbInit,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "upgrade",
		Short: "migrate an existing database to the current schema version",
		RunE:  dbUpgrade,
	})
	return cmd
}

func openWriterDB(cfg *serverconfig.Config) (*sql.DB, error) {
	if err := cfg.EnsureDataDirs(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", cfg.DatabasePath()+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func dbInit(cmd *cobra.Command, _ []string) error {
	cfg, err := serverconfig.LoadFromEnv()
	if err != nil {
		return err
	}
	db, err := openWriterDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Init(db); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database initialized at %s (schema version %d)\n", cfg.DatabasePath(), store.ExpectedSchemaVersion)
	return nil
}

func dbUpgrade(cmd *cobra.Command, _ []string) error {
	cfg, err := serverconfig.LoadFromEnv()
	if err != nil {
		return err
	}
	db, err := openWriterDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	before, err := store.CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := store.Migrate(db, store.ExpectedSchemaVersion); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrated schema from version %d to %d\n", before, store.ExpectedSchemaVersion)
	return nil
}
