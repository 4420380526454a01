package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/serverconfig"
	"github.com/diskuto/diskuto-api/internal/store"
)

// userCmd groups the `user add`, `user list`, and `user remove`
// subcommands, which manage the known_users table directly.
func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "manage known users"}

	var onHomepage bool
	var quota int64
	var hasQuota bool
	add := &cobra.Command{
		Use:   "add <uid>",
		Short: "admit a user, optionally flagging them onto the homepage and overriding their quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAdd(cmd, args[0], onHomepage, quota, hasQuota)
		},
	}
	add.Flags().BoolVar(&onHomepage, "on-homepage", false, "include this user's posts on the server homepage")
	add.Flags().Int64Var(&quota, "quota", 0, "per-user storage quota in bytes (negative means unlimited)")
	add.PreRunE = func(cmd *cobra.Command, _ []string) error {
		hasQuota = cmd.Flags().Changed("quota")
		return nil
	}
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list known users",
		RunE:  userList,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <uid>",
		Short: "revoke a user's known-user status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userRemove(cmd, args[0])
		},
	})

	return cmd
}

func openStoreForCLI(cfg *serverconfig.Config) (*store.Store, error) {
	if err := cfg.EnsureDataDirs(); err != nil {
		return nil, err
	}
	return store.Open(store.Options{
		DatabasePath: cfg.DatabasePath(),
		BlobDir:      cfg.BlobDir(),
		WriteWorkers: 1,
		ReadWorkers:  1,
	})
}

func userAdd(cmd *cobra.Command, uidText string, onHomepage bool, quota int64, hasQuota bool) error {
	uid, err := crypto.ParseUserID(uidText)
	if err != nil {
		return fmt.Errorf("bad user id: %w", err)
	}
	cfg, err := serverconfig.LoadFromEnv()
	if err != nil {
		return err
	}
	s, err := openStoreForCLI(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var quotaPtr *int64
	if hasQuota {
		quotaPtr = &quota
	}
	if err := s.AddKnownUser(cmd.Context(), uid, onHomepage, quotaPtr, ""); err != nil {
		return fmt.Errorf("add known user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "admitted %s (on_homepage=%v)\n", uid, onHomepage)
	return nil
}

func userRemove(cmd *cobra.Command, uidText string) error {
	uid, err := crypto.ParseUserID(uidText)
	if err != nil {
		return fmt.Errorf("bad user id: %w", err)
	}
	cfg, err := serverconfig.LoadFromEnv()
	if err != nil {
		return err
	}
	s, err := openStoreForCLI(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RemoveKnownUser(cmd.Context(), uid); err != nil {
		return fmt.Errorf("remove known user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", uid)
	return nil
}

func userList(cmd *cobra.Command, _ []string) error {
	cfg, err := serverconfig.LoadFromEnv()
	if err != nil {
		return err
	}
	s, err := openStoreForCLI(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	users, err := s.ListKnownUsers(cmd.Context())
	if err != nil {
		return fmt.Errorf("list known users: %w", err)
	}
	for _, u := range users {
		quota := "default"
		if u.QuotaBytes != nil {
			quota = fmt.Sprintf("%d", *u.QuotaBytes)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\ton_homepage=%v\tquota=%s\n", u.UserID, u.OnHomepage, quota)
	}
	return nil
}
