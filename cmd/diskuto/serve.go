package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/diskuto/diskuto-api/internal/feed"
	"github.com/diskuto/diskuto-api/internal/feedcache"
	"github.com/diskuto/diskuto-api/internal/httpapi"
	"github.com/diskuto/diskuto-api/internal/ingest"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/policy"
	"github.com/diskuto/diskuto-api/internal/serverconfig"
	"github.com/diskuto/diskuto-api/internal/store"
)

// followCacheSize bounds the number of distinct authors whose follow sets
// feedcache keeps resident; an author not in the cache is simply recomputed
// from their latest Profile on next lookup.
const followCacheSize = 4096

func serveCmd() *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, bind)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "address to listen on (overrides configured bind)")
	return cmd
}

func runServe(cmd *cobra.Command, bindOverride string) error {
	cfg, err := serverconfig.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if bindOverride != "" {
		cfg.Bind = bindOverride
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return err
	}

	log := logrus.New()

	s, err := store.Open(store.Options{
		DatabasePath: cfg.DatabasePath(),
		BlobDir:      cfg.BlobDir(),
		WriteWorkers: cfg.WriteWorkers,
		ReadWorkers:  cfg.ReadWorkers,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	follows, err := feedcache.New(s, followCacheSize)
	if err != nil {
		return fmt.Errorf("open follow cache: %w", err)
	}

	pol := policy.New(s, follows, cfg.DefaultQuotaBytes)
	feedSvc := feed.New(s, follows)

	ingestSvc := &ingest.Service{
		Store:   s,
		Policy:  pol,
		Follows: follows,
		Validate: item.ValidationConfig{
			FutureSkew:         cfg.FutureSkew(),
			ItemMaxBytes:       cfg.ItemMaxBytes,
			AttachmentMaxBytes: cfg.AttachmentMaxBytes,
		},
		Now: func() int64 { return time.Now().UnixMilli() },
	}

	api := httpapi.New(feedSvc, ingestSvc, log, cfg.PageLimit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.RunSweeper(ctx, log)

	server := &http.Server{
		Addr:    cfg.Bind,
		Handler: api.Routes(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("bind", cfg.Bind).Info("listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
