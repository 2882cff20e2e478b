package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-go/internal/httpapi"
	"github.com/clipforge/clipforge-go/internal/store"
	"github.com/clipforge/clipforge-go/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var watchFlags []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local watch daemon and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			log, err := ctx.logger()
			if err != nil {
				return err
			}

			snapshots, err := store.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return err
			}
			defer snapshots.Close()

			service := watcher.NewService(cfg.API.BaseURL, client, snapshots, cfg.ChannelOptions(), log)
			defer func() {
				if err := service.Close(); err != nil {
					log.Errorw("Failed to stop watches", "error", err)
				}
			}()

			for _, projectID := range watchFlags {
				if _, err := service.WatchProject(projectID); err != nil {
					return err
				}
			}

			server := &http.Server{
				Addr:    cfg.Serve.Bind,
				Handler: httpapi.NewServer(service, cfg.Serve.Token, log),
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Infow("Serving local API", "bind", cfg.Serve.Bind)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-runCtx.Done():
			}

			log.Infow("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&watchFlags, "watch", nil, "Project id to watch on startup (repeatable)")
	return cmd
}
