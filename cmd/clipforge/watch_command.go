package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <project-id>",
		Short: "Follow a project's status stream until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]

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

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			terminal := make(chan statuschannel.StatusMessage, 1)

			opts := cfg.ChannelOptions()
			opts.OnMessage = func(msg statuschannel.StatusMessage) {
				switch msg.Type {
				case statuschannel.MessageTypeUpdate:
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %.0f%%  %s\n",
						time.Now().Format("15:04:05"), msg.Status, msg.Progress, msg.CurrentStep)
					if msg.Status.IsTerminal() {
						select {
						case terminal <- msg:
						default:
						}
					}
				case statuschannel.MessageTypeError:
					fmt.Fprintf(cmd.OutOrStdout(), "%s  backend error: %s\n",
						time.Now().Format("15:04:05"), msg.Error)
				}
			}

			channel := statuschannel.New(cfg.API.BaseURL, client, nil, log, opts)
			channel.Open(projectID)
			defer channel.Close()

			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case <-runCtx.Done():
					return runCtx.Err()
				case msg := <-terminal:
					if msg.Status.IsFailed() {
						if msg.ErrorMessage != "" {
							return fmt.Errorf("project %s failed: %s", projectID, msg.ErrorMessage)
						}
						return fmt.Errorf("project %s failed", projectID)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Project %s completed\n", projectID)
					return nil
				case <-ticker.C:
					health := channel.Health()
					if health.Phase == statuschannel.PhaseClosed && health.LastError != nil {
						return fmt.Errorf("status stream closed: %w", health.LastError)
					}
				}
			}
		},
	}
}
