package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"ponto.service/internal/agent/queue"
	"ponto.service/internal/config"
)

func newSyncCmd(cfg func() config.AgentConfig) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send queued punches, once or continuously",
		Long: `Drains the offline queue against the API.

Without --once it keeps running: it drains every sync interval, right after
the API becomes reachable again and whenever a punch is queued.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAgent(cfg(), afero.NewOsFs())
			if err != nil {
				return err
			}
			defer a.Close()

			if once {
				a.refresh(cmd.Context())
				res, err := a.queue.Drain(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			done := make(chan struct{})
			if a.monitor != nil {
				go func() {
					a.monitor.Run(ctx)
					close(done)
				}()
			} else {
				close(done)
			}

			queue.NewSyncer(a.queue, a.cfg.SyncInterval).Run(ctx)
			<-done
			log.Info().Msg("Sync stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Drain a single time and print the result")
	return cmd
}

