package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"ponto.service/internal/config"
)

func newPendingCmd(cfg func() config.AgentConfig) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show how many punches are waiting to be sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAgent(cfg(), afero.NewOsFs())
			if err != nil {
				return err
			}
			defer a.Close()

			if list {
				entries, err := a.queue.List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}

			n, err := a.queue.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"pending": n})
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "Print the queued entries instead of the count")
	return cmd
}

func newAbandonedCmd(cfg func() config.AgentConfig) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "abandoned",
		Short: "List punches dropped after too many failed attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAgent(cfg(), afero.NewOsFs())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.store.Abandoned(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to print, newest first")
	return cmd
}
