package main

import (
	"github.com/spf13/cobra"

	"ponto.service/internal/core/protocol"
)

func newProtocolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Encode or inspect KL- protocol tokens",
		// Token tools need no agent configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	var (
		employee, unit, month string
		legacy                bool
	)
	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the token for an employee, unit and month",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := protocol.Tuple{EmployeeID: employee, UnitID: unit, YearMonth: month}
			if err := t.Validate(); err != nil {
				return err
			}
			token := protocol.Encode(t)
			if legacy {
				token = protocol.EncodeLegacy(t)
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"protocolo": token})
		},
	}
	encodeCmd.Flags().StringVar(&employee, "employee-id", "", "Employee id")
	encodeCmd.Flags().StringVar(&unit, "unit-id", "", "Unit id, empty for none")
	encodeCmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM")
	encodeCmd.Flags().BoolVar(&legacy, "legacy", false, "Emit the self-describing base64 form")
	_ = encodeCmd.MarkFlagRequired("employee-id")
	_ = encodeCmd.MarkFlagRequired("month")

	decodeCmd := &cobra.Command{
		Use:   "decode TOKEN",
		Short: "Show what a token contains without contacting the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := protocol.Parse(args[0])
			if err != nil {
				return err
			}
			if parsed.Legacy {
				return printJSON(cmd.OutOrStdout(), map[string]any{"legacy": true, "tuple": parsed.Tuple})
			}
			// Short tokens are one-way; only the API can search for the tuple.
			return printJSON(cmd.OutOrStdout(), map[string]any{"legacy": false, "hash": parsed.Hash})
		},
	}

	cmd.AddCommand(encodeCmd, decodeCmd)
	return cmd
}
