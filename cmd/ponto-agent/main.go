// ponto-agent is the device side of the time clock: it captures punches,
// keeps the ones it could not send in a local queue and syncs them later.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ponto.service/internal/config"
	"ponto.service/pkg/logger"
)

// flagBindings maps persistent flags to their configuration keys.
var flagBindings = map[string]string{
	"api-url":        "PONTO_API_URL",
	"employee":       "PONTO_EMPLOYEE_ID",
	"unit":           "PONTO_UNIT_ID",
	"device":         "PONTO_DEVICE_ID",
	"queue-path":     "PONTO_QUEUE_PATH",
	"offline":        "PONTO_OFFLINE",
	"unit-latitude":  "PONTO_UNIT_LATITUDE",
	"unit-longitude": "PONTO_UNIT_LONGITUDE",
	"unit-radius":    "PONTO_UNIT_RADIUS_METERS",
	"local-dev":      "LOCAL_DEV",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	config.SetAgentDefaults(v)

	var cfg config.AgentConfig

	rootCmd := &cobra.Command{
		Use:           "ponto-agent",
		Short:         "Capture time-clock punches and sync them when online",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadAgentConfig(v)
			if err != nil {
				return fmt.Errorf("could not load configuration: %w", err)
			}
			cfg = loaded
			logger.Setup("ponto-agent", cfg.IsLocalDev, cfg.LogLevel)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api-url", "", "Base URL of the ponto API (env PONTO_API_URL)")
	flags.String("employee", "", "Employee id (env PONTO_EMPLOYEE_ID)")
	flags.String("unit", "", "Unit id, empty for none (env PONTO_UNIT_ID)")
	flags.String("device", "", "Device id (env PONTO_DEVICE_ID)")
	flags.String("queue-path", "", "SQLite file holding the offline queue (env PONTO_QUEUE_PATH)")
	flags.Bool("offline", false, "Never contact the API; queue every punch")
	flags.Float64("unit-latitude", 0, "Unit latitude for the geofence")
	flags.Float64("unit-longitude", 0, "Unit longitude for the geofence")
	flags.Float64("unit-radius", 0, "Allowed radius in meters for the geofence")
	flags.Bool("local-dev", false, "Human-readable logs")
	for flag, key := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	current := func() config.AgentConfig { return cfg }

	rootCmd.AddCommand(newPunchCmd(current))
	rootCmd.AddCommand(newSyncCmd(current))
	rootCmd.AddCommand(newPendingCmd(current))
	rootCmd.AddCommand(newAbandonedCmd(current))
	rootCmd.AddCommand(newProtocolCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
