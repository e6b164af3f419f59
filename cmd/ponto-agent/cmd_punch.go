package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"ponto.service/internal/agent/capture"
	"ponto.service/internal/agent/queue"
	"ponto.service/internal/config"
	"ponto.service/internal/core/geofence"
	"ponto.service/internal/core/model"
)

func newPunchCmd(cfg func() config.AgentConfig) *cobra.Command {
	var (
		punchType string
		lat, lng  float64
		accuracy  float64
		selfie    string
		override  bool
	)

	cmd := &cobra.Command{
		Use:   "punch",
		Short: "Record a punch now, queueing it if the API cannot be reached",
		Example: `  ponto-agent punch --employee emp-1 --type ENTRY --lat -23.5505 --lng -46.6333 --selfie ./selfie.jpg
  ponto-agent punch --offline --type EXIT --lat -23.5505 --lng -46.6333 --selfie ./selfie.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := model.ParsePunchType(punchType)
			if err != nil {
				return err
			}

			// The queue may be drained from another working directory.
			selfiePath, err := filepath.Abs(selfie)
			if err != nil {
				return err
			}

			fs := afero.NewOsFs()
			a, err := openAgent(cfg(), fs)
			if err != nil {
				return err
			}
			defer a.Close()

			if override && a.cfg.Production {
				return errors.New("--override is not available in production builds")
			}

			ctx := cmd.Context()
			a.refresh(ctx)

			// No syncer runs in this process, so punches left by earlier
			// offline runs are flushed here, ahead of the new one.
			if a.network.Connected() {
				res, err := a.queue.Drain(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("Could not flush queued punches")
				} else if res.Sent > 0 || res.Failed > 0 {
					log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("Flushed queued punches")
				}
			}

			req := capture.Request{
				EmployeeID: a.cfg.EmployeeID,
				UnitID:     a.cfg.UnitID,
				Type:       typ,
				Position:   geofence.Point{Latitude: lat, Longitude: lng},
				SelfiePath: selfiePath,
				DeviceID:   a.cfg.DeviceID,
				Override:   override,
			}
			if cmd.Flags().Changed("accuracy") {
				req.AccuracyMeters = &accuracy
			}

			capturer := capture.NewCapturer(a.client, a.queue, a.network, capture.Config{
				Target:        a.target(),
				AllowOverride: !a.cfg.Production,
				SubmitTimeout: a.cfg.SubmitTimeout,
			})

			outcome, err := capturer.Capture(ctx, req)
			if errors.Is(err, queue.ErrRejected) {
				log.Warn().Err(err).Msg("Punch rejected by server")
				return err
			}
			if err != nil {
				return err
			}

			if outcome.Status == capture.StatusQueued {
				fmt.Fprintln(cmd.ErrOrStderr(), "Punch queued; it will be sent by 'ponto-agent sync'.")
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}

	cmd.Flags().StringVar(&punchType, "type", "", "Punch type: ENTRY, BREAK_START, BREAK_END, EXIT, OVERTIME_START, OVERTIME_END")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Current latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Current longitude")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "GPS accuracy in meters")
	cmd.Flags().StringVar(&selfie, "selfie", "", "Path to the selfie photo")
	cmd.Flags().BoolVar(&override, "override", false, "Proceed outside the geofence (non-production only)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	_ = cmd.MarkFlagRequired("selfie")

	return cmd
}
