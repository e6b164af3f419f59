// Package capture runs the client side of a punch: local geofence check,
// immediate submission, and fallback to the offline queue.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ponto.service/internal/agent/connectivity"
	"ponto.service/internal/agent/queue"
	"ponto.service/internal/core/geofence"
	"ponto.service/internal/core/model"
)

type Status string

const (
	StatusSent             Status = "SENT"
	StatusQueued           Status = "QUEUED"
	StatusRejectedGeofence Status = "REJECTED_GEOFENCE"
)

type Request struct {
	EmployeeID     string
	UnitID         string
	Type           model.PunchType
	Position       geofence.Point
	AccuracyMeters *float64
	SelfiePath     string
	DeviceID       string
	// Override asks to proceed outside the geofence. Honoured only when the
	// Capturer allows overrides.
	Override bool
}

type Outcome struct {
	Status   Status          `json:"status"`
	Geofence geofence.Result `json:"geofence"`
	QueueID  string          `json:"queueId,omitempty"`
	Punch    model.Punch     `json:"punch"`
}

// Enqueuer is the part of the offline queue the capturer needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, punch model.Punch) (string, error)
}

type Capturer struct {
	submitter     queue.Submitter
	queue         Enqueuer
	network       connectivity.Checker
	target        model.GeofenceTarget
	allowOverride bool
	submitTimeout time.Duration
	now           func() time.Time
}

type Config struct {
	Target model.GeofenceTarget
	// AllowOverride must stay false in production builds.
	AllowOverride bool
	SubmitTimeout time.Duration
}

func NewCapturer(sub queue.Submitter, q Enqueuer, network connectivity.Checker, cfg Config) *Capturer {
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = queue.DefaultSubmitTimeout
	}
	return &Capturer{
		submitter:     sub,
		queue:         q,
		network:       network,
		target:        cfg.Target,
		allowOverride: cfg.AllowOverride,
		submitTimeout: timeout,
		now:           time.Now,
	}
}

// Capture records one punch. A geofence rejection is an outcome, not an
// error; a business rejection from the server is returned as an error
// wrapping queue.ErrRejected.
func (c *Capturer) Capture(ctx context.Context, req Request) (Outcome, error) {
	if strings.TrimSpace(req.EmployeeID) == "" {
		return Outcome{}, errors.New("employee id is required")
	}
	if _, err := model.ParsePunchType(string(req.Type)); err != nil {
		return Outcome{}, err
	}

	logger := log.Ctx(ctx).With().Str("employee_id", req.EmployeeID).Str("punch_type", string(req.Type)).Logger()

	check := geofence.Validate(req.Position, c.target)
	if !check.Valid {
		if !req.Override || !c.allowOverride {
			logger.Info().Str("reason", check.Message).Msg("Punch rejected by geofence")
			return Outcome{Status: StatusRejectedGeofence, Geofence: check}, nil
		}
		logger.Warn().Str("reason", check.Message).Msg("Geofence override, proceeding outside the allowed zone")
	}

	punch := model.Punch{
		EmployeeID:     req.EmployeeID,
		UnitID:         req.UnitID,
		Type:           req.Type,
		Timestamp:      c.now().UTC(),
		Latitude:       req.Position.Latitude,
		Longitude:      req.Position.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		SelfieRef:      req.SelfiePath,
		DeviceID:       req.DeviceID,
	}

	if c.network.Connected() {
		sendCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
		err := c.submitter.Submit(sendCtx, punch)
		cancel()

		if err == nil {
			return Outcome{Status: StatusSent, Geofence: check, Punch: punch}, nil
		}
		if errors.Is(err, queue.ErrRejected) {
			return Outcome{Geofence: check, Punch: punch}, err
		}
		logger.Warn().Err(err).Msg("Immediate submission failed, queueing punch")
	}

	id, err := c.queue.Enqueue(ctx, punch)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to queue punch: %w", err)
	}
	return Outcome{Status: StatusQueued, Geofence: check, QueueID: id, Punch: punch}, nil
}
