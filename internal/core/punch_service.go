package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ponto.service/internal/core/geofence"
	"ponto.service/internal/core/model"
	"ponto.service/internal/core/protocol"
	"ponto.service/internal/ports"
	"ponto.service/internal/ports/messaging"
	"ponto.service/internal/ports/repository"
)

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrUnitNotFound     = errors.New("unit not found")
	ErrAlreadyPunched   = errors.New("punch of this type already recorded today")
	ErrOutsideGeofence  = errors.New("punch outside the unit geofence")
	ErrMissingSelfie    = errors.New("selfie is required")
	ErrInvalidPosition  = errors.New("position must be a finite latitude and longitude")
)

// GeofenceError carries the validation result of a rejected punch.
type GeofenceError struct {
	Result geofence.Result
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("%s: %s", ErrOutsideGeofence, e.Result.Message)
}

func (e *GeofenceError) Is(target error) bool {
	return target == ErrOutsideGeofence
}

// EvidenceStore keeps the selfies attached to punches.
type EvidenceStore interface {
	// Put stores the photo and returns the reference saved on the punch.
	Put(ctx context.Context, employeeID, contentType string, body io.Reader, size int64) (string, error)
	// URL returns a displayable link for a stored reference.
	URL(ctx context.Context, ref string) (string, error)
}

// Submission is a punch as received from a device.
type Submission struct {
	EmployeeID     string
	UnitID         string
	Type           model.PunchType
	Position       geofence.Point
	AccuracyMeters *float64
	DeviceID       string
	// Timestamp is the capture time on the device. Zero means now.
	Timestamp time.Time

	Selfie            io.Reader
	SelfieSize        int64
	SelfieContentType string
}

type PunchService struct {
	repo     repository.Repository
	producer ports.EventProducer
	evidence EvidenceStore
	loc      *time.Location
	now      func() time.Time
}

// NewPunchService wires the repository, the event producer and the evidence
// store. Day and month boundaries are computed in loc.
func NewPunchService(repo repository.Repository, p ports.EventProducer, evidence EvidenceStore, loc *time.Location) *PunchService {
	if loc == nil {
		loc = time.UTC
	}
	return &PunchService{
		repo:     repo,
		producer: p,
		evidence: evidence,
		loc:      loc,
		now:      time.Now,
	}
}

// RecordPunch validates and stores a punch, stamps its protocol token and
// triggers the payroll export and the receipt e-mail.
func (s *PunchService) RecordPunch(ctx context.Context, sub Submission) (*model.Punch, error) {
	if strings.TrimSpace(sub.EmployeeID) == "" {
		return nil, ErrEmployeeNotFound
	}
	punchType, err := model.ParsePunchType(string(sub.Type))
	if err != nil {
		return nil, err
	}
	if sub.Selfie == nil {
		return nil, ErrMissingSelfie
	}
	if !sub.Position.Finite() {
		return nil, ErrInvalidPosition
	}

	employee, err := s.repo.GetEmployee(ctx, sub.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	if employee == nil {
		return nil, ErrEmployeeNotFound
	}

	var unit *model.Unit
	if sub.UnitID != "" {
		unit, err = s.repo.GetUnit(ctx, sub.UnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to load unit: %w", err)
		}
		if unit == nil {
			return nil, ErrUnitNotFound
		}
	}

	// The device already checked the geofence; this catches stale or
	// tampered clients.
	check := geofence.Validate(sub.Position, unit.Geofence())
	if !check.Valid {
		return nil, &GeofenceError{Result: check}
	}

	punchedAt := sub.Timestamp
	if punchedAt.IsZero() {
		punchedAt = s.now()
	}
	punchedAt = punchedAt.UTC()

	dayStart, dayEnd := s.dayBounds(punchedAt)
	exists, err := s.repo.HasPunch(ctx, employee.ID, punchType, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing punches: %w", err)
	}
	if exists {
		return nil, ErrAlreadyPunched
	}

	ref, err := s.evidence.Put(ctx, employee.ID, sub.SelfieContentType, sub.Selfie, sub.SelfieSize)
	if err != nil {
		return nil, fmt.Errorf("failed to store selfie: %w", err)
	}

	tuple := protocol.Tuple{
		EmployeeID: employee.ID,
		UnitID:     sub.UnitID,
		YearMonth:  punchedAt.In(s.loc).Format("2006-01"),
	}

	punch := &model.Punch{
		EmployeeID:     employee.ID,
		UnitID:         sub.UnitID,
		Type:           punchType,
		Timestamp:      punchedAt,
		Latitude:       sub.Position.Latitude,
		Longitude:      sub.Position.Longitude,
		AccuracyMeters: sub.AccuracyMeters,
		SelfieRef:      ref,
		DeviceID:       sub.DeviceID,
		Protocol:       protocol.Encode(tuple),
		PayrollStatus:  model.StatusPending,
		ReceiptStatus:  model.StatusPending,
	}

	punch.ID, err = s.repo.CreatePunch(ctx, punch)
	if err != nil {
		return nil, fmt.Errorf("failed to create punch record: %w", err)
	}

	logger := log.Ctx(ctx).With().Int64("punch_id", punch.ID).Str("employee_id", employee.ID).Logger()

	// The punch row already carries the token, so a missing mapping only
	// costs a slower lookup later.
	if err := s.repo.SaveProtocolMapping(ctx, protocol.ShortHash(tuple), tuple); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist protocol mapping")
	}

	event := messaging.PunchRecordedEvent{
		PunchID:    punch.ID,
		EmployeeID: punch.EmployeeID,
		UnitID:     punch.UnitID,
		PunchType:  string(punch.Type),
		PunchedAt:  punch.Timestamp,
		Protocol:   punch.Protocol,
		OccurredAt: s.now().UTC(),
	}
	// The record is committed; failing the request now would make the device
	// retry into ErrAlreadyPunched. Unpublished jobs stay PENDING in the table.
	if err := s.producer.PublishPayroll(ctx, event); err != nil {
		logger.Error().Err(err).Msg("Failed to publish payroll event")
	}
	if err := s.producer.PublishReceipt(ctx, event); err != nil {
		logger.Error().Err(err).Msg("Failed to publish receipt event")
	}

	logger.Info().Str("punch_type", string(punch.Type)).Str("protocol", punch.Protocol).Msg("Punch recorded")
	return punch, nil
}

func (s *PunchService) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}
