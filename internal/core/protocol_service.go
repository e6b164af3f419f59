package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"ponto.service/internal/core/model"
	"ponto.service/internal/core/protocol"
	"ponto.service/internal/ports/repository"
)

// TokenResolver turns a protocol token back into its tuple.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (protocol.Tuple, error)
}

// PunchView is a punch as shown on a protocol report.
type PunchView struct {
	model.Punch
	LocalTime string `json:"localTime"`
	PhotoURL  string `json:"photoUrl,omitempty"`
}

// DayPunches groups one calendar day of punches.
type DayPunches struct {
	Date    string      `json:"date"`
	Punches []PunchView `json:"punches"`
}

// Report is everything a protocol token refers to.
type Report struct {
	Protocol string         `json:"protocolo"`
	Employee model.Employee `json:"funcionario"`
	Unit     *model.Unit    `json:"unidade,omitempty"`
	Month    string         `json:"month"`
	Days     []DayPunches   `json:"data"`
}

type ProtocolService struct {
	repo     repository.Repository
	resolver TokenResolver
	evidence EvidenceStore
	loc      *time.Location
}

func NewProtocolService(repo repository.Repository, resolver TokenResolver, evidence EvidenceStore, loc *time.Location) *ProtocolService {
	if loc == nil {
		loc = time.UTC
	}
	return &ProtocolService{repo: repo, resolver: resolver, evidence: evidence, loc: loc}
}

// Resolve locates the records behind token. Errors are protocol.ErrInvalidFormat,
// protocol.ErrNotFound, protocol.ErrInvalidReference or an infrastructure failure.
func (s *ProtocolService) Resolve(ctx context.Context, token string) (*Report, error) {
	tuple, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	employee, err := s.repo.GetEmployee(ctx, tuple.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	if employee == nil {
		return nil, protocol.ErrInvalidReference
	}

	report := &Report{
		Protocol: protocol.Encode(tuple),
		Employee: *employee,
		Month:    tuple.YearMonth,
		Days:     []DayPunches{},
	}

	if tuple.UnitID != "" {
		unit, err := s.repo.GetUnit(ctx, tuple.UnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to load unit: %w", err)
		}
		report.Unit = unit
	}

	from, to, err := s.monthBounds(tuple.YearMonth)
	if err != nil {
		return nil, protocol.ErrInvalidFormat
	}

	punches, err := s.repo.ListPunches(ctx, tuple.EmployeeID, tuple.UnitID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list punches: %w", err)
	}

	report.Days = s.groupByDay(ctx, punches)
	return report, nil
}

// Issue returns the token for t and records it so later lookups skip the search.
func (s *ProtocolService) Issue(ctx context.Context, t protocol.Tuple) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if err := s.repo.SaveProtocolMapping(ctx, protocol.ShortHash(t), t); err != nil {
		return "", fmt.Errorf("failed to save protocol mapping: %w", err)
	}
	return protocol.Encode(t), nil
}

func (s *ProtocolService) monthBounds(yearMonth string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", yearMonth, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}

// groupByDay expects punches ordered by time.
func (s *ProtocolService) groupByDay(ctx context.Context, punches []model.Punch) []DayPunches {
	days := []DayPunches{}
	for _, p := range punches {
		local := p.Timestamp.In(s.loc)
		date := local.Format("2006-01-02")

		view := PunchView{Punch: p, LocalTime: local.Format("15:04:05")}
		if p.SelfieRef != "" {
			url, err := s.evidence.URL(ctx, p.SelfieRef)
			if err != nil {
				// A broken photo link should not hide the punch itself.
				log.Ctx(ctx).Warn().Err(err).Int64("punch_id", p.ID).Msg("Failed to resolve selfie URL")
			} else {
				view.PhotoURL = url
			}
		}

		if n := len(days); n == 0 || days[n-1].Date != date {
			days = append(days, DayPunches{Date: date})
		}
		days[len(days)-1].Punches = append(days[len(days)-1].Punches, view)
	}
	return days
}

