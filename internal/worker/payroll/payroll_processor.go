package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"ponto.service/internal/core/model"
	"ponto.service/internal/ports/messaging"
	"ponto.service/internal/ports/repository"
	"ponto.service/internal/worker"
	"ponto.service/internal/worker/payrollapi"
)

// Processor handles jobs from the payroll queue, which involves calling a legacy API.
// It uses a circuit breaker to avoid hammering the legacy system if it's having issues.
type Processor struct {
	repo    repository.Repository
	payroll payrollapi.Client
	cb      *gobreaker.CircuitBreaker
}

// BreakerSettings trips after at least 10 requests with a failure rate of 50% or more.
func BreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "Payroll-API",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
}

// NewProcessor creates a new processor for the payroll queue.
func NewProcessor(r repository.Repository, client payrollapi.Client, settings gobreaker.Settings) *Processor {
	return &Processor{
		repo:    r,
		payroll: client,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// Process forwards one recorded punch to the payroll system through the
// circuit breaker, retrying with exponential backoff.
func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.PunchRecordedEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		return false, 0, fmt.Errorf("failed to unmarshal payroll event: %w", err) // Do not retry on malformed message
	}

	logger := log.Ctx(ctx).With().Int64("punch_id", event.PunchID).Str("employee_id", event.EmployeeID).Logger()
	logger.Debug().Str("punch_type", event.PunchType).Msg("Processing payroll export")

	punch, err := p.repo.GetPunch(ctx, event.PunchID)
	if errors.Is(err, repository.ErrPunchNotFound) {
		return false, 0, fmt.Errorf("no punch for payroll export: %w", err)
	}
	if err != nil {
		return true, 10, fmt.Errorf("failed to get punch from db: %w", err)
	}

	if punch.PayrollStatus == model.StatusCompleted {
		return false, 0, nil
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.payroll.RecordPunch(ctx, *punch)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Warn().Msg("Circuit Breaker is OPEN; skipping Payroll API call")
		}
		newCount := punch.PayrollRetryCount + 1
		if updErr := p.repo.UpdatePayrollStatus(ctx, punch.ID, model.StatusPending, newCount); updErr != nil {
			logger.Error().Err(updErr).Msg("Failed to update payroll status")
		}

		return true, worker.Backoff(newCount), err
	}

	err = p.repo.UpdatePayrollStatus(ctx, punch.ID, model.StatusCompleted, punch.PayrollRetryCount)
	return false, 0, err
}
