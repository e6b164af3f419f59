package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"ponto.service/internal/core"
	"ponto.service/internal/core/model"
	"ponto.service/internal/ports/messaging"
	"ponto.service/internal/ports/repository"
	"ponto.service/internal/worker"
)

// MaxRetries is how many failed sends a receipt gets before it is marked FAILED.
const MaxRetries = 8

var errNoRecipient = errors.New("employee has no e-mail address")

type Processor struct {
	emailService core.EmailService
	repo         repository.Repository
}

// NewProcessor sets up a new processor for the receipt queue.
// It needs an email service to send receipts and a repository to update the job status.
func NewProcessor(emailService core.EmailService, repo repository.Repository) *Processor {
	return &Processor{
		emailService: emailService,
		repo:         repo,
	}
}

// Process sends the receipt for one recorded punch. Messages for receipts
// already sent are acknowledged without sending again.
func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.PunchRecordedEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		return false, 0, fmt.Errorf("failed to unmarshal receipt event: %w", err) // Do not retry on malformed message
	}

	logger := log.Ctx(ctx).With().Int64("punch_id", event.PunchID).Logger()

	punch, err := p.repo.GetPunch(ctx, event.PunchID)
	if errors.Is(err, repository.ErrPunchNotFound) {
		return false, 0, fmt.Errorf("no punch for receipt: %w", err)
	}
	if err != nil {
		// If we can't get the record, retry after a short delay.
		return true, 10, fmt.Errorf("failed to get punch for receipt processing: %w", err)
	}

	if punch.ReceiptStatus == model.StatusCompleted || punch.ReceiptStatus == model.StatusFailed {
		logger.Info().Str("status", string(punch.ReceiptStatus)).Msg("Receipt already settled. Skipping.")
		return false, 0, nil
	}

	employee, err := p.repo.GetEmployee(ctx, punch.EmployeeID)
	if err != nil {
		return true, 10, fmt.Errorf("failed to get employee for receipt processing: %w", err)
	}
	if employee == nil || employee.Email == "" {
		p.updateStatus(ctx, punch.ID, model.StatusFailed, punch.ReceiptRetryCount)
		return false, 0, errNoRecipient
	}

	err = p.emailService.SendPunchReceipt(ctx, *employee, *punch)
	if err != nil {
		newCount := punch.ReceiptRetryCount + 1
		if newCount >= MaxRetries {
			p.updateStatus(ctx, punch.ID, model.StatusFailed, newCount)
			return false, 0, fmt.Errorf("giving up on receipt after %d attempts: %w", newCount, err)
		}
		p.updateStatus(ctx, punch.ID, model.StatusPending, newCount)
		return true, worker.Backoff(newCount), err
	}

	if err := p.repo.UpdateReceiptStatus(ctx, punch.ID, model.StatusCompleted, punch.ReceiptRetryCount); err != nil {
		// The e-mail is out; a redelivery would send it twice, so do not retry.
		logger.Error().Err(err).Msg("Receipt sent but status update failed")
		return false, 0, nil
	}
	logger.Info().Str("protocol", punch.Protocol).Msg("Receipt sent")
	return false, 0, nil
}

func (p *Processor) updateStatus(ctx context.Context, id int64, status model.ProcessingStatus, retryCount int) {
	if err := p.repo.UpdateReceiptStatus(ctx, id, status, retryCount); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("punch_id", id).Msg("Failed to update receipt status")
	}
}
