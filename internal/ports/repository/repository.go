package repository

import (
	"context"
	"errors"
	"time"

	"ponto.service/internal/core/model"
	"ponto.service/internal/core/protocol"
)

// ErrPunchNotFound is returned by GetPunch for an unknown or deleted id.
var ErrPunchNotFound = errors.New("punch not found")

// Repository contract
type Repository interface {
	GetEmployee(ctx context.Context, id string) (*model.Employee, error)
	GetUnit(ctx context.Context, id string) (*model.Unit, error)
	CreatePunch(ctx context.Context, punch *model.Punch) (int64, error)
	GetPunch(ctx context.Context, id int64) (*model.Punch, error)
	// HasPunch reports whether the employee already has a punch of this type in [from, to).
	HasPunch(ctx context.Context, employeeID string, punchType model.PunchType, from, to time.Time) (bool, error)
	// ListPunches returns punches in [from, to) ordered by time. An empty unitID matches every unit.
	ListPunches(ctx context.Context, employeeID, unitID string, from, to time.Time) ([]model.Punch, error)
	UpdatePayrollStatus(ctx context.Context, id int64, status model.ProcessingStatus, retryCount int) error
	UpdateReceiptStatus(ctx context.Context, id int64, status model.ProcessingStatus, retryCount int) error
	SaveProtocolMapping(ctx context.Context, hash string, tuple protocol.Tuple) error

	protocol.Source
}
