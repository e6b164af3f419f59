package messaging

import "time"

// PunchRecordedEvent is the JSON payload sent via SQS to the payroll and
// receipt queues once a punch is stored.
type PunchRecordedEvent struct {
	PunchID    int64     `json:"punchId"`
	EmployeeID string    `json:"employeeId"`
	UnitID     string    `json:"unitId,omitempty"`
	PunchType  string    `json:"punchType"`
	PunchedAt  time.Time `json:"punchedAt"`
	Protocol   string    `json:"protocol"`
	OccurredAt time.Time `json:"occurredAt"`
}
