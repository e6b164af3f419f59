package model

import (
	"fmt"
	"strings"
	"time"
)

// PunchType is one of the six clock events an employee can record.
type PunchType string

const (
	PunchEntry         PunchType = "ENTRY"
	PunchBreakStart    PunchType = "BREAK_START"
	PunchBreakEnd      PunchType = "BREAK_END"
	PunchExit          PunchType = "EXIT"
	PunchOvertimeStart PunchType = "OVERTIME_START"
	PunchOvertimeEnd   PunchType = "OVERTIME_END"
)

var punchTypes = []PunchType{
	PunchEntry, PunchBreakStart, PunchBreakEnd, PunchExit, PunchOvertimeStart, PunchOvertimeEnd,
}

// ParsePunchType accepts the canonical names, case-insensitively.
func ParsePunchType(s string) (PunchType, error) {
	candidate := PunchType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range punchTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown punch type %q", s)
}

// ProcessingStatus defines the state of the asynchronous jobs attached to a punch.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusFailed     ProcessingStatus = "FAILED"
)

// Punch is a single clock event. The client-side fields are fixed at
// capture time; ID, Protocol and the job statuses are assigned by the server.
type Punch struct {
	ID             int64     `json:"id,omitempty"`
	EmployeeID     string    `json:"employeeId"`
	UnitID         string    `json:"unitId,omitempty"`
	Type           PunchType `json:"punchType"`
	Timestamp      time.Time `json:"timestamp"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters *float64  `json:"accuracyMeters,omitempty"`
	SelfieRef      string    `json:"selfieRef"`
	DeviceID       string    `json:"deviceId"`
	Protocol       string    `json:"protocol,omitempty"`

	PayrollStatus     ProcessingStatus `json:"payrollStatus,omitempty"`
	PayrollRetryCount int              `json:"payrollRetryCount,omitempty"`
	ReceiptStatus     ProcessingStatus `json:"receiptStatus,omitempty"`
	ReceiptRetryCount int              `json:"receiptRetryCount,omitempty"`
}

// GeofenceTarget is the circular zone a unit allows punches in. Any nil
// field means the unit has no geofence configured.
type GeofenceTarget struct {
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
	AllowedRadiusMeters *float64 `json:"allowedRadiusMeters"`
}

type Employee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	CPF   string `json:"cpf"`
	Email string `json:"email"`
}

type Unit struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	AllowedRadiusMeters *float64 `json:"allowedRadiusMeters,omitempty"`
}

// Geofence projects the unit's location settings. A nil unit yields an
// unconfigured target.
func (u *Unit) Geofence() GeofenceTarget {
	if u == nil {
		return GeofenceTarget{}
	}
	return GeofenceTarget{
		Latitude:            u.Latitude,
		Longitude:           u.Longitude,
		AllowedRadiusMeters: u.AllowedRadiusMeters,
	}
}
