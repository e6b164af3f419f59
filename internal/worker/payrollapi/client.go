package payrollapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ponto.service/internal/core/model"
)

// Client is the contract of the legacy payroll system.
type Client interface {
	RecordPunch(ctx context.Context, punch model.Punch) error
}

// Entry is the payload the legacy payroll API expects.
type Entry struct {
	PunchID    int64     `json:"punchId"`
	EmployeeID string    `json:"employeeId"`
	UnitID     string    `json:"unitId,omitempty"`
	PunchType  string    `json:"punchType"`
	PunchedAt  time.Time `json:"punchedAt"`
	Protocol   string    `json:"protocol"`
}

// HTTPClient API client using HTTP
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient new HTTPClient
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
	}
}

// RecordPunch sends the punch to the legacy payroll API.
func (c *HTTPClient) RecordPunch(ctx context.Context, punch model.Punch) error {
	payload, err := json.Marshal(Entry{
		PunchID:    punch.ID,
		EmployeeID: punch.EmployeeID,
		UnitID:     punch.UnitID,
		PunchType:  string(punch.Type),
		PunchedAt:  punch.Timestamp.UTC(),
		Protocol:   punch.Protocol,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payroll api payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create payroll api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call payroll api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("payroll api returned non-successful status code: %d", resp.StatusCode)
	}

	log.Ctx(ctx).Info().Str("employee_id", punch.EmployeeID).Int64("punch_id", punch.ID).Msg("Punch recorded in legacy payroll system")
	return nil
}
