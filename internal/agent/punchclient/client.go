package punchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"ponto.service/internal/agent/queue"
	"ponto.service/internal/core/model"
)

// HTTPClient submits punches to the ponto API as multipart forms.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	fs      afero.Fs
}

// NewHTTPClient new HTTPClient. Per-request deadlines come from the
// caller's context; timeout is the outer bound.
func NewHTTPClient(baseURL string, timeout time.Duration, fs afero.Fs) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		fs:      fs,
	}
}

// Submit posts the punch and its selfie. Business rejections (409, 422)
// wrap queue.ErrRejected, as do 400, 404 and 413 when the body is the API's
// own JSON error: those punches would fail the same way on every retry.
// A bare 404 usually means a wrong base URL and stays retryable.
func (c *HTTPClient) Submit(ctx context.Context, punch model.Punch) error {
	body, contentType, err := c.encode(punch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ponto", body)
	if err != nil {
		return fmt.Errorf("failed to create punch request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call punch api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		log.Ctx(ctx).Debug().Str("employee_id", punch.EmployeeID).Str("punch_type", string(punch.Type)).Msg("Punch accepted by server")
		return nil
	}

	msg, fromAPI := readMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", queue.ErrRejected, msg)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge:
		if fromAPI {
			return fmt.Errorf("%w: %s", queue.ErrRejected, msg)
		}
		fallthrough
	default:
		return fmt.Errorf("punch api returned non-successful status code %d: %s", resp.StatusCode, msg)
	}
}

func (c *HTTPClient) encode(punch model.Punch) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := map[string]string{
		"employeeId": punch.EmployeeID,
		"unitId":     punch.UnitID,
		"punchType":  string(punch.Type),
		"latitude":   strconv.FormatFloat(punch.Latitude, 'f', -1, 64),
		"longitude":  strconv.FormatFloat(punch.Longitude, 'f', -1, 64),
		"deviceId":   punch.DeviceID,
		"timestamp":  punch.Timestamp.UTC().Format(time.RFC3339),
	}
	if punch.AccuracyMeters != nil {
		fields["accuracy"] = strconv.FormatFloat(*punch.AccuracyMeters, 'f', -1, 64)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	if punch.SelfieRef != "" {
		selfie, err := afero.ReadFile(c.fs, punch.SelfieRef)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read selfie: %w", err)
		}
		part, err := w.CreateFormFile("selfie", filepath.Base(punch.SelfieRef))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create selfie part: %w", err)
		}
		if _, err := part.Write(selfie); err != nil {
			return nil, "", fmt.Errorf("failed to write selfie part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish punch form: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// readMessage pulls "error" out of a JSON error body, falling back to the
// raw text. fromAPI reports whether the body had the API's error shape.
func readMessage(r io.Reader) (msg string, fromAPI bool) {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", false
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error, true
	}
	return strings.TrimSpace(string(raw)), false
}
