package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ponto.service/internal/core"
	"ponto.service/internal/core/geofence"
	"ponto.service/internal/core/model"
)

// PunchRecorder is the part of the punch service the handler needs.
type PunchRecorder interface {
	RecordPunch(ctx context.Context, sub core.Submission) (*model.Punch, error)
}

type PunchHandler struct {
	Service PunchRecorder
	// MaxSelfieBytes bounds the uploaded photo.
	MaxSelfieBytes int64
}

// CreatePunch handles the multipart punch submission from devices.
func (h *PunchHandler) CreatePunch(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxSelfieBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	// Leave room for the text fields around the photo.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	sub, err := parseSubmission(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, _, err := r.FormFile("selfie")
	if err != nil {
		writeError(w, http.StatusBadRequest, "selfie is required")
		return
	}
	defer file.Close()

	photo, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid selfie upload")
		return
	}
	if int64(len(photo)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "selfie is too large")
		return
	}
	sub.Selfie = bytes.NewReader(photo)
	sub.SelfieSize = int64(len(photo))
	sub.SelfieContentType = http.DetectContentType(photo)

	punch, err := h.Service.RecordPunch(r.Context(), sub)
	if err != nil {
		h.writePunchError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Ponto registrado",
		"punch":   punch,
	})
}

func (h *PunchHandler) writePunchError(w http.ResponseWriter, r *http.Request, err error) {
	var geoErr *core.GeofenceError
	switch {
	case errors.As(err, &geoErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    geoErr.Result.Message,
			"geofence": geoErr.Result,
		})
	case errors.Is(err, core.ErrAlreadyPunched):
		writeError(w, http.StatusConflict, "Ponto já registrado hoje para este tipo")
	case errors.Is(err, core.ErrEmployeeNotFound):
		writeError(w, http.StatusNotFound, "Funcionário não encontrado")
	case errors.Is(err, core.ErrUnitNotFound):
		writeError(w, http.StatusNotFound, "Unidade não encontrada")
	case errors.Is(err, core.ErrMissingSelfie):
		writeError(w, http.StatusBadRequest, "selfie is required")
	case errors.Is(err, core.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, "latitude/longitude are invalid")
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to record punch")
		writeError(w, http.StatusInternalServerError, "Service error processing punch")
	}
}

func parseSubmission(r *http.Request) (core.Submission, error) {
	employeeID := strings.TrimSpace(r.FormValue("employeeId"))
	if employeeID == "" {
		return core.Submission{}, errors.New("employeeId is required")
	}

	punchType, err := model.ParsePunchType(r.FormValue("punchType"))
	if err != nil {
		return core.Submission{}, err
	}

	lat, err := parseCoordinate(r.FormValue("latitude"), 90)
	if err != nil {
		return core.Submission{}, errors.New("latitude is invalid")
	}
	lng, err := parseCoordinate(r.FormValue("longitude"), 180)
	if err != nil {
		return core.Submission{}, errors.New("longitude is invalid")
	}

	sub := core.Submission{
		EmployeeID: employeeID,
		UnitID:     strings.TrimSpace(r.FormValue("unitId")),
		Type:       punchType,
		Position:   geofence.Point{Latitude: lat, Longitude: lng},
		DeviceID:   r.FormValue("deviceId"),
	}

	if raw := r.FormValue("accuracy"); raw != "" {
		acc, err := strconv.ParseFloat(raw, 64)
		if err != nil || !isFinite(acc) || acc < 0 {
			return core.Submission{}, errors.New("accuracy is invalid")
		}
		sub.AccuracyMeters = &acc
	}

	if raw := r.FormValue("timestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return core.Submission{}, errors.New("timestamp must be RFC3339")
		}
		sub.Timestamp = ts
	}
	return sub, nil
}

// parseCoordinate accepts a finite value within [-limit, limit]. ParseFloat
// also accepts "NaN" and "Inf", which would slip past plain range checks.
func parseCoordinate(raw string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if !isFinite(v) || math.Abs(v) > limit {
		return 0, errors.New("coordinate out of range")
	}
	return v, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
