package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"ponto.service/internal/core"
	"ponto.service/internal/core/protocol"
)

// ProtocolResolver is the part of the protocol service the handler needs.
type ProtocolResolver interface {
	Resolve(ctx context.Context, token string) (*core.Report, error)
	Issue(ctx context.Context, t protocol.Tuple) (string, error)
}

type ProtocolHandler struct {
	Service ProtocolResolver
}

// GetProtocol resolves ?proto=KL-... into the month's punches.
func (h *ProtocolHandler) GetProtocol(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("proto"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "Protocolo inválido")
		return
	}

	report, err := h.Service.Resolve(r.Context(), token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, protocol.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "Protocolo inválido")
	case errors.Is(err, protocol.ErrNotFound):
		writeError(w, http.StatusNotFound, "Protocolo não encontrado")
	case errors.Is(err, protocol.ErrInvalidReference):
		writeError(w, http.StatusNotFound, "Funcionário não encontrado")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Ctx(r.Context()).Warn().Err(err).Msg("Protocol resolution interrupted")
		writeError(w, http.StatusServiceUnavailable, "Consulta interrompida")
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to resolve protocol")
		writeError(w, http.StatusInternalServerError, "Service error resolving protocol")
	}
}

type IssueProtocolRequest struct {
	EmployeeID string `json:"employeeId"`
	UnitID     string `json:"unitId"`
	Month      string `json:"month"`
}

// IssueProtocol returns the token for a tuple and records it.
func (h *ProtocolHandler) IssueProtocol(w http.ResponseWriter, r *http.Request) {
	var req IssueProtocolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.Service.Issue(r.Context(), protocol.Tuple{
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		UnitID:     strings.TrimSpace(req.UnitID),
		YearMonth:  strings.TrimSpace(req.Month),
	})
	if errors.Is(err, protocol.ErrInvalidFormat) {
		writeError(w, http.StatusBadRequest, "employeeId and month (YYYY-MM) are required")
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to issue protocol")
		writeError(w, http.StatusInternalServerError, "Service error issuing protocol")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"protocolo": token})
}
