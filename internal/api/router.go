package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"ponto.service/internal/api/handler"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
func NewRouter(punches handler.PunchRecorder, protocols handler.ProtocolResolver, maxSelfieBytes int64) *mux.Router {
	punchHandler := handler.PunchHandler{
		Service:        punches,
		MaxSelfieBytes: maxSelfieBytes,
	}
	protocolHandler := handler.ProtocolHandler{
		Service: protocols,
	}

	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/ponto", punchHandler.CreatePunch).Methods(http.MethodPost)
	api.HandleFunc("/protocolo", protocolHandler.GetProtocol).Methods(http.MethodGet)
	api.HandleFunc("/protocolo", protocolHandler.IssueProtocol).Methods(http.MethodPost)
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is operational."))
	}).Methods(http.MethodGet)

	return r
}
