package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"ponto.service/internal/worker/payrollapi"
	"ponto.service/pkg/logger"
)

// failureRate is read from MOCK_FAILURE_RATE (0..1) to exercise the
// worker's retries and circuit breaker.
var failureRate float64

func punchHandler(w http.ResponseWriter, r *http.Request) {
	var entry payrollapi.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if rand.Float64() < failureRate {
		log.Warn().Int64("punch_id", entry.PunchID).Msg("Simulating payroll outage")
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	log.Info().Str("employee_id", entry.EmployeeID).Str("punch_type", entry.PunchType).Str("protocol", entry.Protocol).Msg("Received punch")
	w.WriteHeader(http.StatusOK)
}

func main() {
	logger.Setup("payroll-api-mock", true, os.Getenv("LOG_LEVEL"))
	failureRate, _ = strconv.ParseFloat(os.Getenv("MOCK_FAILURE_RATE"), 64)

	http.HandleFunc("/", punchHandler)
	log.Info().Float64("failure_rate", failureRate).Msg("Payroll API mock server starting on port 8081...")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}
