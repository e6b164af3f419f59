// Package connectivity tells the agent whether the punch API is reachable.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Checker contract used by the offline queue and its syncer.
type Checker interface {
	Connected() bool
	// Changes delivers the new state on every transition. Only the latest
	// undelivered state is kept.
	Changes() <-chan bool
}

// Flag is a Checker whose state is set by hand. The agent uses it for
// --offline mode; Monitor builds on it.
type Flag struct {
	mu        sync.Mutex
	connected bool
	changes   chan bool
}

func NewFlag(connected bool) *Flag {
	return &Flag{connected: connected, changes: make(chan bool, 1)}
}

func (f *Flag) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Flag) Changes() <-chan bool {
	return f.changes
}

// Set records the state and publishes it if it changed.
func (f *Flag) Set(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected == connected {
		return
	}
	f.connected = connected

	// Replace a stale undelivered value so readers see the latest state.
	select {
	case <-f.changes:
	default:
	}
	f.changes <- connected
}

// Monitor probes an HTTP endpoint and keeps the embedded Flag current.
type Monitor struct {
	*Flag
	client   *http.Client
	probeURL string
	interval time.Duration
}

func NewMonitor(probeURL string, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		Flag:     NewFlag(false),
		client:   &http.Client{Timeout: timeout},
		probeURL: probeURL,
		interval: interval,
	}
}

// Run probes once immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		online := m.Probe(ctx)
		if online != m.Connected() {
			log.Info().Bool("connected", online).Str("probe_url", m.probeURL).Msg("Connectivity changed")
		}
		m.Set(online)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Probe reports whether the endpoint answered with a non-5xx status.
func (m *Monitor) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
