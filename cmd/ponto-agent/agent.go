package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"ponto.service/internal/agent/connectivity"
	"ponto.service/internal/agent/punchclient"
	"ponto.service/internal/agent/queue"
	"ponto.service/internal/config"
	"ponto.service/internal/core/model"
)

// agent holds the wired components shared by the subcommands.
type agent struct {
	cfg     config.AgentConfig
	store   *queue.SQLiteStore
	network connectivity.Checker
	// monitor is nil in offline mode.
	monitor *connectivity.Monitor
	client  *punchclient.HTTPClient
	queue   *queue.Queue
}

func openAgent(cfg config.AgentConfig, fs afero.Fs) (*agent, error) {
	if cfg.QueuePath != ":memory:" {
		if err := fs.MkdirAll(filepath.Dir(cfg.QueuePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}
	store, err := queue.OpenSQLiteStore(cfg.QueuePath)
	if err != nil {
		return nil, err
	}

	a := &agent{cfg: cfg, store: store}

	if cfg.Offline {
		a.network = connectivity.NewFlag(false)
	} else {
		a.monitor = connectivity.NewMonitor(strings.TrimRight(cfg.APIURL, "/")+"/api/v1/health", cfg.ProbeInterval, cfg.ProbeTimeout)
		a.network = a.monitor
	}

	a.client = punchclient.NewHTTPClient(cfg.APIURL, cfg.SubmitTimeout, fs)
	a.queue = queue.New(store, a.client, a.network,
		queue.WithDeadLetter(store),
		queue.WithSubmitTimeout(cfg.SubmitTimeout),
		queue.WithFs(fs),
	)
	return a, nil
}

// refresh probes the API once so one-shot commands see current connectivity.
func (a *agent) refresh(ctx context.Context) {
	if a.monitor != nil {
		a.monitor.Set(a.monitor.Probe(ctx))
	}
}

func (a *agent) target() model.GeofenceTarget {
	return model.GeofenceTarget{
		Latitude:            a.cfg.UnitLatitude,
		Longitude:           a.cfg.UnitLongitude,
		AllowedRadiusMeters: a.cfg.UnitRadiusMeters,
	}
}

func (a *agent) Close() error {
	return a.store.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
