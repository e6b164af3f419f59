package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ponto.service/internal/core/protocol"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProtocolEncodeDecode(t *testing.T) {
	tuple := protocol.Tuple{EmployeeID: "emp-1", UnitID: "unit-1", YearMonth: "2025-03"}

	out, err := run(t, "protocol", "encode", "--employee-id", "emp-1", "--unit-id", "unit-1", "--month", "2025-03")
	require.NoError(t, err)
	assert.JSONEq(t, `{"protocolo":"`+protocol.Encode(tuple)+`"}`, out)

	out, err = run(t, "protocol", "decode", protocol.EncodeLegacy(tuple))
	require.NoError(t, err)
	var decoded struct {
		Legacy bool           `json:"legacy"`
		Tuple  protocol.Tuple `json:"tuple"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.True(t, decoded.Legacy)
	assert.Equal(t, tuple, decoded.Tuple)
}

func TestProtocolDecodeRejectsGarbage(t *testing.T) {
	_, err := run(t, "protocol", "decode", "XX-123")
	assert.ErrorIs(t, err, protocol.ErrInvalidFormat)
}

func TestOfflinePunchIsQueued(t *testing.T) {
	dir := t.TempDir()
	queuePath := filepath.Join(dir, "queue.db")
	selfie := filepath.Join(dir, "selfie.jpg")
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), selfie, []byte("jpeg"), 0o644))

	out, err := run(t, "punch", "--offline", "--queue-path", queuePath, "--employee", "emp-1",
		"--type", "entry", "--lat", "-23.5505", "--lng", "-46.6333", "--selfie", selfie)
	require.NoError(t, err)

	var outcome struct {
		Status  string `json:"status"`
		QueueID string `json:"queueId"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, "QUEUED", outcome.Status)
	assert.NotEmpty(t, outcome.QueueID)

	out, err = run(t, "pending", "--offline", "--queue-path", queuePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pending":1}`, out)

	// Offline drains leave the queue untouched.
	out, err = run(t, "sync", "--once", "--offline", "--queue-path", queuePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sent":0,"failed":0,"abandoned":0}`, out)
}

func TestOverrideRefusedInProduction(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "punch", "--offline", "--queue-path", filepath.Join(dir, "q.db"), "--employee", "emp-1",
		"--type", "ENTRY", "--lat", "0", "--lng", "0", "--selfie", filepath.Join(dir, "s.jpg"), "--override")
	assert.ErrorContains(t, err, "--override")
}

// punchAPI accepts every punch and remembers the order of their types.
type punchAPI struct {
	mu    sync.Mutex
	types []string
}

func (p *punchAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/health":
		w.WriteHeader(http.StatusOK)
	case "/api/v1/ponto":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.types = append(p.types, r.FormValue("punchType"))
		p.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"Ponto registrado"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *punchAPI) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func TestOnlinePunchFlushesEarlierQueuedPunches(t *testing.T) {
	api := &punchAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	dir := t.TempDir()
	queuePath := filepath.Join(dir, "queue.db")
	selfie := filepath.Join(dir, "selfie.jpg")
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), selfie, []byte("jpeg"), 0o644))

	_, err := run(t, "punch", "--offline", "--queue-path", queuePath, "--employee", "emp-1",
		"--type", "ENTRY", "--lat", "-23.5505", "--lng", "-46.6333", "--selfie", selfie)
	require.NoError(t, err)
	assert.Empty(t, api.received())

	out, err := run(t, "punch", "--api-url", srv.URL, "--queue-path", queuePath, "--employee", "emp-1",
		"--type", "EXIT", "--lat", "-23.5505", "--lng", "-46.6333", "--selfie", selfie)
	require.NoError(t, err)

	var outcome struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, "SENT", outcome.Status)
	assert.Equal(t, []string{"ENTRY", "EXIT"}, api.received())

	out, err = run(t, "pending", "--offline", "--queue-path", queuePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pending":0}`, out)
}
