package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 36, cfg.ProtocolActiveMonths)
	assert.Equal(t, 24, cfg.ProtocolWideMonths)
	assert.Equal(t, 15*time.Minute, cfg.EvidenceURLTTL)
	assert.Equal(t, int64(5<<20), cfg.MaxSelfieBytes)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOCAL_DEV", "true")
	t.Setenv("PROTOCOL_MAX_HASHES", "1000")
	t.Setenv("EVIDENCE_URL_TTL", "1h")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.True(t, cfg.IsLocalDev)
	assert.Equal(t, 1000, cfg.ProtocolMaxHashes)
	assert.Equal(t, time.Hour, cfg.EvidenceURLTTL)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Config{Timezone: "Not/AZone"}.Location())
}

func TestLoadAgentConfig(t *testing.T) {
	t.Setenv("PONTO_EMPLOYEE_ID", "emp-1")
	t.Setenv("PONTO_UNIT_LATITUDE", "-23.5505")
	t.Setenv("PONTO_UNIT_LONGITUDE", "-46.6333")
	t.Setenv("PONTO_SYNC_INTERVAL", "10s")

	v := viper.New()
	SetAgentDefaults(v)
	cfg, err := LoadAgentConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "emp-1", cfg.EmployeeID)
	assert.Equal(t, 10*time.Second, cfg.SyncInterval)
	assert.True(t, cfg.Production)
	require.NotNil(t, cfg.UnitLatitude)
	assert.Equal(t, -23.5505, *cfg.UnitLatitude)
	require.NotNil(t, cfg.UnitLongitude)
	assert.Nil(t, cfg.UnitRadiusMeters)
}
