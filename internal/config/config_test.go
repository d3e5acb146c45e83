package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.Empty(t, Default().Validate())
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Lock.HeartbeatInterval)
	assert.Equal(t, 15*time.Minute, cfg.Lock.StaleAfter)
	assert.Equal(t, 5*time.Second, cfg.Database.IOTimeout)
	assert.Equal(t, cfg.Lock.StaleAfter, cfg.Manager().StaleAfter)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sharelock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: //nas/warehouse/compliance.db
  io_timeout: 10s
lock:
  heartbeat_interval: 1m
  stale_after: 30m
log:
  level: debug
  format: json
`), 0644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "//nas/warehouse/compliance.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Database.IOTimeout)
	assert.Equal(t, time.Minute, cfg.Lock.HeartbeatInterval)
	assert.Equal(t, 30*time.Minute, cfg.Lock.StaleAfter)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsTightWindow(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("lock.stale_after", "60s")

	_, err := Load(v)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "lock.stale_after", verrs[0].Field)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = " "
	cfg.Database.IOTimeout = time.Minute
	cfg.Lock.HeartbeatInterval = 0
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"

	errs := cfg.Validate()
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"database.path",
		"lock.heartbeat_interval",
		"log.level",
		"log.format",
	}, fields)

	assert.Contains(t, ValidationErrors(errs).Error(), "4 validation errors")
}

func TestIOTimeoutMustBeShorterThanHeartbeat(t *testing.T) {
	cfg := Default()
	cfg.Database.IOTimeout = cfg.Lock.HeartbeatInterval

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "database.io_timeout", errs[0].Field)
}

func TestConfigDirHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "sharelock"), ConfigDir())
}
