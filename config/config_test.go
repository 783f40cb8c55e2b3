package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyberinferno/camingest/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 2221
  passive_port_start: 30000
  passive_port_end: 30009
storage:
  root: /srv/ftp
queue:
  memory_capacity: 50
workers:
  count: 2
log:
  level: debug
tenants:
  user1:
    ftp_user: willie
    ftp_pass: secret
    chat_id: "-1002043093608"
    working_start: "19:00"
    working_end: "05:00"
    armed: false
    detection:
      person: true
      person_confidence: 0.5
  user2:
    ftp_user: naboom
    ftp_pass: other
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file values and defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "config.yaml", sampleYAML))
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:2221", cfg.Server.Addr())
		assert.Equal(t, 30000, cfg.Server.PassivePortStart)
		assert.Equal(t, 30*time.Second, cfg.Server.DataAcceptTimeout)
		assert.Equal(t, time.Duration(0), cfg.Server.IdleTimeout)
		assert.Equal(t, "/srv/ftp", cfg.Storage.Root)
		assert.Equal(t, []string{".png", ".jpg", ".jpeg", ".gif"}, cfg.Storage.LeftoverExtensions)
		assert.Empty(t, cfg.Storage.PositiveDir)
		assert.Equal(t, 50, cfg.Queue.MemoryCapacity)
		assert.Equal(t, 5*time.Minute, cfg.Queue.SizeLogInterval)
		assert.Equal(t, 2, cfg.Workers.Count)
		assert.Equal(t, 10*time.Second, cfg.Workers.SupervisorInterval)
		assert.Equal(t, "user_armed_status:", cfg.Redis.ArmedKeyPrefix)
		assert.Equal(t, 30*time.Second, cfg.Armed.AutoArmInterval)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 7, cfg.Log.RetentionDays)
	})

	t.Run("tenants take ids from keys", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "config.yaml", sampleYAML))
		require.NoError(t, err)

		tenants := cfg.TenantList()
		require.Len(t, tenants, 2)

		u1 := tenants[0]
		assert.Equal(t, "user1", u1.ID)
		assert.Equal(t, "willie", u1.User)
		assert.Equal(t, "-1002043093608", u1.ChatID)
		assert.False(t, u1.Armed)
		assert.Equal(t, tenant.Detection{Person: true, PersonMinConf: 0.5}, u1.Detection)

		u2 := tenants[1]
		assert.Equal(t, "user2", u2.ID)
		assert.True(t, u2.Armed, "armed defaults to true")
		assert.Equal(t, "00:00", u2.WorkingStart)
		assert.Equal(t, "23:59", u2.WorkingEnd)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("CAMINGEST_SERVER_PORT", "3131")
		t.Setenv("CAMINGEST_STORAGE_ROOT", "/data/ftp")
		cfg, err := Load(writeConfig(t, "config.yaml", sampleYAML))
		require.NoError(t, err)
		assert.Equal(t, 3131, cfg.Server.Port)
		assert.Equal(t, "/data/ftp", cfg.Storage.Root)
	})

	t.Run("json file", func(t *testing.T) {
		body := `{"storage":{"root":"/srv"},"tenants":{"cam":{"ftp_user":"u","ftp_pass":"p"}}}`
		cfg, err := Load(writeConfig(t, "config.json", body))
		require.NoError(t, err)
		dir, err := cfg.Directory()
		require.NoError(t, err)
		got, ok := dir.Lookup("u")
		require.True(t, ok)
		assert.Equal(t, "cam", got.ID)
	})

	t.Run("missing storage root", func(t *testing.T) {
		body := "tenants:\n  a:\n    ftp_user: u\n    ftp_pass: p\n"
		_, err := Load(writeConfig(t, "config.yaml", body))
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("missing tenants", func(t *testing.T) {
		_, err := Load(writeConfig(t, "config.yaml", "storage:\n  root: /srv\n"))
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("duplicate ftp users", func(t *testing.T) {
		body := "storage:\n  root: /srv\ntenants:\n  a:\n    ftp_user: u\n    ftp_pass: p\n  b:\n    ftp_user: u\n    ftp_pass: q\n"
		_, err := Load(writeConfig(t, "config.yaml", body))
		assert.ErrorIs(t, err, tenant.ErrDuplicateUser)
	})

	t.Run("invalid clock", func(t *testing.T) {
		body := "storage:\n  root: /srv\ntenants:\n  a:\n    ftp_user: u\n    ftp_pass: p\n    working_start: \"7pm\"\n"
		_, err := Load(writeConfig(t, "config.yaml", body))
		assert.ErrorIs(t, err, tenant.ErrInvalidClock)
	})

	t.Run("invalid passive range", func(t *testing.T) {
		body := "server:\n  passive_port_start: 40000\n  passive_port_end: 39999\n" +
			"storage:\n  root: /srv\ntenants:\n  a:\n    ftp_user: u\n    ftp_pass: p\n"
		_, err := Load(writeConfig(t, "config.yaml", body))
		assert.Error(t, err)
	})

	t.Run("unknown log level", func(t *testing.T) {
		body := "log:\n  level: loud\nstorage:\n  root: /srv\ntenants:\n  a:\n    ftp_user: u\n    ftp_pass: p\n"
		_, err := Load(writeConfig(t, "config.yaml", body))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
