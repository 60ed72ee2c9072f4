package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/hearth-cms/hearth/internal/testing/guard"
)

func setSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("GRANT_SECRET", "grant")
}

func TestLoadConfigDefaults(t *testing.T) {
	setSecrets(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, time.Hour, cfg.GrantTTL)
	assert.Equal(t, 4*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10, cfg.RateLimitUnlock)
	assert.Equal(t, "./var/uploads", cfg.UploadDir)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("GRANT_SECRET", "grant")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateRejectsSharedGrantSecret(t *testing.T) {
	setSecrets(t)
	t.Setenv("GRANT_SECRET", "session")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "grant secret")
}

func TestValidateRejectsWeakCost(t *testing.T) {
	setSecrets(t)
	t.Setenv("CREDENTIAL_COST", "2")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "credential cost")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		assert.Equal(t, want, parseLevel(&Config{LogLevel: raw}), raw)
	}
	assert.Equal(t, slog.LevelInfo, parseLevel(nil))
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}
