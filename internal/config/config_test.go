package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_ADDR", "WEBHOOK_SECRET", "DB_DSN", "DEV_MODE",
		"WS_ORIGIN", "INITIAL_BALANCE", "CURRENCY", "STORAGE_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("WEBHOOK_SECRET", "s")
	t.Setenv("DB_DSN", "postgres://localhost/paperledger")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "*", c.WebSocketOrigin)
	assert.Equal(t, "INR", c.Currency)
	assert.True(t, c.InitialBalance.String() == "1000000")
	assert.Equal(t, 5*time.Second, c.StorageTimeout)
	assert.False(t, c.DevMode)
}

func TestLoadMissingRequired(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_ADDR")
	assert.Contains(t, err.Error(), "WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoadDevModeSkipsDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("WEBHOOK_SECRET", "s")
	t.Setenv("DEV_MODE", "true")

	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.DevMode)
	assert.Empty(t, c.DBDSN)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("WEBHOOK_SECRET", "s")
	t.Setenv("DEV_MODE", "1")
	t.Setenv("INITIAL_BALANCE", "250000.50")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("STORAGE_TIMEOUT", "2s")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "250000.5", c.InitialBalance.String())
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, 2*time.Second, c.StorageTimeout)
}

func TestLoadInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("WEBHOOK_SECRET", "s")
	t.Setenv("DEV_MODE", "true")

	t.Setenv("INITIAL_BALANCE", "-5")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("INITIAL_BALANCE", "")
	t.Setenv("STORAGE_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("STORAGE_TIMEOUT", "")
	t.Setenv("DEV_MODE", "maybe")
	_, err = Load()
	assert.Error(t, err)
}
