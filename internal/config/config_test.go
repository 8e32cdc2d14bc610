package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE_DRIVER", "DATABASE_URL", "BACKEND_URL", "ROLLOVER_AT",
		"HTTP_TIMEOUT", "SESSION_TTL", "SUMMARY_CACHE_TTL", "STORE_MAX_AGE", "BACKEND_PAGE_SIZE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "00:05", cfg.RolloverAt)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, time.Duration(0), cfg.StoreMaxAge)
	assert.Equal(t, 1000, cfg.BackendPageSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", DriverRemote)
	t.Setenv("BACKEND_URL", "https://backend.example")
	t.Setenv("ROLLOVER_AT", "23:30")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("BACKEND_PAGE_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "https://backend.example", cfg.BackendURL)
	assert.Equal(t, "23:30", cfg.RolloverAt)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 1000, cfg.BackendPageSize, "malformed ints fall back to the default")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "redis"}},
		{"postgres without url", map[string]string{"STORE_DRIVER": DriverPostgres, "DATABASE_URL": ""}},
		{"remote without url", map[string]string{"STORE_DRIVER": DriverRemote, "BACKEND_URL": ""}},
		{"bad rollover", map[string]string{"STORE_DRIVER": DriverMemory, "ROLLOVER_AT": "25:99"}},
		{"bad duration", map[string]string{"STORE_DRIVER": DriverMemory, "HTTP_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ROLLOVER_AT", "")
			t.Setenv("HTTP_TIMEOUT", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
