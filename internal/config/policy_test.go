package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/cycle-tracker/internal/cycle"
)

func writePolicy(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicy_Valid(t *testing.T) {
	path := writePolicy(t, t.TempDir(), `
prediction:
  enabled: false
  window_days: 7
  history_cycles: 6
  require_completed_cycle: true
`)
	cfg, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, cycle.Policy{
		Enabled:               false,
		WindowDays:            7,
		HistoryCycles:         6,
		DefaultCycleDays:      cycle.DefaultCycleLengthDays,
		RequireCompletedCycle: true,
	}, cfg.Policy())
}

func TestLoadPolicy_Defaults(t *testing.T) {
	path := writePolicy(t, t.TempDir(), "prediction: {}\n")
	cfg, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, cycle.DefaultPolicy(), cfg.Policy())
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := map[string]string{
		"window too wide":  "prediction:\n  window_days: 30\n",
		"zero history":     "prediction:\n  history_cycles: 0\n",
		"negative default": "prediction:\n  default_cycle_days: -1\n",
		"not yaml":         "prediction: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, t.TempDir(), body))
			assert.Error(t, err)
		})
	}

	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchPolicy_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "prediction:\n  window_days: 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *PredictionConfig, 16)
	done := make(chan error, 1)
	go func() {
		done <- WatchPolicy(ctx, path, func(cfg *PredictionConfig) { changes <- cfg })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	// An invalid write is ignored; the valid one after it is delivered.
	require.NoError(t, os.WriteFile(path, []byte("prediction:\n  window_days: 99\n"), 0o600))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("prediction:\n  window_days: 7\n"), 0o600))

	// A write can surface as several events (truncate, then data), so wait
	// for the final content rather than the first callback.
	deadline := time.After(3 * time.Second)
	for seen := false; !seen; {
		select {
		case cfg := <-changes:
			assert.NotEqual(t, 99, cfg.Prediction.WindowDays)
			seen = cfg.Prediction.WindowDays == 7
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
