//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTuning_Defaults(t *testing.T) {
	tun, err := LoadTuning("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning().Bandit, tun.Bandit)
	assert.Less(t, tun.Queue.ExecTimeout, tun.Queue.ClaimLease)
}

func TestLoadTuning_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bandit:
  kill_threshold: 0.2
  proxy_curve: exponential
queue:
  jitter_min: 5s
  max_attempts: 7
loop:
  loop_interval: 1m
`), 0o600))

	t.Setenv("KILL_THRESHOLD", "0.3")
	t.Setenv("JITTER_MAX_MS", "45000")
	t.Setenv("LOOP_INTERVAL", "90s")

	tun, err := LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, tun.Bandit.KillThreshold, "env wins over file")
	assert.Equal(t, "exponential", string(tun.Bandit.ProxyCurve))
	assert.Equal(t, 5*time.Second, tun.Queue.JitterMin)
	assert.Equal(t, 45*time.Second, tun.Queue.JitterMax)
	assert.Equal(t, 7, tun.Queue.MaxAttempts)
	assert.Equal(t, 90*time.Second, tun.Loop.LoopInterval)
}

func TestLoadTuning_FatigueModeFollowsBandit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bandit:
  mode: direct
fatigue:
  mode: pipeline
  min_points: 4
`), 0o600))

	tun, err := LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, "direct", string(tun.Bandit.Mode))
	assert.Equal(t, "direct", tun.Fatigue.Mode, "fatigue has no mode of its own")
	assert.Equal(t, 4, tun.Fatigue.MinPoints)

	t.Setenv("ALLOCATION_MODE", "pipeline")
	tun, err = LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", string(tun.Bandit.Mode))
	assert.Equal(t, "pipeline", tun.Fatigue.Mode)

	t.Setenv("ALLOCATION_MODE", "hybrid")
	_, err = LoadTuning(path)
	assert.Error(t, err)
}

func TestLoadTuning_RejectsInvalid(t *testing.T) {
	t.Setenv("KILL_THRESHOLD", "1.5")
	_, err := LoadTuning("")
	assert.Error(t, err)

	t.Setenv("KILL_THRESHOLD", "abc")
	_, err = LoadTuning("")
	assert.Error(t, err)
}

func TestLoad_MemoryDriverNeedsNoDatabase(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DB_PASSWORD", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 10*time.Second, cfg.Platform.Timeout)

	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err = Load()
	assert.Error(t, err)
}
