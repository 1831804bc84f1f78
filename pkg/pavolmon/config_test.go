package pavolmon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func loadTestConfig(t *testing.T, yaml string) (*ConfigManager, zap.AtomicLevel, error) {
	t.Helper()

	dir := t.TempDir()
	if yaml != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	cc, err := NewConfig(zap.NewNop().Sugar(), level, dir)
	require.NoError(t, err)

	return cc, level, cc.Load()
}

func TestConfig_Defaults(t *testing.T) {
	cc, level, err := loadTestConfig(t, "")
	require.NoError(t, err)

	config := cc.Current()
	assert.Equal(t, FormatPercent, config.Format)
	assert.Equal(t, DefaultLabels, config.Labels)
	assert.Equal(t, "pavolmon", config.ClientName)
	assert.Equal(t, "", config.Server)
	assert.Equal(t, 30*time.Second, config.ConnectTimeout)
	assert.Equal(t, time.Second, config.ConnectRetryInterval)
	assert.Equal(t, 5*time.Second, config.RequestTimeout)
	assert.Equal(t, 5*time.Second, config.ProbeInterval)
	assert.False(t, config.NotifyOnFailure)
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}

func TestConfig_File(t *testing.T) {
	cc, level, err := loadTestConfig(t, `
format: Bars
log_level: debug
request_timeout: 750ms
notify_on_failure: true
labels:
  speaker: "🔊"
  speaker_muted: "🔇"
`)
	require.NoError(t, err)

	config := cc.Current()
	assert.Equal(t, FormatBars, config.Format)
	assert.Equal(t, 750*time.Millisecond, config.RequestTimeout)
	assert.True(t, config.NotifyOnFailure)
	assert.Equal(t, Labels{Speaker: "🔊", SpeakerMuted: "🔇", Mic: "MIC+", MicMuted: "MIC-"}, config.Labels)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	opts := config.PulseOptions()
	assert.Equal(t, 750*time.Millisecond, opts.RequestTimeout)
	assert.Equal(t, "pavolmon", opts.ClientName)
}

func TestConfig_EnvOverride(t *testing.T) {
	t.Setenv("PAVOLMON_FORMAT", "blocks")
	t.Setenv("PAVOLMON_LABELS_MIC", "mic:")
	t.Setenv("PAVOLMON_SERVER", "unix:/run/user/1000/pulse/native")

	cc, _, err := loadTestConfig(t, "format: bars\n")
	require.NoError(t, err)

	config := cc.Current()
	assert.Equal(t, FormatBlocks, config.Format)
	assert.Equal(t, "mic:", config.Labels.Mic)
	assert.Equal(t, "unix:/run/user/1000/pulse/native", config.Server)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown format", "format: sparkline\n"},
		{"unknown log level", "log_level: chatty\n"},
		{"zero request timeout", "request_timeout: 0s\n"},
		{"negative probe interval", "probe_interval: -1s\n"},
		{"broken yaml", "format: [bars\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := loadTestConfig(t, tt.yaml)
			require.Error(t, err)
		})
	}
}

func TestConfig_StopWithoutWatching(t *testing.T) {
	cc, _, err := loadTestConfig(t, "")
	require.NoError(t, err)

	// no config file, so this returns immediately
	cc.WatchConfigFileChanges()
	cc.StopWatchingConfigFile()
	cc.StopWatchingConfigFile()
}

func TestConfig_StopBeforeWatcherStarts(t *testing.T) {
	cc, _, err := loadTestConfig(t, "format: bars\n")
	require.NoError(t, err)

	cc.StopWatchingConfigFile()

	done := make(chan struct{})
	go func() {
		cc.WatchConfigFileChanges()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher kept running after being stopped")
	}
}

func TestConfig_WatchReappliesLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\nformat: bars\n"), 0o644))

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	cc, err := NewConfig(zap.NewNop().Sugar(), level, dir)
	require.NoError(t, err)
	require.NoError(t, cc.Load())

	done := make(chan struct{})
	go func() {
		cc.WatchConfigFileChanges()
		close(done)
	}()
	defer func() {
		cc.StopWatchingConfigFile()
		<-done
	}()

	// keep writing until the watcher is up and has seen one
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("log_level: debug\nformat: blocks\n"), 0o644)
		return level.Level() == zapcore.DebugLevel
	}, 10*time.Second, 100*time.Millisecond)

	// only the log level follows the file
	assert.Equal(t, FormatBars, cc.Current().Format)
}
