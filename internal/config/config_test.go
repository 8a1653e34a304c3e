package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 24*time.Hour, cfg.GetStalenessThreshold())
	assert.Equal(t, "00:00", cfg.Scheduler.DailyRunAt)
	assert.Equal(t, 2*time.Second, cfg.GetSourceDelay())
	assert.Equal(t, 30*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 4, cfg.Scheduler.MaxManualJobs)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
address: ":9090"
dataDir: /var/lib/mygap
stalenessThreshold: 12h
scheduler:
  dailyRunAt: "03:30"
  sourceDelay: 5s
  pollInterval: 10s
  maxManualJobs: 2
`)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, "/var/lib/mygap", cfg.DataDir)
	assert.Equal(t, 12*time.Hour, cfg.GetStalenessThreshold())
	assert.Equal(t, "03:30", cfg.Scheduler.DailyRunAt)
	assert.Equal(t, 5*time.Second, cfg.GetSourceDelay())
	assert.Equal(t, 10*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 2, cfg.Scheduler.MaxManualJobs)
}

func TestLoadConfigPartialFileGetsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
address: ":9191"
`)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, ":9191", cfg.Address)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultStalenessThreshold, cfg.GetStalenessThreshold())
	assert.Equal(t, DefaultPollInterval, cfg.GetPollInterval())
	assert.Equal(t, DefaultMaxManualJobs, cfg.Scheduler.MaxManualJobs)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "address: [not closed",
			wantErr: "failed to parse YAML config",
		},
		{
			name:    "bad daily run time",
			content: "scheduler:\n  dailyRunAt: \"25:99\"\n",
			wantErr: "dailyRunAt",
		},
		{
			name:    "bad staleness threshold",
			content: "stalenessThreshold: soon\n",
			wantErr: "stalenessThreshold",
		},
		{
			name:    "negative staleness threshold",
			content: "stalenessThreshold: -1h\n",
			wantErr: "must be positive",
		},
		{
			name:    "negative source delay",
			content: "scheduler:\n  sourceDelay: -2s\n",
			wantErr: "sourceDelay",
		},
		{
			name:    "bad poll interval",
			content: "scheduler:\n  pollInterval: often\n",
			wantErr: "pollInterval",
		},
		{
			name:    "negative max manual jobs",
			content: "scheduler:\n  maxManualJobs: -1\n",
			wantErr: "maxManualJobs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfigFile(t, tt.content)
			_, err := LoadConfig(WithConfigPath(path))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
}

func TestLoadConfigRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	tod, err := ParseTimeOfDay("14:45")
	require.NoError(t, err)
	assert.Equal(t, 14, tod.Hour)
	assert.Equal(t, 45, tod.Minute)
	assert.Equal(t, "14:45", tod.String())

	_, err = ParseTimeOfDay("midnight")
	require.Error(t, err)

	_, err = ParseTimeOfDay("24:00")
	require.Error(t, err)
}

func TestTimeOfDayNext(t *testing.T) {
	t.Parallel()

	tod := TimeOfDay{Hour: 0, Minute: 0}
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	next := tod.Next(now)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), next)

	// Exactly on the mark schedules the following day
	atMidnight := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), tod.Next(atMidnight))

	// A later time-of-day today is still ahead
	afternoon := TimeOfDay{Hour: 15, Minute: 0}
	assert.Equal(t, time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC), afternoon.Next(now))
}
