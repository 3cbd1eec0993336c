package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeTestConfig(t *testing.T, dbPath, summaryPath string) string {
	t.Helper()
	content := fmt.Sprintf(`
[crawler]
max_depth = 2
max_concurrent_pages_open = 5
min_time_on_page_ms = 100
max_domain_requests = 1000

[user_agent]
name = "sumiripple-test"
version = "1.0"
contact_url = "https://example.com/bot"
contact_email = "bot@example.com"

[output]
database_path = %q
summary_path = %q

[[quality]]
domain = "example.com"
seeds = ["https://example.com/"]
`, dbPath, summaryPath)

	path := filepath.Join(t.TempDir(), "sumiripple.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func resetFlags() {
	fresh = false
	resume = true
	dryRun = false
	showStats = false
	exportSummary = false
	verboseCount = 0
	quiet = false
}

func TestRun_DryRunValidatesWithoutCrawling(t *testing.T) {
	resetFlags()
	defer resetFlags()

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, filepath.Join(dir, "test.db"), filepath.Join(dir, "summary.md"))

	dryRun = true
	err := run(rootCmd, cfgPath)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "test.db"))
	assert.True(t, os.IsNotExist(statErr), "dry-run must not open the store")
}

func TestRun_MissingConfigFileIsConfigError(t *testing.T) {
	resetFlags()
	defer resetFlags()

	err := run(rootCmd, filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errConfig))
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"config", fmt.Errorf("wrap: %w", errConfig), exitConfigError},
		{"storage", fmt.Errorf("wrap: %w", errStorage), exitStorageError},
		{"interrupted", fmt.Errorf("wrap: %w", errInterrupted), exitInterrupted},
		{"unknown", errors.New("boom"), exitStorageError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}

func TestNewLogger_LevelsByVerbosity(t *testing.T) {
	logger, err := newLogger(0, false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = newLogger(1, false)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = newLogger(0, true)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}
