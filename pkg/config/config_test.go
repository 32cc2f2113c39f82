package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/monorel/pkg/config"
	"github.com/Sumatoshi-tech/monorel/pkg/observability"
)

// clearActionsEnv blanks the GitHub Actions variables so tests behave the
// same inside and outside a workflow. Empty variables are ignored by viper.
func clearActionsEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		"GITHUB_REPOSITORY", "GITHUB_API_URL", "GITHUB_TOKEN", "GITHUB_SHA", "GITHUB_REF", "GITHUB_ACTIONS",
		"INPUT_TOKEN", "INPUT_HEAD", "INPUT_BASE", "INPUT_FILTER", "INPUT_PATHS", "INPUT_IGNOREDPACKAGES",
		"INPUT_PACKAGESCOPE", "INPUT_ENVIRONMENTNAME",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS", "RUNNER_DEBUG",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "monorel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearActionsEnv(t)

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultRepositoryPath, cfg.Repository.Path)
	assert.Equal(t, config.DefaultDiffHead, cfg.Diff.Head)
	assert.Equal(t, config.DefaultDiffBase, cfg.Diff.Base)
	assert.Equal(t, config.DefaultManifestFile, cfg.Packages.ManifestFile)
	assert.Equal(t, config.DefaultIgnoredFiles, cfg.Packages.IgnoredFiles)
	assert.Equal(t, config.DefaultChangesetDir, cfg.Changeset.Dir)
	assert.Equal(t, config.DefaultTagFormat, cfg.Tag.Format)
	assert.Equal(t, config.TagBackendHosted, cfg.Tag.Backend)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, config.LogFormatText, cfg.Logging.Format)
	assert.Equal(t, config.DefaultPushJob, cfg.Metrics.PushJob)
	assert.Empty(t, cfg.Diff.Paths)
	assert.Empty(t, cfg.Repository.Token)
	assert.False(t, cfg.DryRun)
	assert.False(t, cfg.Actions)
	assert.False(t, cfg.Observability("").DebugTrace)
}

func TestLoadConfigFromFile(t *testing.T) {
	clearActionsEnv(t)

	path := writeConfig(t, `
repository:
  slug: acme/mono
diff:
  base: origin/main
  filter: "^pkgs/"
packages:
  ignored: ["@scope/internal"]
  ignored_files: [pnpm-lock.yaml]
  workers: 4
tag:
  scope: scope
  format: v
  backend: local
deploy:
  environment: prod
logging:
  level: debug
  format: json
metrics:
  pushgateway_url: http://pushgateway:9091
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "acme/mono", cfg.Repository.Slug)
	assert.Equal(t, "origin/main", cfg.Diff.Base)
	assert.Equal(t, []string{"@scope/internal"}, cfg.Packages.Ignored)
	assert.Equal(t, []string{"pnpm-lock.yaml"}, cfg.Packages.IgnoredFiles)
	assert.Equal(t, 4, cfg.Packages.Workers)
	assert.Equal(t, "v", cfg.Tag.Format)
	assert.Equal(t, config.TagBackendLocal, cfg.Tag.Backend)

	pattern, err := cfg.FilterPattern()
	require.NoError(t, err)
	assert.True(t, pattern.MatchString("pkgs/a/x.ts"))

	repo, err := cfg.Repo()
	require.NoError(t, err)
	assert.Equal(t, "acme", repo.Owner)

	obs := cfg.Observability("1.2.3")
	assert.Equal(t, slog.LevelDebug, obs.LogLevel)
	assert.True(t, obs.DebugTrace)
	assert.True(t, obs.LogJSON)
	assert.Equal(t, "prod", obs.Environment)
	assert.Equal(t, "1.2.3", obs.ServiceVersion)
	assert.Equal(t, "http://pushgateway:9091", obs.PushgatewayURL)
	assert.Equal(t, observability.ModeCLI, obs.Mode)
}

func TestLoadConfigValidation(t *testing.T) {
	clearActionsEnv(t)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"tag format", "tag:\n  format: dash\n", config.ErrInvalidTagFormat},
		{"tag backend", "tag:\n  backend: s3\n", config.ErrInvalidTagBackend},
		{"workers", "packages:\n  workers: -1\n", config.ErrInvalidWorkers},
		{"log level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"filter", "diff:\n  filter: \"(\"\n", config.ErrInvalidFilter},
		{"repository", "repository:\n  slug: acme\n", config.ErrInvalidRepository},
	}

	for _, tt := range tests {
		_, err := config.LoadConfig(writeConfig(t, tt.content))
		require.ErrorIs(t, err, tt.wantErr, tt.name)
	}
}

func TestLoadConfigUnreadableFile(t *testing.T) {
	clearActionsEnv(t)

	_, err := config.LoadConfig(writeConfig(t, "repository: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigSearchesWorkingDirectory(t *testing.T) {
	clearActionsEnv(t)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".github"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".github", "monorel.yaml"), []byte("tag:\n  scope: acme\n"), 0o600))

	t.Chdir(dir)

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Tag.Scope)
}

func TestFilterPatternEmpty(t *testing.T) {
	t.Parallel()

	pattern, err := (&config.Config{}).FilterPattern()
	require.NoError(t, err)
	assert.Nil(t, pattern)
}
