// Package config loads monorel configuration from defaults, an optional YAML
// file, MONOREL_* environment variables, the GitHub Actions environment and
// command line flags, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/monorel/pkg/hosted"
	"github.com/Sumatoshi-tech/monorel/pkg/observability"
	"github.com/Sumatoshi-tech/monorel/pkg/release"
)

// Sentinel validation errors.
var (
	ErrInvalidTagFormat  = errors.New("invalid tag format")
	ErrInvalidTagBackend = errors.New("tag backend must be hosted or local")
	ErrInvalidWorkers    = errors.New("workers must not be negative")
	ErrInvalidLogLevel   = errors.New("invalid log level")
	ErrInvalidLogFormat  = errors.New("log format must be text or json")
	ErrInvalidFilter     = errors.New("invalid path filter")
	ErrInvalidRepository = errors.New("invalid repository")
)

const (
	envPrefix      = "MONOREL"
	configName     = "monorel"
	configFileType = "yaml"
)

// Config holds all configuration for a monorel run.
type Config struct {
	Repository RepositoryConfig `mapstructure:"repository"`
	Diff       DiffConfig       `mapstructure:"diff"`
	Packages   PackagesConfig   `mapstructure:"packages"`
	Changeset  ChangesetConfig  `mapstructure:"changeset"`
	Tag        TagConfig        `mapstructure:"tag"`
	Deploy     DeployConfig     `mapstructure:"deploy"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	// DryRun runs existence checks but reports mutations as planned.
	DryRun bool `mapstructure:"dry_run"`
	// Actions is true inside a GitHub Actions workflow.
	Actions bool `mapstructure:"actions"`
}

// RepositoryConfig locates the local checkout and the hosted repository.
type RepositoryConfig struct {
	Path   string `mapstructure:"path"`
	Slug   string `mapstructure:"slug"`
	APIURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`
}

// DiffConfig selects the changed paths.
type DiffConfig struct {
	Head   string `mapstructure:"head"`
	Base   string `mapstructure:"base"`
	Filter string `mapstructure:"filter"`
	// Paths, when set, replaces the diff with a pre-computed list.
	Paths []string `mapstructure:"paths"`
}

// PackagesConfig controls affected package discovery.
type PackagesConfig struct {
	ManifestFile string   `mapstructure:"manifest_file"`
	IgnoredFiles []string `mapstructure:"ignored_files"`
	Ignored      []string `mapstructure:"ignored"`
	Workers      int      `mapstructure:"workers"`
}

// ChangesetConfig controls pending release records.
type ChangesetConfig struct {
	Dir string `mapstructure:"dir"`
	// Commit is the commit whose message is the intent.
	Commit string `mapstructure:"commit"`
	// Intent overrides the commit message.
	Intent string `mapstructure:"intent"`
}

// TagConfig controls tag creation.
type TagConfig struct {
	Scope   string `mapstructure:"scope"`
	Format  string `mapstructure:"format"`
	Backend string `mapstructure:"backend"`
	// Target is the commit the tags point at.
	Target string `mapstructure:"target"`
	// RequireBump skips tagging when the intent classifies as none.
	RequireBump bool `mapstructure:"require_bump"`
}

// DeployConfig controls deployment pull requests.
type DeployConfig struct {
	Environment string `mapstructure:"environment"`
	// Ref is the triggering ref; refs/heads/ is stripped to get the head branch.
	Ref string `mapstructure:"ref"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds telemetry export configuration.
type MetricsConfig struct {
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string  `mapstructure:"otlp_headers"`
	OTLPInsecure   bool    `mapstructure:"otlp_insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	PushgatewayURL string  `mapstructure:"pushgateway_url"`
	PushJob        string  `mapstructure:"push_job"`
	// DebugTrace samples every trace. Debug logging implies it.
	DebugTrace bool `mapstructure:"debug_trace"`
}

// envBindings maps config keys to the external environment variables that
// feed them, in priority order. The MONOREL_ variable always comes first.
var envBindings = map[string][]string{
	"repository.slug":       {"GITHUB_REPOSITORY"},
	"repository.api_url":    {"GITHUB_API_URL"},
	"repository.token":      {"INPUT_TOKEN", "GITHUB_TOKEN"},
	"diff.head":             {"INPUT_HEAD"},
	"diff.base":             {"INPUT_BASE"},
	"diff.filter":           {"INPUT_FILTER"},
	"diff.paths":            {"INPUT_PATHS"},
	"packages.ignored":      {"INPUT_IGNOREDPACKAGES"},
	"changeset.commit":      {"GITHUB_SHA"},
	"tag.scope":             {"INPUT_PACKAGESCOPE"},
	"tag.target":            {"GITHUB_SHA"},
	"deploy.environment":    {"INPUT_ENVIRONMENTNAME"},
	"deploy.ref":            {"GITHUB_REF"},
	"metrics.otlp_endpoint": {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"metrics.otlp_headers":  {"OTEL_EXPORTER_OTLP_HEADERS"},
	"metrics.debug_trace":   {"RUNNER_DEBUG"},
	"actions":               {"GITHUB_ACTIONS"},
}

// Option customizes LoadConfig.
type Option func(*viper.Viper) error

// WithFlags binds command line flags to config keys. bindings maps flag
// names to keys; flags missing from fs are skipped.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) Option {
	return func(v *viper.Viper) error {
		for flagName, key := range bindings {
			flag := fs.Lookup(flagName)
			if flag == nil {
				continue
			}

			err := v.BindPFlag(key, flag)
			if err != nil {
				return fmt.Errorf("bind flag %s: %w", flagName, err)
			}
		}

		return nil
	}
}

// LoadConfig loads configuration. An empty configPath searches for
// monorel.yaml in the working directory and in .github.
func LoadConfig(configPath string, opts ...Option) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType(configFileType)
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./.github")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err := bindEnvs(viperCfg)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		err = opt(viperCfg)
		if err != nil {
			return nil, err
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToListHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("repository.path", DefaultRepositoryPath)

	viperCfg.SetDefault("diff.head", DefaultDiffHead)
	viperCfg.SetDefault("diff.base", DefaultDiffBase)

	viperCfg.SetDefault("packages.manifest_file", DefaultManifestFile)
	viperCfg.SetDefault("packages.ignored_files", DefaultIgnoredFiles)
	viperCfg.SetDefault("packages.workers", DefaultPackagesWorkers)

	viperCfg.SetDefault("changeset.dir", DefaultChangesetDir)

	viperCfg.SetDefault("tag.format", DefaultTagFormat)
	viperCfg.SetDefault("tag.backend", DefaultTagBackend)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("metrics.push_job", DefaultPushJob)

	// Keys without a meaningful default are registered so that values coming
	// only from MONOREL_* variables are unmarshaled.
	for _, key := range []string{"changeset.intent", "metrics.pushgateway_url"} {
		viperCfg.SetDefault(key, "")
	}

	for _, key := range []string{"dry_run", "tag.require_bump", "metrics.otlp_insecure", "metrics.debug_trace"} {
		viperCfg.SetDefault(key, false)
	}

	viperCfg.SetDefault("metrics.sample_ratio", 0.0)
}

func bindEnvs(viperCfg *viper.Viper) error {
	for key, names := range envBindings {
		own := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))

		err := viperCfg.BindEnv(append([]string{key, own}, names...)...)
		if err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	return nil
}

// stringToListHook decodes a string into []string. A value starting with "["
// is parsed as a JSON array; anything else is split on commas and newlines.
func stringToListHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeFor[[]string]() {
			return data, nil
		}

		return ParseList(data.(string))
	}
}

// ParseList parses a JSON array of strings or a comma or newline separated
// list. Blank entries are dropped.
func ParseList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}, nil
	}

	if strings.HasPrefix(raw, "[") {
		var list []string

		err := json.Unmarshal([]byte(raw), &list)
		if err != nil {
			return nil, fmt.Errorf("parse list %q: %w", raw, err)
		}

		return list, nil
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })
	list := make([]string, 0, len(fields))

	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			list = append(list, field)
		}
	}

	return list, nil
}

func validateConfig(config *Config) error {
	if config.Packages.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Packages.Workers)
	}

	_, err := release.ParseTagFormat(config.Tag.Format)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTagFormat, config.Tag.Format)
	}

	if config.Tag.Backend != TagBackendHosted && config.Tag.Backend != TagBackendLocal {
		return fmt.Errorf("%w: %q", ErrInvalidTagBackend, config.Tag.Backend)
	}

	_, err = observability.ParseLogLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if config.Logging.Format != LogFormatText && config.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	_, err = config.FilterPattern()
	if err != nil {
		return err
	}

	if config.Repository.Slug != "" {
		_, err = hosted.ParseRepo(config.Repository.Slug)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRepository, err)
		}
	}

	return nil
}

// FilterPattern compiles Diff.Filter. It returns nil when no filter is set.
func (c *Config) FilterPattern() (*regexp.Regexp, error) {
	if c.Diff.Filter == "" {
		return nil, nil //nolint:nilnil // no filter configured.
	}

	pattern, err := regexp.Compile(c.Diff.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	return pattern, nil
}

// Repo parses Repository.Slug.
func (c *Config) Repo() (hosted.Repo, error) {
	repo, err := hosted.ParseRepo(c.Repository.Slug)
	if err != nil {
		return hosted.Repo{}, fmt.Errorf("%w: %w", ErrInvalidRepository, err)
	}

	return repo, nil
}

// Observability derives the telemetry configuration for a binary version.
func (c *Config) Observability(version string) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version
	obs.Environment = c.Deploy.Environment
	obs.OTLPEndpoint = c.Metrics.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(c.Metrics.OTLPHeaders)
	obs.OTLPInsecure = c.Metrics.OTLPInsecure
	obs.SampleRatio = c.Metrics.SampleRatio
	obs.PushgatewayURL = c.Metrics.PushgatewayURL
	obs.PushJob = c.Metrics.PushJob
	obs.LogJSON = c.Logging.Format == LogFormatJSON

	if level, err := observability.ParseLogLevel(c.Logging.Level); err == nil {
		obs.LogLevel = level
	}

	obs.DebugTrace = c.Metrics.DebugTrace || obs.LogLevel == slog.LevelDebug

	if c.Actions {
		obs.Mode = observability.ModeAction
	}

	return obs
}
