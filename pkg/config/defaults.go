package config

// Repository defaults.
const (
	DefaultRepositoryPath = "."
)

// Diff defaults.
const (
	DefaultDiffHead = "HEAD"
	DefaultDiffBase = "HEAD~1"
)

// Package discovery defaults.
const (
	DefaultManifestFile    = "package.json"
	DefaultPackagesWorkers = 0
)

// DefaultIgnoredFiles are lockfiles that never attribute a change to a package.
var DefaultIgnoredFiles = []string{"package-lock.json", "yarn.lock"}

// Changeset defaults.
const (
	DefaultChangesetDir = ".changeset"
)

// Tag defaults.
const (
	DefaultTagFormat  = "slash"
	DefaultTagBackend = TagBackendHosted
)

// Tag backends.
const (
	// TagBackendHosted creates refs through the hosted repository API.
	TagBackendHosted = "hosted"
	// TagBackendLocal creates refs in the local repository.
	TagBackendLocal = "local"
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = LogFormatText
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Metrics defaults.
const (
	DefaultPushJob = "monorel"
)
