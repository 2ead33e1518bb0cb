package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "MELCHAT_BASE_URL"
	EnvModel   = "MELCHAT_MODEL"
)

// DirName is the state directory under the home directory and the repo
// config directory name.
const DirName = ".melchat"

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// DefaultSystemPrompt steers the model toward emitting inject arrays.
const DefaultSystemPrompt = `You are an assistant that designs crisis management exercises.
You help the user write a Message Exercise List (MEL): an ordered list of injects, each one a
simulated communication sent to exercise participants. Every inject has the fields Number,
Serial, Time, From, Faction, To, Method, Subject and Message. Serial names the event or phase
the inject belongs to, and To is normally "All".

When the user asks for new or changed injects, call update_mel_merge with only the injects that
change (addressed by Number), or update_mel_replace with the complete list when rewriting the
whole exercise. Never renumber injects you were not asked to touch.`

// Config holds application configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible API root, without /chat/completions.
	BaseURL string `json:"base_url,omitempty"`

	Model string `json:"model,omitempty"`

	// Temperature is sent only when non-zero.
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is sent only when non-zero.
	MaxTokens int `json:"max_tokens,omitempty"`

	// SystemPrompt is used when a chat request does not carry its own.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// DisableStructuredOutput omits the json_schema response_format from
	// upstream requests, for providers that reject it.
	DisableStructuredOutput bool `json:"disable_structured_output,omitempty"`

	// DisableTools omits the update_mel_* function tools from upstream requests.
	DisableTools bool `json:"disable_tools,omitempty"`

	// UpstreamTimeoutSeconds bounds each chat-completion call. 0 means no timeout.
	UpstreamTimeoutSeconds int `json:"upstream_timeout_seconds,omitempty"`

	// HistoryLimit caps the version history kept per session.
	// Negative means unbounded.
	HistoryLimit int `json:"history_limit,omitempty"`

	// Store selects the session backend: "memory" (default) or "sqlite".
	Store string `json:"store,omitempty"`

	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// AllowedOrigins lists CORS origins for the JSON API. Empty allows none.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// Debug switches to a development console logger.
	Debug bool `json:"debug,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.melchat/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "mel", "session". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// APIKey comes from the environment only and is never written to disk.
	APIKey string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o",
		SystemPrompt: DefaultSystemPrompt,
		HistoryLimit: 100,
		Store:        StoreMemory,
		Bind:         "127.0.0.1",
		Port:         8080,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.melchat.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.melchat) and repo (.melchat) directories.
// Repo config is found by walking upward from startDir to find the nearest .melchat/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .melchat/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overlays environment settings onto cfg.
// getenv is os.Getenv outside tests.
func ApplyEnv(cfg *Config, getenv func(string) string) *Config {
	if v := strings.TrimSpace(getenv(EnvAPIKey)); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		cfg.Model = v
	}
	return cfg
}

// EffectiveHistoryLimit converts HistoryLimit into the value session.Record expects:
// positive caps the history, anything else is unbounded.
func (c *Config) EffectiveHistoryLimit() int {
	if c.HistoryLimit < 0 {
		return 0
	}
	return c.HistoryLimit
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.BaseURL = pick(overlay.BaseURL, base.BaseURL)
	result.Model = pick(overlay.Model, base.Model)
	result.SystemPrompt = pick(overlay.SystemPrompt, base.SystemPrompt)
	result.Store = pick(overlay.Store, base.Store)
	result.Bind = pick(overlay.Bind, base.Bind)
	result.APIKey = pick(overlay.APIKey, base.APIKey)
	result.Temperature = pick(overlay.Temperature, base.Temperature)
	result.MaxTokens = pick(overlay.MaxTokens, base.MaxTokens)
	result.UpstreamTimeoutSeconds = pick(overlay.UpstreamTimeoutSeconds, base.UpstreamTimeoutSeconds)
	result.HistoryLimit = pick(overlay.HistoryLimit, base.HistoryLimit)
	result.Port = pick(overlay.Port, base.Port)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.DisableStructuredOutput = base.DisableStructuredOutput || overlay.DisableStructuredOutput
	result.DisableTools = base.DisableTools || overlay.DisableTools
	result.Debug = base.Debug || overlay.Debug
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedOrigins = mergeStringSlice(base.AllowedOrigins, overlay.AllowedOrigins)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
