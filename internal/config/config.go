// Package config loads and validates the cachesync configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Repo      RepoConfig     `yaml:"repo"`
	Provision []Step         `yaml:"provision,omitempty"`
	Builder   BuilderConfig  `yaml:"builder"`
	API       APIConfig      `yaml:"api"`
	Schedule  ScheduleConfig `yaml:"schedule"`
	Daemon    DaemonConfig   `yaml:"daemon"`
	Notify    NotifyConfig   `yaml:"notify"`
}

// RepoConfig describes the repository the API files are published to.
type RepoConfig struct {
	Path          string   `yaml:"path"`
	Branch        string   `yaml:"branch,omitempty"`
	Remote        string   `yaml:"remote,omitempty"`
	Committer     Identity `yaml:"committer,omitempty"`
	CommitMessage string   `yaml:"commit_message,omitempty"`
}

// Identity is the fixed committer identity used for every sync commit.
type Identity struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Step is an opaque collaborator command run before the cache builder
// (environment provisioning, style assets, default settings).
type Step struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
}

// BuilderConfig describes the target application's cache-build invocation
// and how completion is detected.
type BuilderConfig struct {
	Command    string     `yaml:"command"`
	Args       []string   `yaml:"args,omitempty"`
	Dir        string     `yaml:"dir,omitempty"`
	CacheDir   string     `yaml:"cache_dir"`
	Sentinel   string     `yaml:"sentinel,omitempty"` // file inside cache_dir marking completion
	WaitBudget Duration   `yaml:"wait_budget,omitempty"`
	Poll       PollConfig `yaml:"poll,omitempty"`
}

// PollConfig tunes the sentinel polling backoff.
type PollConfig struct {
	Mode    string   `yaml:"mode,omitempty"` // fixed|linear|exponential
	Initial Duration `yaml:"initial,omitempty"`
	Max     Duration `yaml:"max,omitempty"`
}

// APIConfig maps cache artifacts to committable API files.
type APIConfig struct {
	Dir   string            `yaml:"dir,omitempty"`   // relative to repo.path
	Files map[string]string `yaml:"files,omitempty"` // cache file -> API file

	// Optional external conversion command; when set it replaces the
	// built-in merge and must exit zero.
	SyncCommand string   `yaml:"sync_command,omitempty"`
	SyncArgs    []string `yaml:"sync_args,omitempty"`
}

// ScheduleConfig controls the recurring trigger.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron,omitempty"`
}

// DaemonConfig controls the daemon's HTTP surface and run history.
type DaemonConfig struct {
	Listen    string `yaml:"listen,omitempty"`
	HistoryDB string `yaml:"history_db,omitempty"`
}

// NotifyConfig controls optional NATS publication of run outcomes.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Duration wraps time.Duration with YAML string parsing ("7m", "30s").
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env / .env.local if present; existing env vars win.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			break
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills zero values with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Branch == "" {
		c.Repo.Branch = "main"
	}
	if c.Repo.Remote == "" {
		c.Repo.Remote = "origin"
	}
	if c.Repo.Committer.Name == "" {
		c.Repo.Committer.Name = "cachesync-bot"
	}
	if c.Repo.Committer.Email == "" {
		c.Repo.Committer.Email = "cachesync-bot@noreply.localhost"
	}
	if c.Repo.CommitMessage == "" {
		c.Repo.CommitMessage = "Update cached API files"
	}
	if len(c.Builder.Args) == 0 {
		c.Builder.Args = []string{"--build-cache"}
	}
	if c.Builder.WaitBudget <= 0 {
		c.Builder.WaitBudget = Duration(7 * time.Minute)
	}
	if c.Builder.Poll.Mode == "" {
		c.Builder.Poll.Mode = "exponential"
	}
	if c.Builder.Poll.Initial <= 0 {
		c.Builder.Poll.Initial = Duration(2 * time.Second)
	}
	if c.Builder.Poll.Max <= 0 {
		c.Builder.Poll.Max = Duration(30 * time.Second)
	}
	if c.API.Dir == "" {
		c.API.Dir = "source/resources/api"
	}
	if len(c.API.Files) == 0 && c.API.SyncCommand == "" {
		c.API.Files = DefaultAPIFiles()
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 5 * * 1" // Mondays 05:00
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":9180"
	}
	if c.Daemon.HistoryDB == "" {
		c.Daemon.HistoryDB = "cachesync.db"
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "cachesync.runs"
	}
}

// DefaultAPIFiles returns the per-platform stable builds mapping.
func DefaultAPIFiles() map[string]string {
	return map[string]string{
		"stable_builds_linux.json":   "stable_builds_api_linux.json",
		"stable_builds_Windows.json": "stable_builds_api_windows.json",
		"stable_builds_macOS.json":   "stable_builds_api_macos.json",
	}
}

// Validate checks required fields and basic invariants.
func (c *Config) Validate() error {
	if c.Repo.Path == "" {
		return fmt.Errorf("repo.path is required")
	}
	if c.Builder.Command == "" {
		return fmt.Errorf("builder.command is required")
	}
	if c.Builder.CacheDir == "" && c.API.SyncCommand == "" {
		return fmt.Errorf("builder.cache_dir is required unless api.sync_command is set")
	}
	for i, step := range c.Provision {
		if step.Command == "" {
			return fmt.Errorf("provision[%d]: command is required", i)
		}
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("notify.url is required when notify.enabled is true")
	}
	return nil
}
