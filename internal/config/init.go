package config

import (
	"fmt"
	"os"
)

const defaultConfigTemplate = `# cachesync configuration

repo:
  path: .                       # repository holding the committed API files
  branch: main
  remote: origin
  committer:
    name: cachesync-bot
    email: cachesync-bot@noreply.localhost
  commit_message: Update cached API files

# Opaque collaborator commands run before the cache builder.
# Every step must exit zero or the run fails.
provision:
  - name: install project
    command: pip
    args: ["install", "-e", "."]
  - name: build style assets
    command: python
    args: ["build_style.py"]
  - name: apply default settings
    command: python
    args: ["apply_default_settings.py"]

builder:
  command: ./launcher           # target application entrypoint
  args: ["--build-cache"]
  cache_dir: ${HOME}/.cache/launcher
  # sentinel: cache_complete    # optional completion marker inside cache_dir
  wait_budget: 7m

api:
  dir: source/resources/api
  # files:                      # cache file -> API file (defaults to the
  #   stable_builds_linux.json: stable_builds_api_linux.json
  # per-platform stable builds mapping)

schedule:
  enabled: true
  cron: "0 5 * * 1"             # weekly, Mondays 05:00

daemon:
  listen: ":9180"
  history_db: cachesync.db

notify:
  enabled: false
  # url: nats://localhost:4222
  # subject: cachesync.runs
`

// Init writes a commented default configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
