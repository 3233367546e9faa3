// Package syncer rewrites the repository's API files from the cache
// artifacts the builder produced.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/cachesync/internal/config"
	syncerrors "git.home.luguber.info/inful/cachesync/internal/errors"
	"git.home.luguber.info/inful/cachesync/internal/logfields"
)

// versionKey tracks how many times an API file has been regenerated.
const versionKey = "api_file_version"

// Syncer converts cache artifacts into committable API files.
type Syncer struct {
	cacheDir string
	apiDir   string
	files    map[string]string
	command  string
	args     []string
	workDir  string
}

// New creates a syncer from the loaded configuration.
func New(cfg *config.Config) *Syncer {
	return &Syncer{
		cacheDir: cfg.Builder.CacheDir,
		apiDir:   filepath.Join(cfg.Repo.Path, cfg.API.Dir),
		files:    cfg.API.Files,
		command:  cfg.API.SyncCommand,
		args:     cfg.API.SyncArgs,
		workDir:  cfg.Repo.Path,
	}
}

// Sync rewrites the API file set from the current cache contents and returns
// the repository-relative names of the files it updated. Any conversion
// failure is fatal to the run; missing cache artifacts are skipped.
func (s *Syncer) Sync(ctx context.Context) ([]string, error) {
	if s.command != "" {
		return nil, s.runExternal(ctx)
	}
	return s.runNative(ctx)
}

// runExternal invokes the configured conversion script and requires a zero exit.
func (s *Syncer) runExternal(ctx context.Context) error {
	slog.Info("Running external cache API synchronizer", logfields.Command(s.command))

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	if s.workDir != "" {
		cmd.Dir = s.workDir
	}
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		slog.Debug("Synchronizer output", slog.String("output", strings.TrimSpace(string(out))))
	}
	if err != nil {
		return syncerrors.WrapFatal(err, syncerrors.CategorySync, "cache API synchronizer failed").
			WithStage("sync").
			WithContext("command", s.command)
	}
	return nil
}

// runNative merges each present cache artifact into its API file.
func (s *Syncer) runNative(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var updated []string
	for _, cacheName := range names {
		apiName := s.files[cacheName]
		src := filepath.Join(s.cacheDir, cacheName)

		if _, err := os.Stat(src); os.IsNotExist(err) {
			slog.Info("Cache artifact missing, skipping", logfields.Path(src))
			continue
		}

		if err := s.mergeFile(src, filepath.Join(s.apiDir, apiName)); err != nil {
			return updated, err
		}

		slog.Info("API file updated",
			logfields.Path(filepath.Join(s.apiDir, apiName)),
			slog.String("source", cacheName))
		updated = append(updated, apiName)
	}
	return updated, nil
}

// mergeFile overlays the cache artifact onto the existing API file, bumping
// the API file version, or seeds a fresh file at version 1.0.
func (s *Syncer) mergeFile(srcPath, dstPath string) error {
	source, err := readJSONObject(srcPath)
	if err != nil {
		return syncerrors.WrapFatal(err, syncerrors.CategorySync, "failed to read cache artifact").
			WithStage("sync").
			WithContext("path", srcPath)
	}

	var result map[string]any
	if _, err := os.Stat(dstPath); err == nil {
		dest, err := readJSONObject(dstPath)
		if err != nil {
			return syncerrors.WrapFatal(err, syncerrors.CategorySync, "failed to read API file").
				WithStage("sync").
				WithContext("path", dstPath)
		}

		version, _ := dest[versionKey].(string)
		next, err := bumpVersion(version)
		if err != nil {
			return syncerrors.WrapFatal(err, syncerrors.CategorySync, "invalid API file version").
				WithStage("sync").
				WithContext("path", dstPath)
		}
		dest[versionKey] = next

		for k, v := range source {
			dest[k] = v
		}
		result = dest
	} else {
		result = source
		result[versionKey] = "1.0"
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return syncerrors.WrapFatal(err, syncerrors.CategorySync, "failed to create API directory").WithStage("sync")
	}
	data, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		return syncerrors.WrapFatal(err, syncerrors.CategorySync, "failed to encode API file").WithStage("sync")
	}
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return syncerrors.WrapFatal(err, syncerrors.CategorySync, "failed to write API file").
			WithStage("sync").
			WithContext("path", dstPath)
	}
	return nil
}

func readJSONObject(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obj, nil
}

// bumpVersion increments the major component: "3.2" -> "4.0". A missing
// version is treated as "1.0", so the first regeneration yields "2.0".
func bumpVersion(current string) (string, error) {
	if current == "" {
		current = "1.0"
	}
	majorPart := current
	if i := strings.IndexByte(current, '.'); i >= 0 {
		majorPart = current[:i]
	}
	major, err := strconv.Atoi(majorPart)
	if err != nil {
		return "", fmt.Errorf("unparsable version %q: %w", current, err)
	}
	return fmt.Sprintf("%d.0", major+1), nil
}
