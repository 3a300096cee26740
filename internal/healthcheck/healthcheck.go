// Package healthcheck reports whether a configuration is usable: which file
// it came from and the state of the result cache it points at.
package healthcheck

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-blockmap/internal/config"
	"github.com/l3aro/go-blockmap/pkg/cache"
)

// CacheStatus represents the health of the result cache file.
type CacheStatus struct {
	Path    string
	Status  string // "disabled", "empty", "ready", "stale", "error"
	Entries int
	Bytes   int64
	Error   string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Cache          CacheStatus
}

// OK reports whether nothing needs attention.
func (r *HealthCheckResult) OK() bool {
	return r.Cache.Status != "error"
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
		Cache:          checkCache(cfg.CacheFile),
	}, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".blockmap")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkCache loads the cache file to verify it can be used. A cache written by
// another version is stale: it will be discarded on the next run.
func checkCache(path string) CacheStatus {
	status := CacheStatus{Path: path}
	if path == "" {
		status.Status = "disabled"
		return status
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		status.Status = "empty"
		return status
	}

	c := cache.New(cache.Options{})
	err := cache.LoadFromFile(c, path)
	switch {
	case errors.Is(err, cache.ErrVersionMismatch):
		status.Status = "stale"
		status.Error = err.Error()
	case err != nil:
		status.Status = "error"
		status.Error = err.Error()
	default:
		stats := c.Stats()
		status.Status = "ready"
		status.Entries = stats.Length
		status.Bytes = stats.CurrentBytes
	}
	return status
}
