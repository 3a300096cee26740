package healthcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-blockmap/internal/config"
	"github.com/l3aro/go-blockmap/pkg/cache"
	"github.com/l3aro/go-blockmap/pkg/cfg"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckWithInvalidConfig(t *testing.T) {
	c := config.DefaultConfig()
	c.CacheSize = 0

	if _, err := Check(c, "", ""); err == nil {
		t.Error("Expected validation error, got nil")
	}
}

func TestCheckCacheDisabled(t *testing.T) {
	c := config.DefaultConfig()
	c.CacheFile = ""

	result, err := Check(c, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Cache.Status != "disabled" {
		t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, "disabled")
	}
	if !result.OK() {
		t.Error("OK() = false, want true")
	}
}

func TestCheckCacheStates(t *testing.T) {
	dir := t.TempDir()

	ready := filepath.Join(dir, "ready.msgpack")
	lru := cache.New(cache.Options{})
	lru.Set("k", &cfg.CFGInfo{FunctionName: "run()V", CodeLength: 1})
	if err := cache.PersistToFile(lru, ready); err != nil {
		t.Fatalf("PersistToFile() failed: %v", err)
	}

	corrupt := filepath.Join(dir, "corrupt.msgpack")
	if err := os.WriteFile(corrupt, []byte{0xc1}, 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	stale := filepath.Join(dir, "stale.msgpack")
	data, err := msgpack.Marshal(map[string]any{"version": 99, "entries": []any{}})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if err := os.WriteFile(stale, data, 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		status  string
		entries int
	}{
		{"missing", filepath.Join(dir, "none.msgpack"), "empty", 0},
		{"ready", ready, "ready", 1},
		{"corrupt", corrupt, "error", 0},
		{"stale", stale, "stale", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.DefaultConfig()
			c.CacheFile = tt.path

			result, err := Check(c, "", "")
			if err != nil {
				t.Fatalf("Check() failed: %v", err)
			}
			if result.Cache.Status != tt.status {
				t.Errorf("Cache.Status = %q, want %q (error %q)", result.Cache.Status, tt.status, result.Cache.Error)
			}
			if result.Cache.Entries != tt.entries {
				t.Errorf("Cache.Entries = %d, want %d", result.Cache.Entries, tt.entries)
			}
			if result.OK() != (tt.status != "error") {
				t.Errorf("OK() = %v for status %q", result.OK(), tt.status)
			}
		})
	}
}

func TestScopeFromPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{filepath.Join(home, ".blockmap", "config.yaml"), "global"},
		{filepath.Join(".blockmap", "config.yaml"), "project"},
	}
	for _, tt := range tests {
		if got := scopeFromPath(tt.path); got != tt.want {
			t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
