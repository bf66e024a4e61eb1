package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"contestjudge/internal/cli/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != config.DefaultBaseURL || cfg.Timeout != config.DefaultTimeout || !*cfg.PrettyJSON {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "judgectl.yaml")
	body := "baseURL: http://judge:9000\ntimeout: 3s\nprettyJSON: false\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://judge:9000" || cfg.Timeout != 3*time.Second || *cfg.PrettyJSON {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.StatePath != config.DefaultStatePath {
		t.Fatalf("state path = %s", cfg.StatePath)
	}
}
