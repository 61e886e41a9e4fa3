package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.API.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.API.Addr)
	}
	if cfg.API.MaxUploadBytes != 100*1024*1024 {
		t.Fatalf("expected 100 MiB upload cap, got %d", cfg.API.MaxUploadBytes)
	}
	if cfg.Convert.LargeSourceBytes != 10*1024*1024 || cfg.Convert.MaxEdge != 1920 || cfg.Convert.SVGCanvas != 1024 {
		t.Fatalf("unexpected convert defaults: %+v", cfg.Convert)
	}
	if cfg.Storage.Enabled {
		t.Fatal("storage mirroring must be disabled by default")
	}
	if cfg.API.ReadTimeout != 60*time.Second {
		t.Fatalf("expected 60s read timeout, got %s", cfg.API.ReadTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("MEDIAFLOW_API_ADDR", ":9090")
	t.Setenv("MEDIAFLOW_CONVERT_MAX_EDGE", "800")
	t.Setenv("MEDIAFLOW_LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.Addr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.API.Addr)
	}
	if cfg.Convert.MaxEdge != 800 {
		t.Fatalf("expected max edge 800, got %d", cfg.Convert.MaxEdge)
	}
	if cfg.Log.Format != "console" {
		t.Fatalf("expected console log format, got %q", cfg.Log.Format)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediaflow.yaml")
	body := "api:\n  addr: \":7070\"\nconvert:\n  default_quality: 75\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnv, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.Addr != ":7070" || cfg.Convert.DefaultQuality != 75 {
		t.Fatalf("file values not applied: addr=%q quality=%d", cfg.API.Addr, cfg.Convert.DefaultQuality)
	}
	if cfg.Convert.MaxEdge != 1920 {
		t.Fatalf("expected default max edge, got %d", cfg.Convert.MaxEdge)
	}
}

func TestLoadRejectsBadQuality(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("MEDIAFLOW_CONVERT_DEFAULT_QUALITY", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for quality 0")
	}
}

func TestUsageListsVariables(t *testing.T) {
	if !strings.Contains(Usage(), "MEDIAFLOW_API_ADDR") {
		t.Fatal("expected usage to mention MEDIAFLOW_API_ADDR")
	}
}

func TestLoadQueueDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Queue.Enabled || cfg.RateLimit.Enabled {
		t.Fatal("queue and rate limiting must be disabled by default")
	}
	if cfg.Jobs.Driver != "memory" {
		t.Fatalf("expected memory jobs driver, got %q", cfg.Jobs.Driver)
	}
	opt := cfg.Queue.RedisClientOpt()
	if opt.Addr != "localhost:6379" || opt.DB != 0 {
		t.Fatalf("unexpected redis options: %+v", opt)
	}
}

func TestLoadRejectsUnknownJobsDriver(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("MEDIAFLOW_JOBS_DRIVER", "sqlite")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for sqlite driver")
	}
}
