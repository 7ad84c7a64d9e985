package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Storage.Driver != "memory" || cfg.Forecast.Horizon != 14 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Session.IdleTimeout != 2*time.Hour || cfg.Export.Archive || cfg.Log.Trace {
		t.Fatalf("unexpected session/export defaults %+v", cfg)
	}
	if cfg.BlobStore().Driver != "fs" {
		t.Fatalf("unexpected blob driver %s", cfg.BlobStore().Driver)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GROWPILOT_ADDR", ":9090")
	t.Setenv("GROWPILOT_STORAGE_DRIVER", "sqlite")
	t.Setenv("GROWPILOT_SESSION_IDLE_TIMEOUT", "15m")
	t.Setenv("GROWPILOT_BLOB_S3_BUCKET", "archive")
	t.Setenv("GROWPILOT_EXPORT_ARCHIVE", "true")
	t.Setenv("GROWPILOT_LOG_TRACE", "true")
	cfg, err := Load(New(), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Storage.Driver != "sqlite" || cfg.Session.IdleTimeout != 15*time.Minute {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Blob.S3.Bucket != "archive" || !cfg.Export.Archive {
		t.Fatalf("nested env not applied: %+v", cfg.Blob)
	}
	if !cfg.Log.Trace {
		t.Fatalf("log trace not applied: %+v", cfg.Log)
	}
}

func TestConfigFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "growpilot.yaml")
	yaml := "forecast:\n  horizon: 7\nlog:\n  format: json\n"
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("GROWPILOT_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("GROWPILOT_LOG_LEVEL", "")
	os.Unsetenv("GROWPILOT_LOG_LEVEL")

	cfg, err := Load(New(), Options{ConfigFile: file, EnvFiles: []string{envFile, filepath.Join(dir, "missing.env")}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Forecast.Horizon != 7 || cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(New(), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bad := cfg
	bad.Storage.Driver = "postgres"
	bad.Forecast.Horizon = 0
	bad.Log.Level = "loud"
	err = bad.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"storage.driver", "forecast.horizon", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
	s3 := cfg
	s3.Blob.Driver = "s3"
	s3.Export.Archive = true
	if err := s3.Validate(); err == nil || !strings.Contains(err.Error(), "blob.s3.bucket") {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
