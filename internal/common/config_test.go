package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Environment != "development" {
		t.Errorf("expected development, got %s", config.Environment)
	}
	if config.Server.Port != 6385 {
		t.Errorf("expected port 6385, got %d", config.Server.Port)
	}
	if config.Queue.QueueName != "ferrum_tasks" {
		t.Errorf("unexpected queue name: %s", config.Queue.QueueName)
	}
	if config.IPMI.RetryTimeout != 60*time.Second {
		t.Errorf("unexpected IPMI retry timeout: %s", config.IPMI.RetryTimeout)
	}
	if config.Deploy.TFTPRoot != "/tftpboot" {
		t.Errorf("unexpected TFTP root: %s", config.Deploy.TFTPRoot)
	}
	if config.Deploy.NotifyPort != 10000 {
		t.Errorf("unexpected notify port: %d", config.Deploy.NotifyPort)
	}
	if !config.PowerSync.Enabled {
		t.Error("expected power sync enabled by default")
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	if err := os.WriteFile(base, []byte(`
environment = "production"

[server]
port = 7000

[queue]
queue_name = "custom_tasks"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	override := filepath.Join(dir, "override.toml")
	if err := os.WriteFile(override, []byte(`
[server]
port = 8000
`), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// Later files win, untouched keys keep earlier or default values.
	if config.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", config.Server.Port)
	}
	if config.Environment != "production" {
		t.Errorf("expected production, got %s", config.Environment)
	}
	if config.Queue.QueueName != "custom_tasks" {
		t.Errorf("expected custom_tasks, got %s", config.Queue.QueueName)
	}
	if config.Server.Host != "localhost" {
		t.Errorf("expected default host, got %s", config.Server.Host)
	}
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	if _, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FERRUM_ENV", "production")
	t.Setenv("FERRUM_SERVER_PORT", "9000")
	t.Setenv("FERRUM_IPMI_RETRY_TIMEOUT", "90s")
	t.Setenv("FERRUM_LOG_OUTPUT", "stdout, file")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if config.Environment != "production" {
		t.Errorf("expected production, got %s", config.Environment)
	}
	if config.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", config.Server.Port)
	}
	if config.IPMI.RetryTimeout != 90*time.Second {
		t.Errorf("expected 90s retry timeout, got %s", config.IPMI.RetryTimeout)
	}
	if len(config.Logging.Output) != 2 || config.Logging.Output[0] != "stdout" || config.Logging.Output[1] != "file" {
		t.Errorf("unexpected log output: %v", config.Logging.Output)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 7777, "0.0.0.0")
	if config.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", config.Server.Port)
	}
	if config.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", config.Server.Host)
	}

	// Zero values leave the config alone.
	ApplyFlagOverrides(config, 0, "")
	if config.Server.Port != 7777 || config.Server.Host != "0.0.0.0" {
		t.Error("zero-valued flags must not override")
	}
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"prod", true},
		{" production ", true},
		{"development", false},
		{"", false},
	}
	for _, tt := range tests {
		config := &Config{Environment: tt.env}
		if got := config.IsProduction(); got != tt.want {
			t.Errorf("IsProduction(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}
