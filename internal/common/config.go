package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	IPMI        IPMIConfig      `toml:"ipmi"`
	Deploy      DeployConfig    `toml:"deploy"`
	PowerSync   PowerSyncConfig `toml:"power_sync"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for jobs
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent conductor workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "30m" - job visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a job can be received before it is dropped
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

// IPMIConfig controls how ipmitool is invoked against BMCs
type IPMIConfig struct {
	RetryTimeout       time.Duration `toml:"retry_timeout"`        // Max time to wait for a power state change
	MinCommandInterval time.Duration `toml:"min_command_interval"` // Minimum spacing between commands to one BMC
}

// DeployConfig controls iSCSI/PXE image deployment
type DeployConfig struct {
	TFTPRoot         string        `toml:"tftp_root"`          // Root directory for PXE configs
	ISCSIPort        int           `toml:"iscsi_port"`         // iSCSI portal port on the deploy ramdisk
	NotifyPort       int           `toml:"notify_port"`        // Port the ramdisk listens on for the done signal
	LoginSettleDelay time.Duration `toml:"login_settle_delay"` // Wait after iscsiadm login before using the device
	CommandAttempts  int           `toml:"command_attempts"`   // Retry attempts for iscsiadm commands
	StaleTimeout     time.Duration `toml:"stale_timeout"`      // Deploys without heartbeat past this are failed
}

// PowerSyncConfig controls the periodic BMC power state reconciliation
type PowerSyncConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig contains configuration for the event stream
type WebSocketConfig struct {
	AllowedEvents []string `toml:"allowed_events"` // Whitelist of event types to broadcast. Empty allows all.
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 6385,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4, // Deploys are I/O bound on dd; keep parallelism modest
			VisibilityTimeout: "30m",
			MaxReceive:        3,
			QueueName:         "ferrum_tasks",
		},
		IPMI: IPMIConfig{
			RetryTimeout:       60 * time.Second,
			MinCommandInterval: 5 * time.Second,
		},
		Deploy: DeployConfig{
			TFTPRoot:         "/tftpboot",
			ISCSIPort:        3260,
			NotifyPort:       10000,
			LoginSettleDelay: 3 * time.Second,
			CommandAttempts:  5,
			StaleTimeout:     15 * time.Minute,
		},
		PowerSync: PowerSyncConfig{
			Enabled:  true,
			Schedule: "*/1 * * * *", // Every minute
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files
// override earlier files. Priority: env > last file > ... > first file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FERRUM_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("FERRUM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("FERRUM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("FERRUM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if pollInterval := os.Getenv("FERRUM_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("FERRUM_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("FERRUM_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if queueName := os.Getenv("FERRUM_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}

	if retryTimeout := os.Getenv("FERRUM_IPMI_RETRY_TIMEOUT"); retryTimeout != "" {
		if d, err := time.ParseDuration(retryTimeout); err == nil {
			config.IPMI.RetryTimeout = d
		}
	}
	if interval := os.Getenv("FERRUM_IPMI_MIN_COMMAND_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.IPMI.MinCommandInterval = d
		}
	}

	if tftpRoot := os.Getenv("FERRUM_DEPLOY_TFTP_ROOT"); tftpRoot != "" {
		config.Deploy.TFTPRoot = tftpRoot
	}
	if iscsiPort := os.Getenv("FERRUM_DEPLOY_ISCSI_PORT"); iscsiPort != "" {
		if p, err := strconv.Atoi(iscsiPort); err == nil {
			config.Deploy.ISCSIPort = p
		}
	}
	if staleTimeout := os.Getenv("FERRUM_DEPLOY_STALE_TIMEOUT"); staleTimeout != "" {
		if d, err := time.ParseDuration(staleTimeout); err == nil {
			config.Deploy.StaleTimeout = d
		}
	}

	if schedule := os.Getenv("FERRUM_POWER_SYNC_SCHEDULE"); schedule != "" {
		config.PowerSync.Schedule = schedule
	}
	if enabled := os.Getenv("FERRUM_POWER_SYNC_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.PowerSync.Enabled = b
		}
	}

	if level := os.Getenv("FERRUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("FERRUM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("FERRUM_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := trimSpace(c.Environment)
	return env == "production" || env == "prod"
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
