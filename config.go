package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable settings for the session reliability layer.
type Config struct {
	// HeartbeatEndpoint is the connectivity probe target. Must be a
	// third-party endpoint, not the application's own origin.
	HeartbeatEndpoint string `json:"heartbeat_endpoint" yaml:"heartbeat_endpoint"`

	// HeartbeatInterval between probe requests while a session is active.
	HeartbeatInterval time.Duration `json:"heartbeat_interval,omitempty" yaml:"heartbeat_interval,omitempty"`

	// HeartbeatTimeout bounds one probe request.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout,omitempty" yaml:"heartbeat_timeout,omitempty"`

	// FailureThreshold is the consecutive-failure count before the probe
	// declares offline.
	FailureThreshold int `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`

	// ResumeCountdown is how long the resuming countdown runs after the
	// sensor link is restored.
	ResumeCountdown time.Duration `json:"resume_countdown,omitempty" yaml:"resume_countdown,omitempty"`

	// ReconnectAttempts bounds one link reconnection loop.
	ReconnectAttempts int `json:"reconnect_attempts,omitempty" yaml:"reconnect_attempts,omitempty"`

	// SetCompleteGuard is how long the set-complete detector is suppressed
	// after a rollback.
	SetCompleteGuard time.Duration `json:"set_complete_guard,omitempty" yaml:"set_complete_guard,omitempty"`

	// QueuePath is the SQLite file backing the offline work queue.
	QueuePath string `json:"queue_path,omitempty" yaml:"queue_path,omitempty"`

	// ClassifierURL is the base URL of the classification service.
	ClassifierURL string `json:"classifier_url,omitempty" yaml:"classifier_url,omitempty"`

	// ObjectStoreDir is the root directory of the file object store.
	ObjectStoreDir string `json:"object_store_dir,omitempty" yaml:"object_store_dir,omitempty"`

	// CheckpointDir is where session checkpoints are persisted.
	CheckpointDir string `json:"checkpoint_dir,omitempty" yaml:"checkpoint_dir,omitempty"`

	// PostgresDSN connects the session metadata store. Empty selects the
	// in-memory store.
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		FailureThreshold:  ConsecutiveFailureThreshold,
		ResumeCountdown:   3 * time.Second,
		ReconnectAttempts: DefaultReconnectAttempts,
		SetCompleteGuard:  2 * time.Second,
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.HeartbeatEndpoint == "" {
		return fmt.Errorf("heartbeat endpoint required")
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat interval must not be negative")
	}
	if c.FailureThreshold < 0 {
		return fmt.Errorf("failure threshold must not be negative")
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect attempts must not be negative")
	}
	return nil
}

// UnmarshalYAML decodes the config, accepting Go duration strings ("4s",
// "500ms") for the duration fields.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		HeartbeatEndpoint string `yaml:"heartbeat_endpoint"`
		HeartbeatInterval string `yaml:"heartbeat_interval"`
		HeartbeatTimeout  string `yaml:"heartbeat_timeout"`
		FailureThreshold  *int   `yaml:"failure_threshold"`
		ResumeCountdown   string `yaml:"resume_countdown"`
		ReconnectAttempts *int   `yaml:"reconnect_attempts"`
		SetCompleteGuard  string `yaml:"set_complete_guard"`
		QueuePath         string `yaml:"queue_path"`
		ClassifierURL     string `yaml:"classifier_url"`
		ObjectStoreDir    string `yaml:"object_store_dir"`
		CheckpointDir     string `yaml:"checkpoint_dir"`
		PostgresDSN       string `yaml:"postgres_dsn"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.HeartbeatEndpoint != "" {
		c.HeartbeatEndpoint = raw.HeartbeatEndpoint
	}
	if raw.FailureThreshold != nil {
		c.FailureThreshold = *raw.FailureThreshold
	}
	if raw.ReconnectAttempts != nil {
		c.ReconnectAttempts = *raw.ReconnectAttempts
	}
	if raw.QueuePath != "" {
		c.QueuePath = raw.QueuePath
	}
	if raw.ClassifierURL != "" {
		c.ClassifierURL = raw.ClassifierURL
	}
	if raw.ObjectStoreDir != "" {
		c.ObjectStoreDir = raw.ObjectStoreDir
	}
	if raw.CheckpointDir != "" {
		c.CheckpointDir = raw.CheckpointDir
	}
	if raw.PostgresDSN != "" {
		c.PostgresDSN = raw.PostgresDSN
	}
	for _, field := range []struct {
		value  string
		target *time.Duration
		name   string
	}{
		{raw.HeartbeatInterval, &c.HeartbeatInterval, "heartbeat_interval"},
		{raw.HeartbeatTimeout, &c.HeartbeatTimeout, "heartbeat_timeout"},
		{raw.ResumeCountdown, &c.ResumeCountdown, "resume_countdown"},
		{raw.SetCompleteGuard, &c.SetCompleteGuard, "set_complete_guard"},
	} {
		if field.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
		*field.target = parsed
	}
	return nil
}

// LoadConfigFile loads a configuration from a YAML file, applying defaults
// for unset fields.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfigString(string(data))
}

// LoadConfigString loads a configuration from a YAML string, applying
// defaults for unset fields.
func LoadConfigString(data string) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(data), config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
