// Package config loads kioskd configuration from YAML with KIOSKD_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the system-wide configuration file.
const DefaultPath = "/etc/kioskd/config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KIOSKD"

// Config is the full kioskd configuration.
type Config struct {
	LockedApp     string   `yaml:"locked_app" split_words:"true"`
	Allow         []string `yaml:"allow" split_words:"true"`
	ExcursionApps []string `yaml:"excursion_apps" split_words:"true"`
	DataDir       string   `yaml:"data_dir" split_words:"true"`
	UseKeyring    bool     `yaml:"use_keyring" split_words:"true"`

	Watchdog  WatchdogConfig  `yaml:"watchdog" split_words:"true"`
	Gesture   GestureConfig   `yaml:"gesture" split_words:"true"`
	Admin     AdminConfig     `yaml:"admin" split_words:"true"`
	Lock      LockConfig      `yaml:"lock" split_words:"true"`
	Launch    LaunchConfig    `yaml:"launch" split_words:"true"`
	Notify    NotifyConfig    `yaml:"notify" split_words:"true"`
	Prompt    PromptConfig    `yaml:"prompt" split_words:"true"`
	Telemetry TelemetryConfig `yaml:"telemetry" split_words:"true"`
	Recovery  RecoveryConfig  `yaml:"recovery" split_words:"true"`
	Update    UpdateConfig    `yaml:"update" split_words:"true"`
	Metrics   MetricsConfig   `yaml:"metrics" split_words:"true"`
	Logging   LoggingConfig   `yaml:"logging" split_words:"true"`
}

// WatchdogConfig controls the enforcement loop.
type WatchdogConfig struct {
	Interval             time.Duration `yaml:"interval" split_words:"true"`
	Window               time.Duration `yaml:"window" split_words:"true"`
	FirstActivationDelay time.Duration `yaml:"first_activation_delay" split_words:"true"`
	SelfStopWhenLocked   bool          `yaml:"self_stop_when_locked" split_words:"true"`
}

// GestureConfig controls the admin gesture.
type GestureConfig struct {
	Key       string        `yaml:"key" split_words:"true"`
	Window    time.Duration `yaml:"window" split_words:"true"`
	Threshold int           `yaml:"threshold" split_words:"true"`
	Device    string        `yaml:"device" split_words:"true"` // /dev/input/eventN; empty disables the gesture
}

// AdminConfig controls the admin credential.
type AdminConfig struct {
	CredentialHash    string `yaml:"credential_hash" split_words:"true"` // bcrypt; the stored hash wins
	AttemptsPerMinute int    `yaml:"attempts_per_minute" split_words:"true"`
}

// LockConfig controls the OS lock primitive.
type LockConfig struct {
	Enabled            bool     `yaml:"enabled" split_words:"true"`
	AssertCommand      []string `yaml:"assert_command" split_words:"true"`
	ReleaseCommand     []string `yaml:"release_command" split_words:"true"`
	GrantUserPrivilege bool     `yaml:"grant_user_privilege" split_words:"true"`
}

// LaunchConfig holds the launcher command templates.
type LaunchConfig struct {
	BringToFrontCommand []string `yaml:"bring_to_front_command" split_words:"true"`
	HomeCommand         []string `yaml:"home_command" split_words:"true"`
}

// NotifyConfig holds the notification command.
type NotifyConfig struct {
	Command []string `yaml:"command" split_words:"true"`
}

// PromptConfig holds the credential prompt command.
type PromptConfig struct {
	Command []string `yaml:"command" split_words:"true"`
	App     string   `yaml:"app" split_words:"true"` // foreground identifier of the prompt window, permitted only while it is open
}

// TelemetryConfig controls focus sampling.
type TelemetryConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval" split_words:"true"`
	Refresh        time.Duration `yaml:"refresh" split_words:"true"`
	Retention      time.Duration `yaml:"retention" split_words:"true"`
}

// RecoveryConfig controls the recovery action.
type RecoveryConfig struct {
	TerminateViolator bool `yaml:"terminate_violator" split_words:"true"`
}

// UpdateConfig controls the release check.
type UpdateConfig struct {
	Enabled       bool          `yaml:"enabled" split_words:"true"`
	Owner         string        `yaml:"owner" split_words:"true"`
	Repo          string        `yaml:"repo" split_words:"true"`
	CheckInterval time.Duration `yaml:"check_interval" split_words:"true"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Listen string `yaml:"listen" split_words:"true"` // empty disables the listener
}

// LoggingConfig controls the daemon logger.
type LoggingConfig struct {
	Level            string   `yaml:"level" split_words:"true"`
	OutputPaths      []string `yaml:"output_paths" split_words:"true"`
	ErrorOutputPaths []string `yaml:"error_output_paths" split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LockedApp: "kiosk",
		Watchdog: WatchdogConfig{
			Interval:             3 * time.Second,
			Window:               10 * time.Second,
			FirstActivationDelay: 15 * time.Second,
		},
		Gesture: GestureConfig{
			Key:       "volumeup",
			Window:    2 * time.Second,
			Threshold: 5,
		},
		Admin: AdminConfig{
			AttemptsPerMinute: 5,
		},
		Launch: LaunchConfig{
			BringToFrontCommand: []string{"wmctrl", "-x", "-a", "{app}"},
		},
		Notify: NotifyConfig{
			Command: []string{"notify-send", "kioskd"},
		},
		Prompt: PromptConfig{
			Command: []string{"zenity", "--password", "--title", "{title}"},
			App:     "zenity",
		},
		Telemetry: TelemetryConfig{
			SampleInterval: time.Second,
			Refresh:        5 * time.Second,
			Retention:      5 * time.Minute,
		},
		Update: UpdateConfig{
			Enabled:       true,
			Owner:         "eliteGoblin",
			Repo:          "focusd",
			CheckInterval: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:            "info",
			OutputPaths:      []string{"/var/tmp/kioskd.log"},
			ErrorOutputPaths: []string{"/var/tmp/kioskd.error.log"},
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// MinWindow is the shortest telemetry window that survives platform
// reporting latency.
const MinWindow = 5 * time.Second

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if strings.TrimSpace(c.LockedApp) == "" {
		add("locked_app", "must not be empty")
	}
	if c.Watchdog.Interval <= 0 {
		add("watchdog.interval", "must be positive")
	}
	if c.Watchdog.Window < MinWindow {
		add("watchdog.window", fmt.Sprintf("must be at least %s", MinWindow))
	}
	if c.Watchdog.FirstActivationDelay < 0 {
		add("watchdog.first_activation_delay", "must not be negative")
	}
	if c.Gesture.Threshold < 2 {
		add("gesture.threshold", "must be at least 2")
	}
	if c.Gesture.Window <= 0 {
		add("gesture.window", "must be positive")
	}
	if c.Admin.AttemptsPerMinute < 1 {
		add("admin.attempts_per_minute", "must be at least 1")
	}
	if c.Lock.Enabled {
		if len(c.Lock.AssertCommand) == 0 {
			add("lock.assert_command", "required when lock is enabled")
		}
		if len(c.Lock.ReleaseCommand) == 0 {
			add("lock.release_command", "required when lock is enabled")
		}
	}
	if c.Update.Enabled && (c.Update.Owner == "" || c.Update.Repo == "") {
		add("update", "owner and repo are required when enabled")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// LockBinary returns the executable of the assert command, or "" when the
// lock primitive is disabled.
func (c *Config) LockBinary() string {
	if !c.Lock.Enabled || len(c.Lock.AssertCommand) == 0 {
		return ""
	}
	return c.Lock.AssertCommand[0]
}
