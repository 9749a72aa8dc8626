package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shakegestures/internal/gesture"
)

// Config is the top-level YAML configuration for the shakegestured daemon.
//
// Defaults and validation live here so the rest of the daemon can assume a
// well-formed config.
type Config struct {
	// Shake input devices
	Input InputConfig `yaml:"input"`

	// Where the gesture settings are read from
	Settings SettingsConfig `yaml:"settings"`

	// Wake locks and the display
	Power PowerConfig `yaml:"power"`

	// Action handler bindings
	Actions ActionsConfig `yaml:"actions"`

	// IPC configuration (shakectl, sensor hooks)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP server for /ws, /metrics and /healthz
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"` // evdev devices emitting the shake key
	KeyCode int      `yaml:"key_code"`
}

type SettingsConfig struct {
	Backend     string         `yaml:"backend"` // "memory", "file" or "redis"
	File        string         `yaml:"file,omitempty"`
	RedisURL    string         `yaml:"redis_url,omitempty"`
	RedisPrefix string         `yaml:"redis_prefix,omitempty"`
	Initial     map[string]int `yaml:"initial,omitempty"` // seeds the memory backend
}

type PowerConfig struct {
	WakeSource    string `yaml:"wake_source"` // "logind" or "none"
	InhibitWho    string `yaml:"inhibit_who,omitempty"`
	Backlight     string `yaml:"backlight,omitempty"` // device name, "" for first found, "none" to disable
	BacklightRoot string `yaml:"backlight_root,omitempty"`
}

type ActionsConfig struct {
	TorchLED         string              `yaml:"torch_led,omitempty"`
	LEDRoot          string              `yaml:"led_root,omitempty"`
	MPRIS            bool                `yaml:"mpris"`
	MPRISPlayer      string              `yaml:"mpris_player,omitempty"`
	Commands         map[string][]string `yaml:"commands,omitempty"` // action name -> argv
	CommandTimeoutMS int                 `yaml:"command_timeout_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			KeyCode: KEY_PROG1,
		},
		Settings: SettingsConfig{
			Backend:     "file",
			File:        defaultSettingsFS,
			RedisPrefix: "shakegestures:settings:",
		},
		Power: PowerConfig{
			WakeSource:    "logind",
			InhibitWho:    "shakegestured",
			BacklightRoot: "/sys/class/backlight",
		},
		Actions: ActionsConfig{
			LEDRoot:          "/sys/class/leds",
			MPRIS:            true,
			CommandTimeoutMS: defaultCommandTimeoutMS,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    defaultHTTPAddr,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values that replace config file values. Each
// pointer is only applied when non-nil, so main.go sets only the flags the
// user actually passed.
type FlagOverrides struct {
	InputDevice *string
	KeyCode     *int

	SettingsBackend *string
	SettingsFile    *string
	RedisURL        *string

	WakeSource *string
	Backlight  *string

	IPCSocketPath *string
	HTTPAddr      *string

	LogLevel  *string
	LogFormat *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}
	if o.KeyCode != nil {
		cfg.Input.KeyCode = *o.KeyCode
	}

	if o.SettingsBackend != nil {
		cfg.Settings.Backend = *o.SettingsBackend
	}
	if o.SettingsFile != nil {
		cfg.Settings.File = *o.SettingsFile
	}
	if o.RedisURL != nil {
		cfg.Settings.RedisURL = *o.RedisURL
	}

	if o.WakeSource != nil {
		cfg.Power.WakeSource = *o.WakeSource
	}
	if o.Backlight != nil {
		cfg.Power.Backlight = *o.Backlight
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
		cfg.HTTP.Enabled = *o.HTTPAddr != ""
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.KeyCode <= 0 || c.Input.KeyCode > 0x2ff {
		return errors.New("input.key_code must be between 1 and 767")
	}

	// Settings
	switch c.Settings.Backend {
	case "memory":
		for k := range c.Settings.Initial {
			if !isSettingKey(k) {
				return fmt.Errorf("settings.initial: unknown key %q", k)
			}
		}
	case "file":
		if c.Settings.File == "" {
			return errors.New("settings.backend is file but settings.file is empty")
		}
	case "redis":
		if c.Settings.RedisURL == "" {
			return errors.New("settings.backend is redis but settings.redis_url is empty")
		}
	default:
		return fmt.Errorf("settings.backend must be %q, %q or %q", "memory", "file", "redis")
	}

	// Power
	if c.Power.WakeSource != "logind" && c.Power.WakeSource != "none" {
		return fmt.Errorf("power.wake_source must be %q or %q", "logind", "none")
	}

	// Actions
	if c.Actions.CommandTimeoutMS <= 0 {
		return errors.New("actions.command_timeout_ms must be > 0")
	}
	seen := make(map[gesture.ActionID]string, len(c.Actions.Commands))
	for _, name := range sortedKeys(c.Actions.Commands) {
		a, err := gesture.ParseAction(name)
		if err != nil {
			return fmt.Errorf("actions.commands: %w", err)
		}
		if a == gesture.ActionNone || a == gesture.ActionScreenPower {
			return fmt.Errorf("actions.commands: %q cannot be bound to a command", name)
		}
		if prev, dup := seen[a]; dup {
			return fmt.Errorf("actions.commands: %q and %q both name %s", prev, name, a)
		}
		seen[a] = name
		if len(c.Actions.Commands[name]) == 0 || c.Actions.Commands[name][0] == "" {
			return fmt.Errorf("actions.commands.%s: empty command", name)
		}
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// HTTP
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return errors.New("http.enabled is true but http.addr is empty")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be %q or %q", "text", "json")
	}

	return nil
}

// CommandTimeout returns command_timeout_ms as a duration.
func (c ActionsConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

// CommandArgv returns the configured commands keyed by canonical action name,
// so "1" or "Toggle_Torch" bind the same action as "toggle_torch". Keys that
// do not parse are skipped; Validate reports them.
func (c ActionsConfig) CommandArgv() map[string][]string {
	out := make(map[string][]string, len(c.Commands))
	for name, argv := range c.Commands {
		a, err := gesture.ParseAction(name)
		if err != nil {
			continue
		}
		out[a.String()] = argv
	}
	return out
}

func isSettingKey(k string) bool {
	return k == gesture.KeyEnabled || k == gesture.KeyAction
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExpandPath expands a leading "~/" to the user's home directory.
// It does not expand environment variables.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
