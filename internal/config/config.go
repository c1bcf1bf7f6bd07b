// Package config holds operator-local preferences for the microvm-backup
// CLI: the picker binary to launch, the default preview wait, and the log
// level. This is deliberately separate from internal/manifest, which holds
// the trusted, process-wide backup configuration — preferences here are
// convenience overrides an operator can change without touching the
// manifest. Only the picker setting is read by other commands;
// default_wait_ms and log_level are stored and shown by the `config`
// command but do not change preview waits or the log level.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Preferences represents the ~/.config/microvm-backup/config.toml file.
type Preferences struct {
	PickerBin   string `toml:"picker,omitempty" json:"picker"`
	DefaultWait int    `toml:"default_wait_ms,omitempty" json:"default_wait_ms"`
	LogLevel    string `toml:"log_level,omitempty" json:"log_level"`
}

// DefaultPicker is used when the preferences file does not set one.
const DefaultPicker = "fzf"

// DefaultWaitMs is used when the preferences file does not set one.
const DefaultWaitMs = 400

// configDirOverride is set by SetConfigDir; the CLI has no flag for it.
var configDirOverride string

// SetConfigDir overrides the preferences directory (used by tests).
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// Dir returns the preferences directory.
// Precedence: SetConfigDir > $MICROVM_BACKUP_CONFIG_DIR > ~/.config/microvm-backup
func Dir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("MICROVM_BACKUP_CONFIG_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "microvm-backup")
	}
	return filepath.Join(home, ".config", "microvm-backup")
}

// Path returns the full path to config.toml.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads config.toml and returns a Preferences struct. A missing file
// is not an error: it returns zero-value preferences, and callers apply
// their own defaults (Picker(), WaitMs() below).
func Load() (*Preferences, error) {
	prefs := &Preferences{}
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return prefs, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, prefs); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	return prefs, nil
}

// Save writes the Preferences struct back to config.toml.
func Save(prefs *Preferences) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(Path(), data, 0o644)
}

// Picker returns the picker binary to launch: preference, else DefaultPicker.
func (p *Preferences) Picker() string {
	if p.PickerBin != "" {
		return p.PickerBin
	}
	return DefaultPicker
}

// WaitMs returns the default interactive preview wait: preference, else DefaultWaitMs.
func (p *Preferences) WaitMs() int {
	if p.DefaultWait > 0 {
		return p.DefaultWait
	}
	return DefaultWaitMs
}

// validKeys lists the keys usable with Get/Set.
var validKeys = map[string]bool{
	"picker":          true,
	"default_wait_ms": true,
	"log_level":       true,
}

// Get retrieves a single preference value by key.
func Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	prefs, err := Load()
	if err != nil {
		return "", err
	}
	switch key {
	case "picker":
		return prefs.PickerBin, nil
	case "default_wait_ms":
		return strconv.Itoa(prefs.DefaultWait), nil
	case "log_level":
		return prefs.LogLevel, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Set sets a single preference value by key and persists it.
func Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key: %s", key)
	}
	prefs, err := Load()
	if err != nil {
		return err
	}
	switch key {
	case "picker":
		prefs.PickerBin = value
	case "default_wait_ms":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("default_wait_ms must be an integer: %w", err)
		}
		prefs.DefaultWait = ms
	case "log_level":
		prefs.LogLevel = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return Save(prefs)
}
