package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cptspacemanspiff/battery-probe/internal/backend"
)

const (
	minCollectionIntervalSeconds = 1
	maxCollectionIntervalSeconds = 3600
	minHotplugDebounceMs         = 0
	maxHotplugDebounceMs         = 60000
	minRetentionDays             = 1
	maxRetentionDays             = 3650
	minCleanupIntervalHours      = 1
	maxCleanupIntervalHours      = 720
	minRemotePort                = 1
	maxRemotePort                = 65535
	minCommandTimeoutSeconds     = 1
	maxCommandTimeoutSeconds     = 300
)

type Config struct {
	Backend    BackendConfig    `toml:"backend"`
	Storage    StorageConfig    `toml:"storage"`
	Collection CollectionConfig `toml:"collection"`
	Cleanup    CleanupConfig    `toml:"cleanup"`
}

type BackendConfig struct {
	Name      string       `toml:"name"`
	SysfsRoot string       `toml:"sysfs_root"`
	Remote    RemoteConfig `toml:"remote"`
}

type RemoteConfig struct {
	Host                  string `toml:"host"`
	Port                  int    `toml:"port"`
	User                  string `toml:"user"`
	KeyPath               string `toml:"key_path"`
	KnownHostsPath        string `toml:"known_hosts_path"`
	InsecureIgnoreHostKey bool   `toml:"insecure_ignore_host_key"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type CollectionConfig struct {
	IntervalSeconds   int `toml:"interval_seconds"`
	HotplugDebounceMs int `toml:"hotplug_debounce_ms"`
}

type CleanupConfig struct {
	RetentionDays int `toml:"retention_days"`
	IntervalHours int `toml:"interval_hours"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Name:      backend.NameAuto,
			SysfsRoot: backend.DefaultSysfsRoot,
			Remote: RemoteConfig{
				Port:                  22,
				CommandTimeoutSeconds: 10,
			},
		},
		Storage: StorageConfig{
			DBPath: "/var/lib/battery-probe/history.db",
		},
		Collection: CollectionConfig{
			IntervalSeconds:   30,
			HotplugDebounceMs: 500,
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Backend.Name = strings.ToLower(strings.TrimSpace(sanitized.Backend.Name))
	if sanitized.Backend.Name == "" {
		sanitized.Backend.Name = backend.NameAuto
	}
	switch sanitized.Backend.Name {
	case backend.NameAuto, backend.NameSysfs, backend.NameUPower, backend.NamePortable, backend.NameWMI, backend.NameRemote:
	default:
		return nil, fmt.Errorf("backend.name must be one of auto, sysfs, upower, portable, wmi, remote, got %q", cfg.Backend.Name)
	}
	sanitized.Backend.SysfsRoot, err = sanitizePath("backend.sysfs_root", sanitized.Backend.SysfsRoot)
	if err != nil {
		return nil, err
	}
	if sanitized.Backend.Name == backend.NameRemote {
		if err := validateRemote(&sanitized.Backend.Remote); err != nil {
			return nil, err
		}
	}

	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	if err := validateRange("collection.interval_seconds", sanitized.Collection.IntervalSeconds, minCollectionIntervalSeconds, maxCollectionIntervalSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("collection.hotplug_debounce_ms", sanitized.Collection.HotplugDebounceMs, minHotplugDebounceMs, maxHotplugDebounceMs); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_days", sanitized.Cleanup.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

func validateRemote(r *RemoteConfig) error {
	r.Host = strings.TrimSpace(r.Host)
	if r.Host == "" {
		return fmt.Errorf("backend.remote.host must not be empty")
	}
	if err := validateRange("backend.remote.port", r.Port, minRemotePort, maxRemotePort); err != nil {
		return err
	}
	if err := validateRange("backend.remote.command_timeout_seconds", r.CommandTimeoutSeconds, minCommandTimeoutSeconds, maxCommandTimeoutSeconds); err != nil {
		return err
	}
	var err error
	if r.KeyPath != "" {
		if r.KeyPath, err = sanitizePath("backend.remote.key_path", r.KeyPath); err != nil {
			return err
		}
	}
	if r.KnownHostsPath != "" {
		if r.KnownHostsPath, err = sanitizePath("backend.remote.known_hosts_path", r.KnownHostsPath); err != nil {
			return err
		}
	}
	return nil
}

// BackendConfig converts the [backend] section into what backend.Open takes.
func (c *Config) BackendConfig() backend.Config {
	r := c.Backend.Remote
	return backend.Config{
		Name:      c.Backend.Name,
		SysfsRoot: c.Backend.SysfsRoot,
		Remote: backend.RemoteConfig{
			Host:                  r.Host,
			Port:                  r.Port,
			User:                  r.User,
			KeyPath:               r.KeyPath,
			KnownHostsPath:        r.KnownHostsPath,
			InsecureIgnoreHostKey: r.InsecureIgnoreHostKey,
			SysfsRoot:             c.Backend.SysfsRoot,
			CommandTimeout:        time.Duration(r.CommandTimeoutSeconds) * time.Second,
		},
	}
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
