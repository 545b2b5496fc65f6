package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General     GeneralSettings     `json:"general"`
	Connections ConnectionSettings  `json:"connections"`
	Performance PerformanceSettings `json:"performance"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	AutoResume         bool   `json:"auto_resume"`
}

// ConnectionSettings contains network connection parameters.
type ConnectionSettings struct {
	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
	UserAgent              string `json:"user_agent"`
	ProxyURL               string `json:"proxy_url"`
	SkipTLSVerification    bool   `json:"skip_tls_verification"`
}

// PerformanceSettings contains performance tuning parameters.
type PerformanceSettings struct {
	ProgressInterval time.Duration `json:"progress_interval"`
	ProbeTimeout     time.Duration `json:"probe_timeout"`
}

// SettingMeta provides metadata for a single setting (for help output).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "default_download_dir", Label: "Default Download Dir", Description: "Directory used when a download is added without a destination.", Type: "string"},
			{Key: "auto_resume", Label: "Auto Resume", Description: "Automatically resume paused downloads on startup.", Type: "bool"},
		},
		"Network": {
			{Key: "max_concurrent_downloads", Label: "Max Concurrent Downloads", Description: "Number of transfers running at once (1-32). Requires restart.", Type: "int"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP/HTTPS or socks5:// proxy URL. Leave empty to use system default.", Type: "string"},
			{Key: "skip_tls_verification", Label: "Skip TLS Verification", Description: "Accept invalid server certificates.", Type: "bool"},
		},
		"Performance": {
			{Key: "progress_interval", Label: "Progress Interval", Description: "Minimum time between progress updates (e.g., 200ms).", Type: "duration"},
			{Key: "probe_timeout", Label: "Probe Timeout", Description: "Timeout for the filename lookup request (e.g., 30s).", Type: "duration"},
		},
	}
}

// CategoryOrder returns the order of categories for help output.
func CategoryOrder() []string {
	return []string{"General", "Network", "Performance"}
}

const (
	MaxConcurrentDownloadsLimit = 32
)

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	defaultDir := filepath.Join(homeDir, "Downloads")

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
			AutoResume:         false,
		},
		Connections: ConnectionSettings{
			MaxConcurrentDownloads: 5,
			UserAgent:              "", // Empty means use default UA
		},
		Performance: PerformanceSettings{
			ProgressInterval: 200 * time.Millisecond,
			ProbeTimeout:     30 * time.Second,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetStateDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	settings.normalize()

	return settings, nil
}

// normalize clamps values a hand-edited file may have pushed out of range
func (s *Settings) normalize() {
	if s.Connections.MaxConcurrentDownloads < 1 {
		s.Connections.MaxConcurrentDownloads = 1
	}
	if s.Connections.MaxConcurrentDownloads > MaxConcurrentDownloadsLimit {
		s.Connections.MaxConcurrentDownloads = MaxConcurrentDownloadsLimit
	}
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// RuntimeConfig carries the transport-facing subset of Settings
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	ProgressInterval    time.Duration
	ProbeTimeout        time.Duration
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		UserAgent:           s.Connections.UserAgent,
		ProxyURL:            s.Connections.ProxyURL,
		SkipTLSVerification: s.Connections.SkipTLSVerification,
		ProgressInterval:    s.Performance.ProgressInterval,
		ProbeTimeout:        s.Performance.ProbeTimeout,
	}
}
