// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     config
// Description: TOML configuration with defaults and environment expansion
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the complete application configuration
type Config struct {
	General GeneralConfig `toml:"general"`
	Gemini  GeminiConfig  `toml:"gemini"`
	Audio   AudioConfig   `toml:"audio"`
	Server  ServerConfig  `toml:"server"`
	Journal JournalConfig `toml:"journal"`
}

// GeneralConfig holds general application settings
type GeneralConfig struct {
	Name      string `toml:"name"`
	DataDir   string `toml:"data_dir"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// GeminiConfig holds the generative API settings. The key itself is never
// stored in the file; it is read from APIKeyEnv at call time.
type GeminiConfig struct {
	BaseURL       string   `toml:"base_url"`
	TextModel     string   `toml:"text_model"`
	SpeechModel   string   `toml:"speech_model"`
	APIKeyEnv     []string `toml:"api_key_env"`
	Timeout       Duration `toml:"timeout"`
	TemplatesPath string   `toml:"templates_path"`
}

// AudioConfig holds output device settings
type AudioConfig struct {
	Backend         string `toml:"backend"` // "portaudio" or "null"
	SampleRate      int    `toml:"sample_rate"`
	Channels        int    `toml:"channels"`
	FramesPerBuffer int    `toml:"frames_per_buffer"`
}

// ServerConfig holds HTTP/WebSocket settings for `spiritflow serve`
type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// JournalConfig holds generation journal settings
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{Journal: JournalConfig{Enabled: true}}
	cfg.applyDefaults()
	cfg.expandEnvVars()
	return cfg
}

// Load loads configuration from a TOML file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg := Config{Journal: JournalConfig{Enabled: true}}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()

	return &cfg, nil
}

// LoadFromEnv loads configuration from SPIRITFLOW_CONFIG or the default
// locations. Without any file the defaults are returned.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("SPIRITFLOW_CONFIG")
	if path != "" {
		return Load(path)
	}

	for _, p := range defaultPaths() {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}

	return Default(), nil
}

func defaultPaths() []string {
	paths := []string{
		"./configs/config.toml",
		"./config.toml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "spiritflow", "config.toml"))
	}
	return paths
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// General
	if c.General.Name == "" {
		c.General.Name = "SpiritFlow"
	}
	if c.General.DataDir == "" {
		c.General.DataDir = "$HOME/.local/share/spiritflow"
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.General.LogFormat == "" {
		c.General.LogFormat = "text"
	}

	// Gemini
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.Gemini.TextModel == "" {
		c.Gemini.TextModel = "gemini-2.5-flash"
	}
	if c.Gemini.SpeechModel == "" {
		c.Gemini.SpeechModel = "gemini-2.5-flash-preview-tts"
	}
	if len(c.Gemini.APIKeyEnv) == 0 {
		c.Gemini.APIKeyEnv = []string{"API_KEY", "GEMINI_API_KEY"}
	}
	if c.Gemini.Timeout.Duration == 0 {
		c.Gemini.Timeout.Duration = 90 * time.Second
	}

	// Audio
	if c.Audio.Backend == "" {
		c.Audio.Backend = "portaudio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 24000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FramesPerBuffer == 0 {
		c.Audio.FramesPerBuffer = 1024
	}

	// Server
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 30 * time.Second
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 120 * time.Second
	}

	// Journal
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.General.DataDir, "journal.db")
	}
}

// expandEnvVars expands environment variables in path values
func (c *Config) expandEnvVars() {
	c.General.DataDir = os.ExpandEnv(c.General.DataDir)
	c.Journal.Path = os.ExpandEnv(c.Journal.Path)
	c.Gemini.TemplatesPath = os.ExpandEnv(c.Gemini.TemplatesPath)
}

// ServerAddress returns host:port for the HTTP server
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Audio.Backend {
	case "portaudio", "null":
	default:
		return fmt.Errorf("unknown audio backend %q (want portaudio or null)", c.Audio.Backend)
	}
	if c.Audio.Channels < 1 {
		return fmt.Errorf("audio channels must be positive, got %d", c.Audio.Channels)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return nil
}
