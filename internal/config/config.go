package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RootConfig is the on-disk layout. Top-level sections form the default
// profile; entries under configs override them field by field.
type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config,omitempty"`
	Config       `mapstructure:",squash" yaml:",inline"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs,omitempty"`
}

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Encoder EncoderConfig `mapstructure:"encoder" yaml:"encoder"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	// Profile is the resolved profile name, filled in by LoadWithProfile
	Profile string `mapstructure:"-" yaml:"-"`
}

type AudioConfig struct {
	SampleRate   int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels     int    `mapstructure:"channels" yaml:"channels"`
	Backend      string `mapstructure:"backend" yaml:"backend"` // "miniaudio", "auto"
	Device       string `mapstructure:"device" yaml:"device"`   // empty = system default
	PeriodFrames int    `mapstructure:"period_frames" yaml:"period_frames"`
	QueueBlocks  int    `mapstructure:"queue_blocks" yaml:"queue_blocks"`
}

type SessionConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

type EncoderConfig struct {
	Binary    string `mapstructure:"binary" yaml:"binary"`
	Bitrate   string `mapstructure:"bitrate" yaml:"bitrate"`
	Extension string `mapstructure:"extension" yaml:"extension"`
	TempDir   string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type OutputConfig struct {
	Directory   string `mapstructure:"directory" yaml:"directory"`
	NamePattern string `mapstructure:"name_pattern" yaml:"name_pattern"` // time layout
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:  44100,
			Channels:    1,
			Backend:     "auto",
			QueueBlocks: 256,
		},
		Session: SessionConfig{
			TickInterval: time.Second,
		},
		Encoder: EncoderConfig{
			Binary:    "ffmpeg",
			Bitrate:   "192k",
			Extension: "mp3",
		},
		Output: OutputConfig{
			Directory:   filepath.Join(os.Getenv("HOME"), "Audio", "VoiceRec"),
			NamePattern: "recording-20060102-150405",
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Profile: "default",
	}
}

// DefaultPath returns $HOME/.config/voicerec.yaml
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/voicerec.yaml")
}

// LoadWithProfile reads configFile, resolves the requested profile (or the
// file's active_config) and validates the result. A missing file yields the
// defaults, still subject to VOICEREC_* environment overrides.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	base := rootConfig.Config
	selected := &base
	if configName != "default" {
		p, exists := rootConfig.Configs[configName]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
		selected = mergeConfigs(&base, p)
	}
	selected.Profile = configName

	selected.Output.Directory = expandPath(selected.Output.Directory)
	selected.Encoder.TempDir = expandPath(selected.Encoder.TempDir)
	selected.Log.File = expandPath(selected.Log.File)

	if err := Validate(selected); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selected, nil
}

// ReadRootConfig parses configFile on top of the built-in defaults
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := newViper()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) && fileExists(configFile) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for name, p := range rootConfig.Configs {
		if p == nil {
			return nil, fmt.Errorf("configuration profile '%s' is empty", name)
		}
	}

	return &rootConfig, nil
}

// newViper returns a viper instance with defaults and environment binding
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VOICEREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.device", d.Audio.Device)
	v.SetDefault("audio.period_frames", d.Audio.PeriodFrames)
	v.SetDefault("audio.queue_blocks", d.Audio.QueueBlocks)
	v.SetDefault("session.tick_interval", d.Session.TickInterval)
	v.SetDefault("encoder.binary", d.Encoder.Binary)
	v.SetDefault("encoder.bitrate", d.Encoder.Bitrate)
	v.SetDefault("encoder.extension", d.Encoder.Extension)
	v.SetDefault("encoder.temp_dir", d.Encoder.TempDir)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.name_pattern", d.Output.NamePattern)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	return v
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return err
	}
	if newActiveConfig != "default" {
		if _, exists := rootConfig.Configs[newActiveConfig]; !exists {
			return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
		}
	}

	// Separate instance so defaults are not written back into the file
	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// ProfileNames lists "default" followed by the named profiles in configFile
func ProfileNames(configFile string) ([]string, error) {
	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range rootConfig.Configs {
		if name != "default" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{"default"}, names...), nil
}

// mergeConfigs overlays every non-zero field of profile onto a copy of base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
	}
	if profile == nil {
		return result
	}

	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
	}
	if profile.Audio.Channels != 0 {
		result.Audio.Channels = profile.Audio.Channels
	}
	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
	}
	if profile.Audio.Device != "" {
		result.Audio.Device = profile.Audio.Device
	}
	if profile.Audio.PeriodFrames != 0 {
		result.Audio.PeriodFrames = profile.Audio.PeriodFrames
	}
	if profile.Audio.QueueBlocks != 0 {
		result.Audio.QueueBlocks = profile.Audio.QueueBlocks
	}

	if profile.Session.TickInterval != 0 {
		result.Session.TickInterval = profile.Session.TickInterval
	}

	if profile.Encoder.Binary != "" {
		result.Encoder.Binary = profile.Encoder.Binary
	}
	if profile.Encoder.Bitrate != "" {
		result.Encoder.Bitrate = profile.Encoder.Bitrate
	}
	if profile.Encoder.Extension != "" {
		result.Encoder.Extension = profile.Encoder.Extension
	}
	if profile.Encoder.TempDir != "" {
		result.Encoder.TempDir = profile.Encoder.TempDir
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
	}
	if profile.Output.NamePattern != "" {
		result.Output.NamePattern = profile.Output.NamePattern
	}

	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}

	if profile.Log.File != "" {
		result.Log.File = profile.Log.File
	}
	if profile.Log.MaxSizeMB != 0 {
		result.Log.MaxSizeMB = profile.Log.MaxSizeMB
	}
	if profile.Log.MaxBackups != 0 {
		result.Log.MaxBackups = profile.Log.MaxBackups
	}
	if profile.Log.MaxAgeDays != 0 {
		result.Log.MaxAgeDays = profile.Log.MaxAgeDays
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
