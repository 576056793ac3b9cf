package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var bitratePattern = regexp.MustCompile(`^[0-9]+[kKmM]?$`)

// Validate checks every section of a resolved configuration
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateAudio(cfg.Audio); err != nil {
		return err
	}
	if err := validateSession(cfg.Session); err != nil {
		return err
	}
	if err := validateEncoder(cfg.Encoder); err != nil {
		return err
	}
	if err := validateOutput(cfg.Output); err != nil {
		return err
	}
	if err := validateServer(cfg.Server); err != nil {
		return err
	}
	return validateLog(cfg.Log)
}

func validateAudio(a AudioConfig) error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("audio: 'sample_rate' must be between 8000 and 192000, got: %d", a.SampleRate)
	}
	if a.Channels < 1 || a.Channels > 8 {
		return fmt.Errorf("audio: 'channels' must be between 1 and 8, got: %d", a.Channels)
	}
	if a.PeriodFrames < 0 {
		return fmt.Errorf("audio: 'period_frames' must be >= 0, got: %d", a.PeriodFrames)
	}
	if a.QueueBlocks < 0 {
		return fmt.Errorf("audio: 'queue_blocks' must be >= 0, got: %d", a.QueueBlocks)
	}
	return nil
}

func validateSession(s SessionConfig) error {
	if s.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("session: 'tick_interval' must be >= 10ms, got: %s", s.TickInterval)
	}
	return nil
}

func validateEncoder(e EncoderConfig) error {
	if strings.TrimSpace(e.Binary) == "" {
		return fmt.Errorf("encoder: 'binary' is required")
	}
	if !bitratePattern.MatchString(e.Bitrate) {
		return fmt.Errorf("encoder: 'bitrate' must look like '192k', got: %q", e.Bitrate)
	}
	ext := strings.TrimPrefix(e.Extension, ".")
	if ext == "" || strings.ContainsAny(ext, `/\ .`) {
		return fmt.Errorf("encoder: 'extension' must be a bare file extension, got: %q", e.Extension)
	}
	return nil
}

func validateOutput(o OutputConfig) error {
	if strings.TrimSpace(o.Directory) == "" {
		return fmt.Errorf("output: 'directory' is required")
	}
	if strings.TrimSpace(o.NamePattern) == "" {
		return fmt.Errorf("output: 'name_pattern' is required")
	}
	if strings.ContainsAny(o.NamePattern, `/\`) {
		return fmt.Errorf("output: 'name_pattern' cannot contain path separators, got: %q", o.NamePattern)
	}
	return nil
}

func validateServer(s ServerConfig) error {
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server: 'port' must be a number between 1 and 65535, got: %q", s.Port)
	}
	return nil
}

func validateLog(l LogConfig) error {
	if l.File == "" {
		return nil
	}
	if l.MaxSizeMB <= 0 {
		return fmt.Errorf("log: 'max_size_mb' must be > 0, got: %d", l.MaxSizeMB)
	}
	if l.MaxBackups < 0 {
		return fmt.Errorf("log: 'max_backups' must be >= 0, got: %d", l.MaxBackups)
	}
	if l.MaxAgeDays < 0 {
		return fmt.Errorf("log: 'max_age_days' must be >= 0, got: %d", l.MaxAgeDays)
	}
	return nil
}
