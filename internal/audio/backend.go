package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/voicerec/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeMiniaudio BackendType = "miniaudio"
	BackendTypeAuto      BackendType = "auto"
)

// Backend defines the interface for capture backend implementations
type Backend interface {
	// NewSource creates a source configured from cfg
	NewSource(cfg *config.Config) Source

	// ListDevices lists capture devices known to the backend
	ListDevices() ([]DeviceInfo, error)

	// GetType returns the backend type
	GetType() BackendType
}

// NewSource creates a capture source using the backend named in configuration
func NewSource(cfg *config.Config) (Source, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewSource(cfg), nil
}

// NewBackend returns the backend selected by cfg
func NewBackend(cfg *config.Config) (Backend, error) {
	switch determineBackend(cfg) {
	case BackendTypeMiniaudio:
		return &MiniaudioBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", cfg.Audio.Backend)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	if cfg == nil || cfg.Audio.Backend == "" {
		return BackendTypeMiniaudio
	}
	switch strings.ToLower(cfg.Audio.Backend) {
	case "miniaudio", "malgo":
		return BackendTypeMiniaudio
	case string(BackendTypeAuto):
		// miniaudio picks the native API itself (ALSA, PulseAudio, CoreAudio, WASAPI)
		return BackendTypeMiniaudio
	}
	return BackendType(cfg.Audio.Backend)
}

// FormatFromConfig returns the capture format configured in cfg
func FormatFromConfig(cfg *config.Config) Format {
	return Format{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Encoding:   EncodingS16,
	}
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeMiniaudio}
}
