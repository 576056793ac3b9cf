package audio

import (
	"testing"
	"time"

	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestFormat_Validate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"default", DefaultFormat, false},
		{"stereo 48k", Format{SampleRate: 48000, Channels: 2, Encoding: EncodingS16}, false},
		{"zero rate", Format{SampleRate: 0, Channels: 1, Encoding: EncodingS16}, true},
		{"zero channels", Format{SampleRate: 44100, Channels: 0, Encoding: EncodingS16}, true},
		{"unknown encoding", Format{SampleRate: 44100, Channels: 1, Encoding: "f32"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormat_Duration(t *testing.T) {
	assert.Equal(t, time.Second, DefaultFormat.Duration(44100))
	stereo := Format{SampleRate: 48000, Channels: 2, Encoding: EncodingS16}
	assert.Equal(t, 500*time.Millisecond, stereo.Duration(48000))
	assert.Equal(t, time.Duration(0), Format{}.Duration(100))
}

func TestBytesToSamples(t *testing.T) {
	data := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x07}
	// Trailing odd byte is ignored
	assert.Equal(t, []int16{1, -1, -32768}, bytesToSamples(data))
	assert.Empty(t, bytesToSamples(nil))
}

func TestMatchDevice(t *testing.T) {
	names := []string{"Built-in Microphone", "USB Audio Mic", "Mic"}

	assert.Equal(t, 2, matchDevice(names, "mic"))
	assert.Equal(t, 1, matchDevice(names, "usb"))
	assert.Equal(t, 0, matchDevice(names, " Built-in "))
	assert.Equal(t, -1, matchDevice(names, "scarlett"))
}

func TestDetermineBackend(t *testing.T) {
	tests := []struct {
		backend string
		want    BackendType
	}{
		{"", BackendTypeMiniaudio},
		{"auto", BackendTypeMiniaudio},
		{"Miniaudio", BackendTypeMiniaudio},
		{"malgo", BackendTypeMiniaudio},
		{"jack", BackendType("jack")},
	}
	for _, tt := range tests {
		cfg := &config.Config{Audio: config.AudioConfig{Backend: tt.backend}}
		assert.Equal(t, tt.want, determineBackend(cfg), "backend %q", tt.backend)
	}

	_, err := NewBackend(&config.Config{Audio: config.AudioConfig{Backend: "jack"}})
	assert.Error(t, err)
}

func TestMiniaudioBackend_NewSourceUsesConfig(t *testing.T) {
	cfg := &config.Config{Audio: config.AudioConfig{Device: "usb", PeriodFrames: 1024, QueueBlocks: 32}}
	src, ok := (&MiniaudioBackend{}).NewSource(cfg).(*MiniaudioSource)
	if assert.True(t, ok) {
		assert.Equal(t, "usb", src.DeviceName)
		assert.Equal(t, 1024, src.PeriodFrames)
		assert.Equal(t, 32, src.QueueBlocks)
	}
}
