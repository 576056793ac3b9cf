package audio

import (
	"fmt"
	"time"
)

// SampleEncoding identifies how a single sample is stored
type SampleEncoding string

const (
	EncodingS16 SampleEncoding = "s16"
)

// BitDepth returns the number of bits per sample for the encoding
func (e SampleEncoding) BitDepth() int {
	switch e {
	case EncodingS16:
		return 16
	default:
		return 0
	}
}

// Format describes the PCM stream produced by a source. It is fixed for
// the lifetime of a session.
type Format struct {
	SampleRate int            `json:"sample_rate" yaml:"sample_rate"`
	Channels   int            `json:"channels" yaml:"channels"`
	Encoding   SampleEncoding `json:"encoding" yaml:"encoding"`
}

// DefaultFormat is 44.1kHz mono signed 16-bit
var DefaultFormat = Format{SampleRate: 44100, Channels: 1, Encoding: EncodingS16}

// Validate reports whether the format can be captured and encoded
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be > 0, got: %d", f.Channels)
	}
	if f.Encoding.BitDepth() == 0 {
		return fmt.Errorf("unsupported sample encoding: %q", f.Encoding)
	}
	return nil
}

// Duration returns the playback length of n interleaved samples
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Encoding)
}
