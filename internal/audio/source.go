package audio

import (
	"errors"
)

var (
	// ErrDeviceUnavailable means the capture device could not be opened or started
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrStreamFault means the device failed after capture had started
	ErrStreamFault = errors.New("audio stream fault")
)

// Block is one delivery from a capture stream. Either Samples holds
// interleaved PCM data or Fault reports that the stream died.
type Block struct {
	Samples []int16
	Fault   error
}

// IsFault reports whether the block carries a stream fault
func (b Block) IsFault() bool {
	return b.Fault != nil
}

// Source opens capture streams
type Source interface {
	// Open allocates the capture device for the given format. Errors wrap
	// ErrDeviceUnavailable.
	Open(format Format) (Stream, error)
}

// Stream is an opened capture device
type Stream interface {
	// Start begins delivering blocks to onBlock. Calls happen on a single
	// goroutine, in capture order, and never overlap.
	Start(onBlock func(Block)) error

	// Stop halts capture and waits until every captured block has been
	// delivered. No onBlock call happens after Stop returns. Safe to call
	// more than once.
	Stop() error
}

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Name      string `json:"name" yaml:"name"`
	IsDefault bool   `json:"is_default" yaml:"is_default"`
}
