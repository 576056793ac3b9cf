package audio

import (
	"errors"
	"sync"
)

// ErrBufferFrozen is returned by Append once the buffer has been frozen
var ErrBufferFrozen = errors.New("sample buffer is frozen")

// SampleBuffer accumulates captured sample blocks in arrival order.
// Appends come from the capture goroutine, Freeze from the controlling side.
type SampleBuffer struct {
	mu      sync.Mutex
	blocks  [][]int16
	samples int
	frozen  bool
}

// BufferStats is a point-in-time summary of a buffer
type BufferStats struct {
	Blocks  int  `json:"blocks"`
	Samples int  `json:"samples"`
	Frozen  bool `json:"frozen"`
}

func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{}
}

// Append adds one block to the end of the buffer. The buffer takes
// ownership of samples; callers must not modify the slice afterwards.
func (b *SampleBuffer) Append(samples []int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return ErrBufferFrozen
	}
	b.blocks = append(b.blocks, samples)
	b.samples += len(samples)
	return nil
}

// Freeze stops accepting appends and returns a read-only view of the
// content. Calling it again returns a view of the same content.
func (b *SampleBuffer) Freeze() FrozenView {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = true
	// Full slice expression so the view never shares spare capacity
	return FrozenView{blocks: b.blocks[:len(b.blocks):len(b.blocks)], samples: b.samples}
}

func (b *SampleBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{Blocks: len(b.blocks), Samples: b.samples, Frozen: b.frozen}
}

// FrozenView is an immutable snapshot of a frozen SampleBuffer
type FrozenView struct {
	blocks  [][]int16
	samples int
}

// Concatenate returns every sample in insertion order as one new slice
func (v FrozenView) Concatenate() []int16 {
	out := make([]int16, 0, v.samples)
	for _, block := range v.blocks {
		out = append(out, block...)
	}
	return out
}

// Len returns the total number of samples
func (v FrozenView) Len() int {
	return v.samples
}

func (v FrozenView) BlockCount() int {
	return len(v.blocks)
}

// Empty reports whether no samples were captured
func (v FrozenView) Empty() bool {
	return v.samples == 0
}
