package audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleBuffer_ConcatenatePreservesOrder(t *testing.T) {
	buf := NewSampleBuffer()
	require.NoError(t, buf.Append([]int16{1, 2}))
	require.NoError(t, buf.Append([]int16{3}))
	require.NoError(t, buf.Append([]int16{4, 5, 6}))

	view := buf.Freeze()
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6}, view.Concatenate())
	assert.Equal(t, 6, view.Len())
	assert.Equal(t, 3, view.BlockCount())
	assert.False(t, view.Empty())
}

func TestSampleBuffer_AppendAfterFreeze(t *testing.T) {
	buf := NewSampleBuffer()
	require.NoError(t, buf.Append([]int16{7}))
	buf.Freeze()

	err := buf.Append([]int16{8})
	assert.ErrorIs(t, err, ErrBufferFrozen)

	view := buf.Freeze()
	assert.Equal(t, []int16{7}, view.Concatenate())
}

func TestSampleBuffer_FreezeEmpty(t *testing.T) {
	view := NewSampleBuffer().Freeze()
	assert.True(t, view.Empty())
	assert.Empty(t, view.Concatenate())
	assert.Equal(t, 0, view.BlockCount())
}

func TestSampleBuffer_FreezeIsIdempotent(t *testing.T) {
	buf := NewSampleBuffer()
	require.NoError(t, buf.Append([]int16{1, 2, 3}))

	first := buf.Freeze()
	second := buf.Freeze()
	assert.Equal(t, first.Concatenate(), second.Concatenate())
	assert.Equal(t, first.Concatenate(), first.Concatenate())
}

func TestSampleBuffer_ConcatenateReturnsCopy(t *testing.T) {
	buf := NewSampleBuffer()
	require.NoError(t, buf.Append([]int16{1, 2}))
	view := buf.Freeze()

	out := view.Concatenate()
	out[0] = 99
	assert.Equal(t, []int16{1, 2}, view.Concatenate())
}

func TestSampleBuffer_ConcurrentAppendAndFreeze(t *testing.T) {
	buf := NewSampleBuffer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if err := buf.Append([]int16{int16(i)}); err != nil {
				return
			}
		}
	}()

	view := buf.Freeze()
	wg.Wait()

	// Whatever made it in before the freeze is a prefix of the sequence
	samples := view.Concatenate()
	for i, s := range samples {
		require.Equal(t, int16(i), s)
	}
	assert.Equal(t, view.Len(), buf.Stats().Samples)
}

func TestSampleBuffer_Stats(t *testing.T) {
	buf := NewSampleBuffer()
	require.NoError(t, buf.Append([]int16{1, 2, 3}))
	require.NoError(t, buf.Append([]int16{4}))

	stats := buf.Stats()
	assert.Equal(t, BufferStats{Blocks: 2, Samples: 4, Frozen: false}, stats)

	buf.Freeze()
	assert.True(t, buf.Stats().Frozen)
}
