// Package audiotest provides in-memory audio sources for tests.
package audiotest

import (
	"fmt"
	"sync"

	"github.com/audiolibrelab/voicerec/internal/audio"
)

// ScriptedSource hands out streams that deliver blocks pushed by the test
type ScriptedSource struct {
	// OpenErr is returned from Open when set
	OpenErr error
	// StartErr is returned from Stream.Start when set
	StartErr error

	mu      sync.Mutex
	streams []*ScriptedStream
	opens   int
}

func (s *ScriptedSource) Open(format audio.Format) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens++
	if s.OpenErr != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, s.OpenErr)
	}
	st := &ScriptedStream{
		format:   format,
		startErr: s.StartErr,
		queue:    make(chan audio.Block, 1024),
		done:     make(chan struct{}),
	}
	s.streams = append(s.streams, st)
	return st, nil
}

// Opens returns how many times Open was called
func (s *ScriptedSource) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Last returns the most recently opened stream or nil
func (s *ScriptedSource) Last() *ScriptedStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

// ScriptedStream delivers pushed blocks on its own goroutine
type ScriptedStream struct {
	format   audio.Format
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
	stops   int
	queue   chan audio.Block
	done    chan struct{}
}

func (st *ScriptedStream) Format() audio.Format {
	return st.format
}

func (st *ScriptedStream) Start(onBlock func(audio.Block)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.startErr != nil {
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, st.startErr)
	}
	st.started = true
	go func() {
		defer close(st.done)
		for block := range st.queue {
			onBlock(block)
		}
	}()
	return nil
}

// Push queues samples for delivery. It reports false once the stream is stopped.
func (st *ScriptedStream) Push(samples ...int16) bool {
	return st.push(audio.Block{Samples: samples})
}

// Fail queues a fault block
func (st *ScriptedStream) Fail(err error) bool {
	return st.push(audio.Block{Fault: fmt.Errorf("%w: %v", audio.ErrStreamFault, err)})
}

func (st *ScriptedStream) push(block audio.Block) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stopped {
		return false
	}
	st.queue <- block
	return true
}

func (st *ScriptedStream) Stop() error {
	st.mu.Lock()
	st.stops++
	if st.stopped {
		st.mu.Unlock()
		return nil
	}
	st.stopped = true
	started := st.started
	close(st.queue)
	st.mu.Unlock()

	if started {
		<-st.done
	}
	return nil
}

// Stops returns how many times Stop was called
func (st *ScriptedStream) Stops() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stops
}

// Stopped reports whether Stop has completed at least once
func (st *ScriptedStream) Stopped() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stopped
}
