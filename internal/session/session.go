// Package session drives a single microphone recording from start to a
// frozen sample buffer.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/voicerec/internal/audio"
)

// State is the lifecycle position of a session
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StateStopping  State = "STOPPING"
	StateStopped   State = "STOPPED"
	StateFailed    State = "FAILED"
)

// ErrClosed is returned by Start after Close
var ErrClosed = errors.New("session closed")

// Event is published on every transition and every tick
type Event struct {
	State   State         `json:"state"`
	Elapsed time.Duration `json:"elapsed"`
	Fault   error         `json:"-"`
}

// Status is a snapshot of the session
type Status struct {
	State   State         `json:"state"`
	Elapsed time.Duration `json:"elapsed"`
	Blocks  int           `json:"blocks"`
	Samples int           `json:"samples"`
	Fault   string        `json:"fault,omitempty"`
}

// Ticker abstracts time.Ticker so tests can drive elapsed time by hand
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// take is one recording: its buffer and whether its stream has faulted.
// Capture callbacks hold the take they were started with, so a late fault
// can be told apart from the session's current recording.
type take struct {
	buffer  *audio.SampleBuffer
	faulted atomic.Bool
	// fault is the first fault delivered, guarded by Session.mu
	fault error
}

// Options configure a Session
type Options struct {
	Source       audio.Source
	Format       audio.Format
	TickInterval time.Duration
	NewTicker    TickerFunc
	// OnBlock is called for every block the session accepts, on the capture goroutine
	OnBlock func(samples int)
}

// Session is the recording state machine. Start, Stop, Reset and Close are
// serialised; the capture goroutine only appends to the buffer.
type Session struct {
	source       audio.Source
	format       audio.Format
	tickInterval time.Duration
	newTicker    TickerFunc
	onBlock      func(samples int)

	// opMu serialises lifecycle operations
	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	elapsed time.Duration
	take    *take
	view    *audio.FrozenView
	fault   error
	stream  audio.Stream
	closed  bool

	tickStop chan struct{}
	tickDone chan struct{}

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// New creates an idle session
func New(opts Options) *Session {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewRealTicker
	}
	return &Session{
		source:       opts.Source,
		format:       opts.Format,
		tickInterval: opts.TickInterval,
		newTicker:    opts.NewTicker,
		onBlock:      opts.OnBlock,
		state:        StateIdle,
		observers:    make(map[int]func(Event)),
	}
}

// Format returns the session's audio format
func (s *Session) Format() audio.Format {
	return s.format
}

// Subscribe registers fn for session events and returns a function removing it.
// fn is called without session locks held and must not block for long.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) publish(ev Event) {
	s.obsMu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Start opens the source and begins recording. It does nothing unless the
// session is Idle. On error the session stays Idle.
func (s *Session) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	state, closed := s.state, s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if state != StateIdle {
		slog.Debug("Start ignored", "state", state)
		return nil
	}

	stream, err := s.source.Open(s.format)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}

	tk := &take{buffer: audio.NewSampleBuffer()}

	s.mu.Lock()
	s.take = tk
	s.view = nil
	s.fault = nil
	s.elapsed = 0
	s.stream = stream
	s.state = StateRecording
	s.mu.Unlock()

	if err := stream.Start(func(b audio.Block) { s.handleBlock(tk, b) }); err != nil {
		_ = stream.Stop()
		s.mu.Lock()
		s.state = StateIdle
		s.stream = nil
		s.take = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	s.startTicker()

	slog.Info("Recording started", "format", s.format.String())
	s.publish(Event{State: StateRecording})
	return nil
}

// handleBlock runs on the capture goroutine
func (s *Session) handleBlock(tk *take, b audio.Block) {
	if tk.faulted.Load() {
		return
	}
	if b.IsFault() {
		if !tk.faulted.CompareAndSwap(false, true) {
			return
		}
		s.mu.Lock()
		tk.fault = b.Fault
		s.mu.Unlock()
		slog.Error("Audio stream fault", "error", b.Fault)
		// The stream cannot be stopped from its own delivery goroutine
		go s.abort(tk, b.Fault)
		return
	}
	if err := tk.buffer.Append(b.Samples); err != nil {
		// Frozen: a stop is in progress and this block arrived after it
		return
	}
	if s.onBlock != nil {
		s.onBlock(len(b.Samples))
	}
}

// abort moves tk to Failed, keeping what was captured. It does nothing once
// tk is no longer the session's recording.
func (s *Session) abort(tk *take, fault error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	current, state := s.take, s.state
	s.mu.RUnlock()
	if current != tk || state != StateRecording {
		// A stop already froze this take and recorded the fault
		slog.Debug("Stale stream fault ignored", "state", state)
		return
	}

	s.mu.Lock()
	s.fault = fault
	s.mu.Unlock()

	s.stopAndFreeze()
}

// Stop ends recording and freezes the buffer. It does nothing unless the
// session is Recording.
func (s *Session) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state != StateRecording {
		slog.Debug("Stop ignored", "state", state)
		return
	}

	s.stopAndFreeze()
}

// stopAndFreeze requires opMu and state Recording
func (s *Session) stopAndFreeze() {
	s.mu.Lock()
	s.state = StateStopping
	stream := s.stream
	tk := s.take
	s.mu.Unlock()

	// No tick event may follow the Stopping event
	s.stopTicker()

	s.mu.RLock()
	elapsed := s.elapsed
	s.mu.RUnlock()
	s.publish(Event{State: StateStopping, Elapsed: elapsed})

	if err := stream.Stop(); err != nil {
		slog.Warn("Audio stream stop returned error", "error", err)
	}

	s.mu.Lock()
	view := tk.buffer.Freeze()
	s.view = &view
	s.stream = nil
	fault := s.fault
	if fault == nil && tk.faulted.Load() {
		// The fault arrived while stopping; abort will find the session not Recording
		fault = tk.fault
		if fault == nil {
			fault = fmt.Errorf("%w: device failed during stop", audio.ErrStreamFault)
		}
		s.fault = fault
	}
	if fault != nil {
		s.state = StateFailed
	} else {
		s.state = StateStopped
	}
	state := s.state
	elapsed = s.elapsed
	s.mu.Unlock()

	if fault != nil {
		slog.Error("Recording failed", "error", fault, "salvaged_samples", view.Len())
	} else {
		slog.Info("Recording stopped", "elapsed", elapsed, "samples", view.Len(), "blocks", view.BlockCount())
	}
	s.publish(Event{State: state, Elapsed: elapsed, Fault: fault})
}

// Frozen returns the frozen buffer when the session is Stopped or Failed
func (s *Session) Frozen() (audio.FrozenView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.view == nil || (s.state != StateStopped && s.state != StateFailed) {
		return audio.FrozenView{}, false
	}
	return *s.view, true
}

// Reset discards the buffer and returns to Idle. It only acts from Stopped or Failed.
func (s *Session) Reset() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateStopped && s.state != StateFailed {
		state := s.state
		s.mu.Unlock()
		slog.Debug("Reset ignored", "state", state)
		return
	}
	s.state = StateIdle
	s.take = nil
	s.view = nil
	s.fault = nil
	s.elapsed = 0
	s.mu.Unlock()

	s.publish(Event{State: StateIdle})
}

// Close stops an active recording. After Close only Reset is accepted and
// a reset session refuses to Start again.
func (s *Session) Close() {
	s.Stop()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{State: s.state, Elapsed: s.elapsed}
	if s.take != nil {
		stats := s.take.buffer.Stats()
		st.Blocks = stats.Blocks
		st.Samples = stats.Samples
	}
	if s.fault != nil {
		st.Fault = s.fault.Error()
	}
	return st
}

func (s *Session) startTicker() {
	ticker := s.newTicker(s.tickInterval)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.tickStop = stop
	s.tickDone = done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				s.mu.Lock()
				if s.state != StateRecording {
					s.mu.Unlock()
					continue
				}
				s.elapsed += s.tickInterval
				elapsed := s.elapsed
				s.mu.Unlock()
				s.publish(Event{State: StateRecording, Elapsed: elapsed})
			}
		}
	}()
}

func (s *Session) stopTicker() {
	if s.tickStop != nil {
		close(s.tickStop)
		<-s.tickDone
		s.tickStop = nil
		s.tickDone = nil
	}
}
