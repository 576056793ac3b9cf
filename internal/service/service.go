package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/audiolibrelab/voicerec/internal/encode"
	"github.com/audiolibrelab/voicerec/internal/metrics"
	"github.com/audiolibrelab/voicerec/internal/play"
	"github.com/audiolibrelab/voicerec/internal/session"
)

// Service is what presentation layers (CLI, web server) drive
type Service interface {
	// Recording operations
	RequestStart() error
	RequestStop(ctx context.Context, destination string) (encode.Result, bool)
	Reset()

	// Status and events
	Status() Status
	Subscribe(fn func(session.Event)) func()
	GetLastError() string

	// Output
	DefaultDestination() string
	Play(path string) error

	GetConfig() *config.Config
	Close()
}

// ResultInfo summarises the last encode for status display
type ResultInfo struct {
	Path       string    `json:"path,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Status is a point-in-time view for presentation
type Status struct {
	State      session.State `json:"state"`
	Elapsed    time.Duration `json:"elapsed"`
	Blocks     int           `json:"blocks"`
	Samples    int           `json:"samples"`
	Fault      string        `json:"fault,omitempty"`
	Format     audio.Format  `json:"format"`
	LastResult *ResultInfo   `json:"last_result,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
}

// Controller owns one recording session and the encoder
type Controller struct {
	cfg     *config.Config
	sess    *session.Session
	encoder encode.Encoder
	player  *play.Player
	now     func() time.Time

	// stopMu makes a stop and its encode one step
	stopMu sync.Mutex

	mu         sync.RWMutex
	lastError  string
	lastResult *ResultInfo

	unsubscribe func()
}

// Options override collaborators, mainly for tests
type Options struct {
	Source    audio.Source
	Encoder   encode.Encoder
	NewTicker session.TickerFunc
	Now       func() time.Time
	// EncoderOutput receives ffmpeg's stderr when the default encoder is used
	EncoderOutput io.Writer
}

// New creates a controller for cfg. Missing collaborators are built from
// configuration: a capture source for cfg.Audio and ffmpeg for cfg.Encoder.
func New(cfg *config.Config, opts Options) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	source := opts.Source
	if source == nil {
		var err error
		source, err = audio.NewSource(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio source: %w", err)
		}
	}
	encoder := opts.Encoder
	if encoder == nil {
		ffmpeg := encode.NewFFmpeg(cfg.Encoder)
		ffmpeg.Stderr = opts.EncoderOutput
		encoder = ffmpeg
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		cfg:     cfg,
		encoder: encoder,
		player:  play.New(cfg),
		now:     now,
	}
	c.sess = session.New(session.Options{
		Source:       source,
		Format:       audio.FormatFromConfig(cfg),
		TickInterval: cfg.Session.TickInterval,
		NewTicker:    opts.NewTicker,
		OnBlock: func(samples int) {
			metrics.CapturedBlocksTotal.Inc()
			metrics.CapturedSamplesTotal.Add(float64(samples))
		},
	})
	c.unsubscribe = c.sess.Subscribe(c.observe)
	metrics.SetState(string(session.StateIdle))

	return c, nil
}

// observe keeps metrics and the last error in step with session events
func (c *Controller) observe(ev session.Event) {
	metrics.SetState(string(ev.State))
	metrics.RecordingElapsedSeconds.Set(ev.Elapsed.Seconds())

	if ev.State == session.StateFailed && ev.Fault != nil {
		metrics.StreamFaultsTotal.Inc()
		c.setLastError(fmt.Sprintf("Recording failed: %v", ev.Fault))
	}
}

// RequestStart begins a recording. It is a no-op unless the session is idle.
func (c *Controller) RequestStart() error {
	if c.sess.State() != session.StateIdle {
		slog.Debug("Start requested while not idle", "state", c.sess.State())
		return nil
	}

	if err := c.sess.Start(); err != nil {
		metrics.StartFailuresTotal.Inc()
		c.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}

	metrics.RecordingsStartedTotal.Inc()
	c.clearLastError()
	return nil
}

// RequestStop stops an active recording (or takes the salvaged buffer of a
// failed one), encodes it to destination and resets the session. The bool
// is false when there was nothing to stop.
func (c *Controller) RequestStop(ctx context.Context, destination string) (encode.Result, bool) {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	switch state := c.sess.State(); state {
	case session.StateIdle:
		slog.Debug("Stop requested while idle")
		return encode.Result{}, false
	case session.StateRecording, session.StateStopping:
		c.sess.Stop()
	}

	view, ok := c.sess.Frozen()
	if !ok {
		return encode.Result{}, false
	}
	format := c.sess.Format()
	metrics.RecordingLength.Observe(format.Duration(view.Len()).Seconds())

	if destination == "" {
		destination = c.DefaultDestination()
	}

	encodeStart := time.Now()
	result := c.encoder.Encode(ctx, encode.Request{
		Samples:     view.Concatenate(),
		Format:      format,
		Destination: destination,
	})
	metrics.EncodeDuration.Observe(time.Since(encodeStart).Seconds())
	c.recordResult(result)

	c.sess.Reset()
	return result, true
}

func (c *Controller) recordResult(result encode.Result) {
	info := &ResultInfo{Path: result.Path, FinishedAt: c.now()}
	outcome := "ok"
	if result.Err != nil {
		outcome = string(result.Kind())
		if outcome == "" {
			outcome = "unknown"
		}
		info.Kind = string(result.Kind())
		info.Error = result.Err.Error()
		info.Diagnostic = result.Diagnostic()
	}
	metrics.EncodesTotal.WithLabelValues(outcome).Inc()

	c.mu.Lock()
	c.lastResult = info
	c.mu.Unlock()

	if result.Err != nil {
		if errors.Is(result.Err, encode.ErrNoAudioCaptured) {
			c.setLastError("No audio was recorded")
		} else {
			c.setLastError(fmt.Sprintf("Failed to save recording: %v", result.Err))
		}
		return
	}
	c.clearLastError()
}

// Reset discards a stopped or failed recording without encoding it
func (c *Controller) Reset() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	c.sess.Reset()
}

func (c *Controller) Status() Status {
	st := c.sess.Status()

	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{
		State:      st.State,
		Elapsed:    st.Elapsed,
		Blocks:     st.Blocks,
		Samples:    st.Samples,
		Fault:      st.Fault,
		Format:     c.sess.Format(),
		LastResult: c.lastResult,
		LastError:  c.lastError,
	}
}

// Subscribe forwards session events to fn
func (c *Controller) Subscribe(fn func(session.Event)) func() {
	return c.sess.Subscribe(fn)
}

// DefaultDestination names a new file in the output directory after the current time
func (c *Controller) DefaultDestination() string {
	name := c.now().Format(c.cfg.Output.NamePattern)
	return encode.NormalizeDestination(filepath.Join(c.cfg.Output.Directory, name), c.cfg.Encoder.Extension)
}

func (c *Controller) Play(path string) error {
	return c.player.Play(path)
}

func (c *Controller) GetConfig() *config.Config {
	return c.cfg
}

// Close stops any active recording without encoding it
func (c *Controller) Close() {
	c.sess.Close()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Controller) setLastError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = msg
	slog.Error("Controller error", "error", msg)
}

func (c *Controller) clearLastError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = ""
}

// GetLastError returns the most recent error message, empty after a success
func (c *Controller) GetLastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}
