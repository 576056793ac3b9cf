package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/gen2brain/malgo"
)

const defaultQueueBlocks = 256

// MiniaudioBackend captures through miniaudio, which picks the platform API
type MiniaudioBackend struct{}

func (b *MiniaudioBackend) NewSource(cfg *config.Config) Source {
	src := &MiniaudioSource{QueueBlocks: defaultQueueBlocks}
	if cfg != nil {
		src.DeviceName = cfg.Audio.Device
		src.PeriodFrames = cfg.Audio.PeriodFrames
		if cfg.Audio.QueueBlocks > 0 {
			src.QueueBlocks = cfg.Audio.QueueBlocks
		}
	}
	return src
}

func (b *MiniaudioBackend) GetType() BackendType {
	return BackendTypeMiniaudio
}

// ListDevices enumerates capture devices
func (b *MiniaudioBackend) ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{Name: info.Name(), IsDefault: info.IsDefault != 0})
	}
	return devices, nil
}

// MiniaudioSource opens capture streams on a miniaudio device
type MiniaudioSource struct {
	// DeviceName selects a device by case-insensitive substring; empty uses the default
	DeviceName string
	// PeriodFrames is the hardware buffer size; 0 lets miniaudio decide
	PeriodFrames int
	// QueueBlocks bounds how many blocks wait for delivery
	QueueBlocks int
}

func (s *MiniaudioSource) Open(format Format) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if format.Encoding != EncodingS16 {
		return nil, fmt.Errorf("%w: encoding %s not supported", ErrDeviceUnavailable, format.Encoding)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	queue := s.QueueBlocks
	if queue <= 0 {
		queue = defaultQueueBlocks
	}
	st := &miniaudioStream{
		ctx:    ctx,
		format: format,
		blocks: make(chan Block, queue),
		done:   make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	if s.PeriodFrames > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(s.PeriodFrames)
	}

	if s.DeviceName != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			st.release()
			return nil, fmt.Errorf("%w: list devices: %v", ErrDeviceUnavailable, err)
		}
		idx := matchDevice(deviceNames(infos), s.DeviceName)
		if idx < 0 {
			st.release()
			return nil, fmt.Errorf("%w: no capture device matching %q", ErrDeviceUnavailable, s.DeviceName)
		}
		deviceConfig.Capture.DeviceID = infos[idx].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: st.onData,
		Stop: st.onDeviceStop,
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		st.release()
		return nil, fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	st.device = device

	slog.Debug("Capture device opened", "device", s.DeviceName, "format", format.String())
	return st, nil
}

type miniaudioStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format Format

	// mu guards the blocks channel against sends after close
	mu       sync.Mutex
	closed   bool
	started  bool
	stopping bool
	blocks   chan Block
	done     chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (st *miniaudioStream) Start(onBlock func(Block)) error {
	st.mu.Lock()
	if st.started || st.closed {
		st.mu.Unlock()
		return fmt.Errorf("stream already started")
	}
	st.started = true
	st.mu.Unlock()

	go st.dispatch(onBlock)

	if err := st.device.Start(); err != nil {
		st.Stop()
		return fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}
	slog.Debug("Capture device started")
	return nil
}

// dispatch delivers queued blocks serially until the queue is closed
func (st *miniaudioStream) dispatch(onBlock func(Block)) {
	defer close(st.done)
	for block := range st.blocks {
		onBlock(block)
	}
}

// onData runs on the miniaudio thread. It blocks when the queue is full.
func (st *miniaudioStream) onData(_, input []byte, frameCount uint32) {
	samples := bytesToSamples(input)
	if len(samples) == 0 {
		return
	}
	st.send(Block{Samples: samples})
}

// onDeviceStop fires for both requested and unexpected stops
func (st *miniaudioStream) onDeviceStop() {
	st.mu.Lock()
	stopping := st.stopping
	st.mu.Unlock()
	if stopping {
		return
	}
	slog.Warn("Capture device stopped unexpectedly")
	st.send(Block{Fault: fmt.Errorf("%w: device stopped unexpectedly", ErrStreamFault)})
}

func (st *miniaudioStream) send(block Block) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.blocks <- block
}

func (st *miniaudioStream) Stop() error {
	st.stopOnce.Do(func() {
		st.mu.Lock()
		st.stopping = true
		started := st.started
		st.mu.Unlock()

		if st.device != nil {
			if err := st.device.Stop(); err != nil {
				slog.Debug("Capture device stop returned error", "error", err)
			}
		}

		st.mu.Lock()
		st.closed = true
		close(st.blocks)
		st.mu.Unlock()

		if started {
			<-st.done
		}
		st.release()
		slog.Debug("Capture device released")
	})
	return st.stopErr
}

func (st *miniaudioStream) release() {
	if st.device != nil {
		st.device.Uninit()
		st.device = nil
	}
	if st.ctx != nil {
		if err := st.ctx.Uninit(); err != nil {
			st.stopErr = fmt.Errorf("failed to release audio context: %w", err)
		}
		st.ctx.Free()
		st.ctx = nil
	}
}

// bytesToSamples decodes little-endian signed 16-bit PCM into a fresh slice
func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

func deviceNames(infos []malgo.DeviceInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names
}

// matchDevice returns the index of the first name containing want, or -1.
// An exact match wins over a substring match.
func matchDevice(names []string, want string) int {
	want = strings.ToLower(strings.TrimSpace(want))
	for i, name := range names {
		if strings.ToLower(name) == want {
			return i
		}
	}
	for i, name := range names {
		if strings.Contains(strings.ToLower(name), want) {
			return i
		}
	}
	return -1
}
