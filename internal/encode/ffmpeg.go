package encode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/config"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// FFmpeg encodes through an ffmpeg executable
type FFmpeg struct {
	Binary    string
	Bitrate   string
	Extension string
	// TempDir is the parent of the per-job scratch directory; empty uses os.TempDir
	TempDir string
	// Stderr, when set, also receives ffmpeg's diagnostic output as it runs
	Stderr io.Writer

	lookPath func(string) (string, error)
}

// NewFFmpeg creates an encoder from configuration
func NewFFmpeg(cfg config.EncoderConfig) *FFmpeg {
	return &FFmpeg{
		Binary:    cfg.Binary,
		Bitrate:   cfg.Bitrate,
		Extension: cfg.Extension,
		TempDir:   cfg.TempDir,
		lookPath:  exec.LookPath,
	}
}

// Encode writes req.Samples to a scratch WAV file and converts it to
// req.Destination. The scratch directory is removed on every path.
func (f *FFmpeg) Encode(ctx context.Context, req Request) Result {
	if len(req.Samples) == 0 {
		slog.Warn("No audio was recorded")
		return Result{Err: newError(KindNoAudioCaptured, nil)}
	}
	if err := req.Format.Validate(); err != nil {
		return Result{Err: newError(KindIOFailure, fmt.Errorf("invalid format: %w", err))}
	}

	dest := NormalizeDestination(req.Destination, f.extension())

	bin, err := f.resolveBinary()
	if err != nil {
		slog.Error("Encoder not found", "binary", f.binary(), "error", err)
		return Result{Path: dest, Err: newError(KindEncoderNotFound, err)}
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Result{Path: dest, Err: newError(KindIOFailure, fmt.Errorf("failed to create output directory: %w", err))}
		}
	}

	scratch, err := os.MkdirTemp(f.TempDir, "voicerec-")
	if err != nil {
		return Result{Path: dest, Err: newError(KindIOFailure, fmt.Errorf("failed to create temp directory: %w", err))}
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			slog.Warn("Failed to remove temp directory", "path", scratch, "error", err)
		}
	}()

	wavPath := filepath.Join(scratch, fmt.Sprintf("capture-%s.wav", uuid.NewString()))
	if err := WriteWAV(wavPath, req.Samples, req.Format); err != nil {
		return Result{Path: dest, Err: newError(KindIOFailure, err)}
	}

	args := f.buildArgs(wavPath, dest, req.Format)
	slog.Info("Encoding recording", "destination", dest, "samples", len(req.Samples), "bitrate", f.bitrate())
	slog.Debug("FFmpeg command", "binary", bin, "args", strings.Join(args, " "))

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if f.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, f.Stderr)
	}
	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		slog.Error("FFmpeg failed", "error", err, "stderr", diag)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return Result{Path: dest, Err: &Error{Kind: KindEncoderExecutionFailed, Diagnostic: diag, Err: err}}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Result{Path: dest, Err: newError(KindIOFailure, fmt.Errorf("output file missing after encoding: %w", err))}
	}

	slog.Info("Recording saved", "path", dest, "bytes", info.Size(), "took", time.Since(start).Round(time.Millisecond))
	return Result{Path: dest}
}

func (f *FFmpeg) buildArgs(input, output string, format audio.Format) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", input,
		"-y",
		"-vn",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-b:a", f.bitrate(),
		output,
	}
}

func (f *FFmpeg) resolveBinary() (string, error) {
	lookPath := f.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return lookPath(f.binary())
}

func (f *FFmpeg) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

func (f *FFmpeg) bitrate() string {
	if f.Bitrate == "" {
		return "192k"
	}
	return f.Bitrate
}

func (f *FFmpeg) extension() string {
	if f.Extension == "" {
		return "mp3"
	}
	return f.Extension
}

// WriteWAV writes samples as a 16-bit PCM WAV file
func WriteWAV(path string, samples []int16, format audio.Format) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	enc := wav.NewEncoder(out, format.SampleRate, format.Encoding.BitDepth(), format.Channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: format.Encoding.BitDepth(),
	}
	if err := enc.Write(buf); err != nil {
		out.Close()
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close wav file: %w", err)
	}
	return nil
}
