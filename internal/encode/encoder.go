// Package encode turns captured PCM samples into a compressed audio file
// by way of a temporary WAV file and an external ffmpeg process.
package encode

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/voicerec/internal/audio"
)

// Request is one encode job
type Request struct {
	Samples     []int16
	Format      audio.Format
	Destination string
}

// Result reports where the file went or why it did not
type Result struct {
	Path string `json:"path,omitempty"`
	Err  error  `json:"-"`
}

// OK reports whether the encode succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Kind returns the failure kind, or "" on success
func (r Result) Kind() ErrorKind {
	return KindOf(r.Err)
}

// Diagnostic returns the encoder's diagnostic output for failed runs
func (r Result) Diagnostic() string {
	var e *Error
	if errors.As(r.Err, &e) {
		return e.Diagnostic
	}
	return ""
}

// Encoder converts samples into a file at the request's destination
type Encoder interface {
	Encode(ctx context.Context, req Request) Result
}

// NormalizeDestination appends ".ext" unless path already ends with it,
// compared case-insensitively
func NormalizeDestination(path, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return path
	}
	if strings.EqualFold(filepath.Ext(path), "."+ext) {
		return path
	}
	return path + "." + ext
}
