package encode

import (
	"errors"
	"fmt"
)

// ErrorKind classifies encoding failures
type ErrorKind string

const (
	KindNoAudioCaptured        ErrorKind = "NO_AUDIO_CAPTURED"
	KindEncoderNotFound        ErrorKind = "ENCODER_NOT_FOUND"
	KindEncoderExecutionFailed ErrorKind = "ENCODER_EXECUTION_FAILED"
	KindIOFailure              ErrorKind = "IO_FAILURE"
)

var (
	ErrNoAudioCaptured        = errors.New("no audio was recorded")
	ErrEncoderNotFound        = errors.New("encoder executable not found")
	ErrEncoderExecutionFailed = errors.New("encoder execution failed")
	ErrIOFailure              = errors.New("encoder i/o failure")
)

var kindSentinels = map[ErrorKind]error{
	KindNoAudioCaptured:        ErrNoAudioCaptured,
	KindEncoderNotFound:        ErrEncoderNotFound,
	KindEncoderExecutionFailed: ErrEncoderExecutionFailed,
	KindIOFailure:              ErrIOFailure,
}

// Error is returned for every failed encode. Diagnostic carries the
// encoder's stderr for execution failures.
type Error struct {
	Kind       ErrorKind
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	msg := kindSentinels[e.Kind].Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Diagnostic != "" {
		msg = fmt.Sprintf("%s\n%s", msg, e.Diagnostic)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of an encode error, or "" for other errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
