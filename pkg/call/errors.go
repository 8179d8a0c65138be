package call

import (
	"errors"
	"fmt"
)

// Sentinel errors for call failure classification.
var (
	// ErrTranscriptionTimeout is a recoverable per-turn failure; the call
	// returns to listening.
	ErrTranscriptionTimeout = errors.New("call: transcription timed out")

	// ErrTelephonyDisconnect means the media stream dropped; the call ends
	// immediately without further audio.
	ErrTelephonyDisconnect = errors.New("call: telephony stream disconnected")

	// ErrConfigurationMissing means a call cannot start because no enabled
	// provider or voice profile exists.
	ErrConfigurationMissing = errors.New("call: configuration missing")

	// ErrFatalPipeline means repeated upstream failures made the
	// conversation unrecoverable.
	ErrFatalPipeline = errors.New("call: pipeline failed repeatedly")
)

// UpstreamError wraps a failure of one of the conversational services.
type UpstreamError struct {
	Service string // "stt", "llm" or "tts"
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("call: %s upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}
