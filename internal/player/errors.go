package player

import "errors"

// ErrNotReady is returned by Submit when no synthesis source is configured.
var ErrNotReady = errors.New("playback: synthesis source not initialized")

// ErrQueueFull is returned by Submit when the pending request queue is full.
var ErrQueueFull = errors.New("playback: request queue full")

// ErrClosed is returned by Submit after the controller has been closed.
var ErrClosed = errors.New("playback: controller closed")

// SourceError wraps a failure from the synthesis stream source. The cycle
// that hit it ends; the controller stays ready for the next request.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return "synthesis source " + e.Op + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error { return e.Err }

// SinkError wraps a failure from the audio sink, with the same cycle-scoped
// recovery as SourceError.
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string {
	return "audio sink " + e.Op + ": " + e.Err.Error()
}

func (e *SinkError) Unwrap() error { return e.Err }
