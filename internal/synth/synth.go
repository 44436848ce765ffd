package synth

import (
	"context"
	"io"
)

// Request describes one utterance to synthesize.
type Request struct {
	UtteranceID string
	Text        string
	Voice       string
}

// Stream is an open, forward-only byte stream tied to one synthesis call.
// Read returns io.EOF exactly at end-of-stream and never a negative count.
// The owner must call Close exactly once, on every exit path.
type Stream interface {
	io.ReadCloser
}

// Boundary marks a word boundary inside the synthesized audio.
type Boundary struct {
	Word       string
	ByteOffset int64
}

// BoundaryStream is implemented by streams that can report word boundaries.
// TakeBoundaries returns, once each, all boundaries at or before offset.
type BoundaryStream interface {
	Stream
	TakeBoundaries(offset int64) []Boundary
}

// Source is the contract for producing synthesis streams. Open may block
// while the remote engine starts up; cancelling ctx cancels the in-flight
// operation and subsequent Reads on the returned stream.
type Source interface {
	Open(ctx context.Context, req Request) (Stream, error)
}
