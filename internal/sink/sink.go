package sink

import "time"

// Format describes the PCM layout negotiated for a playback session.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// ChunkBytes returns the buffer size for one playback time-slice of d,
// aligned down to a whole frame and never smaller than one frame.
func (f Format) ChunkBytes(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	frame := f.BytesPerFrame()
	if frame <= 0 {
		return n
	}
	n -= n % frame
	if n < frame {
		n = frame
	}
	return n
}

// Sink is a streaming PCM output device. Implementations must tolerate
// Pause/Flush/Stop being called when no audio is queued, and Release being
// called exactly once at the end of the sink's life.
type Sink interface {
	Start() error
	Write(p []byte) (int, error)
	Pause() error
	Flush() error
	Stop() error
	Release() error
	// MinBufferSize reports the smallest staging buffer the device accepts.
	// Consulted once when the playback controller sizes its chunk buffer.
	MinBufferSize() int
}
