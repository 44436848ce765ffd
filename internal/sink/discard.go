package sink

import "sync"

// Discard accepts all writes and throws the audio away. Default backend for
// headless runs where no output device is available.
type Discard struct {
	format Format
	mu     sync.Mutex
	bytes  int64
}

func NewDiscard(format Format) *Discard {
	return &Discard{format: format}
}

func (d *Discard) Start() error { return nil }

func (d *Discard) Write(p []byte) (int, error) {
	d.mu.Lock()
	d.bytes += int64(len(p))
	d.mu.Unlock()
	return len(p), nil
}

func (d *Discard) Pause() error   { return nil }
func (d *Discard) Flush() error   { return nil }
func (d *Discard) Stop() error    { return nil }
func (d *Discard) Release() error { return nil }

func (d *Discard) MinBufferSize() int {
	return d.format.BytesPerFrame()
}

// BytesWritten reports the running total across all cycles.
func (d *Discard) BytesWritten() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}
