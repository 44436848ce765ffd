// Package player implements the streaming playback pipeline: a single
// background worker pumps synthesized audio from a synth.Source to a
// sink.Sink in bounded chunks, while a shared stop flag lets the caller
// interrupt the current cycle promptly.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/calliope-labs/calliope-speak/internal/sink"
	"github.com/calliope-labs/calliope-speak/internal/synth"
)

// Request carries the text payload for one playback cycle.
type Request struct {
	UtteranceID string
	Text        string
	Voice       string
}

type Options struct {
	Format        sink.Format
	ChunkDuration time.Duration
	QueueDepth    int
	OpenTimeout   time.Duration
	Logger        *slog.Logger
}

// Controller owns the playback worker. Exactly one cycle runs at a time;
// requests submitted while a cycle is active queue behind it, so two cycles
// can never write to the sink concurrently.
type Controller struct {
	source synth.Source
	out    sink.Sink
	log    *slog.Logger

	chunkSize   int
	openTimeout time.Duration

	// mu guards the stop flag and the in-flight cancel func, and serializes
	// sink control calls against in-cycle writes.
	mu          sync.Mutex
	stopped     bool
	cancelCycle context.CancelFunc
	current     string
	closed      bool

	requests chan Request
	events   chan Event
	done     chan struct{}
}

func New(source synth.Source, out sink.Sink, opts Options) *Controller {
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = 50 * time.Millisecond
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Sized once from the audio format; never resized mid-stream.
	chunk := opts.Format.ChunkBytes(opts.ChunkDuration)
	if min := out.MinBufferSize(); chunk < min {
		chunk = min
	}

	c := &Controller{
		source:      source,
		out:         out,
		log:         opts.Logger.With(slog.String("component", "playback-controller")),
		chunkSize:   chunk,
		openTimeout: opts.OpenTimeout,
		requests:    make(chan Request, opts.QueueDepth),
		events:      make(chan Event, 64),
		done:        make(chan struct{}),
	}
	go c.run()
	return c
}

// Events returns the dispatch channel for playback status events. It is
// closed when the controller shuts down.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Submit queues text for playback on the worker. It never blocks: a full
// queue is reported as ErrQueueFull rather than stalling the caller.
func (c *Controller) Submit(req Request) error {
	if c.source == nil {
		return ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.requests <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop interrupts the current cycle: it sets the stop flag, cancels the
// in-flight synthesis call, and pauses and flushes the sink so buffered
// audio goes silent immediately instead of draining. Safe to call whether
// or not a cycle is active, and best-effort: the worker may still be inside
// its current chunk when Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// StopUtterance stops playback only when id names the utterance currently
// playing. An empty id stops unconditionally, like Stop. It reports whether
// a stop was issued.
func (c *Controller) StopUtterance(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" && id != c.current {
		return false
	}
	c.stopLocked()
	return true
}

func (c *Controller) stopLocked() {
	c.stopped = true
	if c.cancelCycle != nil {
		c.cancelCycle()
	}
	if err := c.out.Pause(); err != nil {
		c.log.Warn("sink pause failed", slog.String("error", err.Error()))
	}
	if err := c.out.Flush(); err != nil {
		c.log.Warn("sink flush failed", slog.String("error", err.Error()))
	}
}

// Close stops the current cycle, drains queued requests, and shuts the
// worker down. The events channel is closed once the worker exits.
func (c *Controller) Close() {
	c.Stop()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	close(c.requests)
	c.mu.Unlock()
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)
	defer close(c.events)
	for req := range c.requests {
		c.cycle(req)
	}
}

func (c *Controller) cycle(req Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.mu.Lock()
	c.stopped = false
	c.cancelCycle = cancel
	c.current = req.UtteranceID
	err := c.out.Start()
	c.mu.Unlock()
	defer c.endCycle()
	if err != nil {
		c.report(req, &SinkError{Op: "start", Err: err})
		return
	}

	// The timeout bounds the Open call only. The returned stream keeps the
	// plain cycle context, so a long utterance is never cut off mid-pump.
	openCtx, cancelOpen := context.WithCancel(ctx)
	defer cancelOpen()
	var watchdog *time.Timer
	if c.openTimeout > 0 {
		watchdog = time.AfterFunc(c.openTimeout, cancelOpen)
	}
	stream, err := c.source.Open(openCtx, synth.Request{
		UtteranceID: req.UtteranceID,
		Text:        req.Text,
		Voice:       req.Voice,
	})
	openTimedOut := watchdog != nil && !watchdog.Stop()
	if err == nil && openTimedOut {
		// The watchdog fired between Open returning and the Stop call, so
		// the stream's context is already cancelled. Treat it as a timeout.
		stream.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		if openTimedOut && !c.wasStopped() {
			err = fmt.Errorf("timed out after %v: %w", c.openTimeout, err)
			c.report(req, &SourceError{Op: "open", Err: err})
		} else if c.wasStopped() || errors.Is(err, context.Canceled) {
			c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindCanceled, Detail: err.Error()})
		} else {
			c.report(req, &SourceError{Op: "open", Err: err})
		}
		c.settleSink()
		return
	}
	defer stream.Close() // exactly once, on every exit path

	c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindStarted})

	buf := make([]byte, c.chunkSize)
	var written int64
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			// Point-in-time check: a chunk read after the flag was observed
			// true is discarded, never written.
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindCanceled, Bytes: written})
				c.settleSink()
				return
			}
			wn, werr := c.out.Write(buf[:n])
			c.mu.Unlock()
			written += int64(wn)
			if werr != nil {
				c.report(req, &SinkError{Op: "write", Err: werr})
				c.settleSink()
				return
			}
			c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindProgress, Bytes: written})
			if bs, ok := stream.(synth.BoundaryStream); ok {
				for _, b := range bs.TakeBoundaries(written) {
					c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindWordBoundary, Word: b.Word, Bytes: b.ByteOffset})
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if c.wasStopped() || errors.Is(rerr, context.Canceled) {
				c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindCanceled, Bytes: written})
			} else {
				c.report(req, &SourceError{Op: "read", Err: rerr})
			}
			c.settleSink()
			return
		}
	}

	c.drainSink()
	c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindCompleted, Bytes: written})
}

func (c *Controller) wasStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Controller) endCycle() {
	c.mu.Lock()
	c.cancelCycle = nil
	c.current = ""
	c.mu.Unlock()
}

// settleSink leaves the device paused and flushed after a stop or a failed
// cycle, ready for the next one.
func (c *Controller) settleSink() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.out.Pause(); err != nil {
		c.log.Warn("sink pause failed", slog.String("error", err.Error()))
	}
	if err := c.out.Flush(); err != nil {
		c.log.Warn("sink flush failed", slog.String("error", err.Error()))
	}
}

// drainSink stops the device gracefully so the tail of a completed cycle
// plays out in full.
func (c *Controller) drainSink() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.out.Stop(); err != nil {
		c.log.Warn("sink stop failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) report(req Request, err error) {
	c.log.Warn("playback cycle failed",
		slog.String("utterance_id", req.UtteranceID),
		slog.String("error", err.Error()))
	c.emit(Event{UtteranceID: req.UtteranceID, Kind: KindFailed, Detail: err.Error()})
}

func (c *Controller) emit(e Event) {
	switch e.Kind {
	case KindProgress, KindWordBoundary:
		// Dropped rather than stalling the pump when the consumer lags.
		select {
		case c.events <- e:
		default:
		}
	default:
		c.events <- e
	}
}
