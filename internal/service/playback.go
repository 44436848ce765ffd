package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calliope-labs/calliope-speak/internal/bus"
	"github.com/calliope-labs/calliope-speak/internal/eventstore"
	"github.com/calliope-labs/calliope-speak/internal/player"
	"github.com/calliope-labs/calliope-speak/internal/protocol"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Playback connects the bus to the playback controller: speak/stop requests
// come in, status events go out, and every state change lands in the event
// store.
type Playback struct {
	bus    *bus.Client
	ctrl   *player.Controller
	store  *eventstore.Store
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
	ready  atomic.Bool

	meter      metric.Meter
	cycleCount metric.Int64Counter
	byteCount  metric.Int64Counter
}

func NewPlayback(parent context.Context, busClient *bus.Client, ctrl *player.Controller, store *eventstore.Store, log *slog.Logger) *Playback {
	ctx, cancel := context.WithCancel(parent)
	s := &Playback{
		bus:    busClient,
		ctrl:   ctrl,
		store:  store,
		log:    log.With(slog.String("component", "playback-service")),
		ctx:    ctx,
		cancel: cancel,
		meter:  otel.Meter("github.com/calliope-labs/calliope-speak/playback"),
	}
	s.initMetrics()
	return s
}

func (s *Playback) initMetrics() {
	var err error
	s.cycleCount, err = s.meter.Int64Counter("playback.cycles",
		metric.WithDescription("Playback cycle state transitions by terminal state"))
	if err != nil {
		s.log.Warn("failed to create cycle counter", slogError(err))
	}
	s.byteCount, err = s.meter.Int64Counter("playback.bytes_written",
		metric.WithDescription("PCM bytes written to the audio sink"))
	if err != nil {
		s.log.Warn("failed to create byte counter", slogError(err))
	}
}

func (s *Playback) Start() error {
	speakSub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeakRequest, s.handleSpeak)
	if err != nil {
		return fmt.Errorf("subscribe speak requests: %w", err)
	}
	s.subs = append(s.subs, speakSub)

	stopSub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeakStop, s.handleStop)
	if err != nil {
		return fmt.Errorf("subscribe stop requests: %w", err)
	}
	s.subs = append(s.subs, stopSub)

	s.wg.Add(1)
	go s.forwardEvents()

	s.ready.Store(true)
	return nil
}

func (s *Playback) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.ctrl.Close()
	s.wg.Wait()
}

func (s *Playback) Healthy() bool {
	return s.ready.Load() && s.bus.Healthy()
}

func (s *Playback) handleSpeak(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode speak request", slogError(err))
		return
	}
	if req.UtteranceID == "" {
		req.UtteranceID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.AppendUtterance(ctx, req.UtteranceID, req.Text, req.Voice); err != nil {
		s.log.Warn("failed to record utterance", slogError(err))
	}

	err := s.ctrl.Submit(player.Request{
		UtteranceID: req.UtteranceID,
		Text:        req.Text,
		Voice:       req.Voice,
	})
	if err != nil {
		detail := err.Error()
		if errors.Is(err, player.ErrNotReady) {
			s.log.Warn("speak rejected: source not initialized",
				slog.String("utterance_id", req.UtteranceID))
		} else {
			s.log.Warn("speak rejected", slog.String("utterance_id", req.UtteranceID), slogError(err))
		}
		s.publishStatus(protocol.PlaybackStatus{
			UtteranceID: req.UtteranceID,
			State:       "rejected",
			Detail:      detail,
			Timestamp:   time.Now().UTC(),
		})
	}
}

func (s *Playback) handleStop(msg *nats.Msg) {
	var req protocol.StopRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode stop request", slogError(err))
		return
	}
	if !s.ctrl.StopUtterance(req.UtteranceID) {
		s.log.Info("stop ignored: utterance not playing", slog.String("utterance_id", req.UtteranceID))
		return
	}
	s.log.Info("stop requested", slog.String("utterance_id", req.UtteranceID))
}

// forwardEvents drains the controller's dispatch channel until it closes,
// publishing each event on the bus and recording it in the event store.
func (s *Playback) forwardEvents() {
	defer s.wg.Done()
	for e := range s.ctrl.Events() {
		status := protocol.PlaybackStatus{
			UtteranceID: e.UtteranceID,
			State:       e.Kind.String(),
			Detail:      e.Detail,
			Bytes:       e.Bytes,
			Timestamp:   time.Now().UTC(),
		}
		if e.Kind == player.KindWordBoundary {
			status.Detail = e.Word
		}
		s.publishStatus(status)
		s.record(e)
	}
}

func (s *Playback) record(e player.Event) {
	switch e.Kind {
	case player.KindProgress:
		// Too chatty for the timeline; counted in metrics only.
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.store.AppendEvent(ctx, eventstore.Event{
			UtteranceID: e.UtteranceID,
			State:       e.Kind.String(),
			Detail:      e.Detail,
			Bytes:       e.Bytes,
		})
		if err != nil {
			s.log.Warn("failed to record playback event", slogError(err))
		}
	}

	switch e.Kind {
	case player.KindCompleted, player.KindCanceled, player.KindFailed:
		if s.cycleCount != nil {
			s.cycleCount.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("state", e.Kind.String())))
		}
		if s.byteCount != nil {
			s.byteCount.Add(context.Background(), e.Bytes)
		}
	}
}

func (s *Playback) publishStatus(status protocol.PlaybackStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		s.log.Warn("failed to marshal playback status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.StatusSubject(status.State), data); err != nil {
		s.log.Warn("failed to publish playback status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
