package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/calliope-labs/calliope-speak/internal/bus"
	"github.com/calliope-labs/calliope-speak/internal/config"
	"github.com/calliope-labs/calliope-speak/internal/eventstore"
	"github.com/calliope-labs/calliope-speak/internal/player"
	"github.com/calliope-labs/calliope-speak/internal/protocol"
	"github.com/calliope-labs/calliope-speak/internal/sink"
	"github.com/calliope-labs/calliope-speak/internal/synth"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startTestBus(t *testing.T) *bus.Client {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: server.RANDOM_PORT})
	if err != nil {
		t.Fatalf("create test server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("test server did not start")
	}
	t.Cleanup(ns.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{ns.ClientURL()},
		ConnectTimeout: 2000,
	}, testLogger())
	if err != nil {
		t.Fatalf("connect test bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func newTestService(t *testing.T, busClient *bus.Client) *Playback {
	t.Helper()
	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, testLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	format := sink.Format{SampleRate: 24000, Channels: 1, BitDepth: 16}
	ctrl := player.New(synth.NewMockSource(format), sink.NewDiscard(format), player.Options{
		Format: format,
		Logger: testLogger(),
	})
	return NewPlayback(context.Background(), busClient, ctrl, store, testLogger())
}

func TestSpeakRequestRoundTrip(t *testing.T) {
	busClient := startTestBus(t)
	svc := newTestService(t, busClient)
	if svc.Healthy() {
		t.Fatal("service must not report healthy before Start")
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("service must report healthy after Start")
	}

	conn := busClient.Conn()
	statuses := make(chan protocol.PlaybackStatus, 64)
	sub, err := conn.Subscribe(protocol.SubjectStatusPrefix+".>", func(msg *nats.Msg) {
		var status protocol.PlaybackStatus
		if json.Unmarshal(msg.Data, &status) == nil {
			statuses <- status
		}
	})
	if err != nil {
		t.Fatalf("subscribe status: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	data, err := json.Marshal(protocol.SpeakRequest{UtteranceID: "u1", Text: "hello world"})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := conn.Publish(protocol.SubjectSpeakRequest, data); err != nil {
		t.Fatalf("publish speak: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case status := <-statuses:
			if status.UtteranceID != "u1" {
				continue
			}
			switch status.State {
			case "completed":
				if status.Bytes == 0 {
					t.Fatal("expected completed status to carry written bytes")
				}
				return
			case "failed", "rejected":
				t.Fatalf("unexpected %s status: %s", status.State, status.Detail)
			}
		case <-deadline:
			t.Fatal("timed out waiting for completed status")
		}
	}
}

func TestHealthyIsSafeDuringStart(t *testing.T) {
	busClient := startTestBus(t)
	svc := newTestService(t, busClient)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = svc.Healthy()
			}
		}
	}()

	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	close(done)
	wg.Wait()
	t.Cleanup(svc.Close)

	if !svc.Healthy() {
		t.Fatal("service must report healthy after Start")
	}
}
