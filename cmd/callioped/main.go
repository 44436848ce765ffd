package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calliope-labs/calliope-speak/internal/bus"
	"github.com/calliope-labs/calliope-speak/internal/config"
	"github.com/calliope-labs/calliope-speak/internal/eventstore"
	"github.com/calliope-labs/calliope-speak/internal/natsserver"
	"github.com/calliope-labs/calliope-speak/internal/player"
	"github.com/calliope-labs/calliope-speak/internal/runtime"
	"github.com/calliope-labs/calliope-speak/internal/service"
	"github.com/calliope-labs/calliope-speak/internal/sink"
	"github.com/calliope-labs/calliope-speak/internal/synth"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "calliope.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ns, err := natsserver.Start(cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to start embedded NATS server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer ns.Shutdown()

	busClient, err := bus.Connect(ctx, cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer busClient.Close()

	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		logger.Error("failed to open event store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	format := sink.Format{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		BitDepth:   cfg.Audio.BitDepth,
	}

	out, err := buildSink(cfg.Audio, format)
	if err != nil {
		logger.Error("failed to open audio sink", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := out.Release(); err != nil {
			logger.Warn("audio sink release failed", slog.String("error", err.Error()))
		}
	}()

	source, closeSource, err := buildSource(cfg.Synthesis, format)
	if err != nil {
		logger.Error("failed to create synthesis source", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeSource()

	ctrl := player.New(source, out, player.Options{
		Format:        format,
		ChunkDuration: time.Duration(cfg.Playback.ChunkDurationMS) * time.Millisecond,
		QueueDepth:    cfg.Playback.QueueDepth,
		OpenTimeout:   time.Duration(cfg.Playback.OpenTimeoutMS) * time.Millisecond,
		Logger:        logger,
	})

	svc := service.NewPlayback(ctx, busClient, ctrl, store, logger)
	if err := svc.Start(); err != nil {
		logger.Error("failed to start playback service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer svc.Close()

	rt := runtime.New(cfg, logger, busClient.Healthy, svc.Healthy)
	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func buildSink(cfg config.AudioConfig, format sink.Format) (sink.Sink, error) {
	switch cfg.Backend {
	case "portaudio":
		return sink.NewPortAudio(format, cfg.FramesPerBuffer)
	case "wav":
		return sink.NewWavFile(cfg.WavPath, format)
	default:
		return sink.NewDiscard(format), nil
	}
}

func buildSource(cfg config.SynthesisConfig, format sink.Format) (synth.Source, func(), error) {
	noop := func() {}
	switch cfg.Mode {
	case "exec":
		src, err := synth.NewExecSource(cfg.Command, cfg.Voice, format.SampleRate, format.Channels)
		return src, noop, err
	case "yandex":
		src, err := synth.NewYandexSource(synth.YandexConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			FolderID: cfg.FolderID,
			Voice:    cfg.Voice,
			Format:   cfg.Format,
		})
		if err != nil {
			return nil, noop, err
		}
		return src, func() { _ = src.Close() }, nil
	default:
		return synth.NewMockSource(format), noop, nil
	}
}
