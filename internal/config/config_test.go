package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Synthesis.Mode != "mock" {
		t.Fatalf("expected default synthesis mode mock, got %q", cfg.Synthesis.Mode)
	}
	if cfg.Playback.ChunkDurationMS != 50 {
		t.Fatalf("expected default chunk duration 50ms, got %d", cfg.Playback.ChunkDurationMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CALLIOPE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("CALLIOPE_BUS_USERNAME", "alice")
	t.Setenv("CALLIOPE_BUS_PASSWORD", "secret")
	t.Setenv("CALLIOPE_SYNTHESIS_MODE", "yandex")
	t.Setenv("CALLIOPE_SYNTHESIS_API_KEY", "test-key")
	t.Setenv("CALLIOPE_SYNTHESIS_FORMAT", "mp3")
	t.Setenv("CALLIOPE_AUDIO_BACKEND", "wav")
	t.Setenv("CALLIOPE_AUDIO_WAV_PATH", "./out.wav")
	t.Setenv("CALLIOPE_AUDIO_SAMPLE_RATE", "22050")
	t.Setenv("CALLIOPE_PLAYBACK_CHUNK_DURATION_MS", "20")
	t.Setenv("CALLIOPE_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("CALLIOPE_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("CALLIOPE_EVENT_STORE_MAX_UTTERANCES", "123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Synthesis.Mode != "yandex" || cfg.Synthesis.APIKey != "test-key" {
		t.Fatalf("expected synthesis overrides, got %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.Format != "mp3" {
		t.Fatalf("expected format override, got %q", cfg.Synthesis.Format)
	}
	if cfg.Audio.Backend != "wav" || cfg.Audio.WavPath != "./out.wav" {
		t.Fatalf("expected audio backend override, got %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 22050 {
		t.Fatalf("expected sample rate override, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Playback.ChunkDurationMS != 20 {
		t.Fatalf("expected chunk duration override, got %d", cfg.Playback.ChunkDurationMS)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.MaxUtterances != 123 {
		t.Fatalf("expected event store max utterances override")
	}
}

func TestValidateRejectsBadAudio(t *testing.T) {
	t.Setenv("CALLIOPE_AUDIO_BIT_DEPTH", "24")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unsupported bit depth")
	}
}

func TestValidateRequiresExecCommand(t *testing.T) {
	t.Setenv("CALLIOPE_SYNTHESIS_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error when exec mode has no command")
	}
}
