package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxUtterances int    `yaml:"max_utterances"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SynthesisConfig struct {
	Mode     string `yaml:"mode"` // mock, exec, yandex
	Command  string `yaml:"command"`
	Voice    string `yaml:"voice"`
	Format   string `yaml:"format"` // pcm, mp3
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	FolderID string `yaml:"folder_id"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend"` // portaudio, wav, discard
	WavPath         string `yaml:"wav_path"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	BitDepth        int    `yaml:"bit_depth"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

type PlaybackConfig struct {
	ChunkDurationMS int `yaml:"chunk_duration_ms"`
	QueueDepth      int `yaml:"queue_depth"`
	OpenTimeoutMS   int `yaml:"open_timeout_ms"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	Audio       AudioConfig      `yaml:"audio"`
	Playback    PlaybackConfig   `yaml:"playback"`
}

func Default() Config {
	return Config{
		RuntimeName: "calliope-speak",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/calliope-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxUtterances: 10000,
		},
		Synthesis: SynthesisConfig{
			Mode:   "mock",
			Voice:  "marina",
			Format: "pcm",
		},
		Audio: AudioConfig{
			Backend:         "discard",
			SampleRate:      24000,
			Channels:        1,
			BitDepth:        16,
			FramesPerBuffer: 1024,
		},
		Playback: PlaybackConfig{
			ChunkDurationMS: 50,
			QueueDepth:      8,
			OpenTimeoutMS:   10000,
		},
	}
}

// Load reads the YAML config at path (if any), then applies a local .env
// file and environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Credentials usually live in a .env next to the binary; a missing file is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CALLIOPE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CALLIOPE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CALLIOPE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CALLIOPE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CALLIOPE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CALLIOPE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CALLIOPE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CALLIOPE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "CALLIOPE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CALLIOPE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CALLIOPE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CALLIOPE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CALLIOPE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CALLIOPE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CALLIOPE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CALLIOPE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "CALLIOPE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "CALLIOPE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "CALLIOPE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxUtterances, "CALLIOPE_EVENT_STORE_MAX_UTTERANCES")
	overrideBool(&cfg.EventStore.VacuumOnStart, "CALLIOPE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Synthesis.Mode, "CALLIOPE_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Command, "CALLIOPE_SYNTHESIS_COMMAND")
	overrideString(&cfg.Synthesis.Voice, "CALLIOPE_SYNTHESIS_VOICE")
	overrideString(&cfg.Synthesis.Format, "CALLIOPE_SYNTHESIS_FORMAT")
	overrideString(&cfg.Synthesis.Endpoint, "CALLIOPE_SYNTHESIS_ENDPOINT")
	overrideString(&cfg.Synthesis.APIKey, "CALLIOPE_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.FolderID, "CALLIOPE_SYNTHESIS_FOLDER_ID")
	overrideString(&cfg.Audio.Backend, "CALLIOPE_AUDIO_BACKEND")
	overrideString(&cfg.Audio.WavPath, "CALLIOPE_AUDIO_WAV_PATH")
	overrideInt(&cfg.Audio.SampleRate, "CALLIOPE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "CALLIOPE_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.BitDepth, "CALLIOPE_AUDIO_BIT_DEPTH")
	overrideInt(&cfg.Audio.FramesPerBuffer, "CALLIOPE_AUDIO_FRAMES_PER_BUFFER")
	overrideInt(&cfg.Playback.ChunkDurationMS, "CALLIOPE_PLAYBACK_CHUNK_DURATION_MS")
	overrideInt(&cfg.Playback.QueueDepth, "CALLIOPE_PLAYBACK_QUEUE_DEPTH")
	overrideInt(&cfg.Playback.OpenTimeoutMS, "CALLIOPE_PLAYBACK_OPEN_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Synthesis.Mode {
	case "mock", "exec", "yandex":
	default:
		return errors.New("synthesis.mode must be one of mock|exec|yandex")
	}
	if cfg.Synthesis.Mode == "exec" && cfg.Synthesis.Command == "" {
		return errors.New("synthesis.command must be set when mode=exec")
	}
	if cfg.Synthesis.Mode == "yandex" && cfg.Synthesis.APIKey == "" {
		return errors.New("synthesis.api_key must be set when mode=yandex")
	}
	switch cfg.Synthesis.Format {
	case "pcm", "mp3":
	default:
		return errors.New("synthesis.format must be one of pcm|mp3")
	}
	switch cfg.Audio.Backend {
	case "portaudio", "wav", "discard":
	default:
		return errors.New("audio.backend must be one of portaudio|wav|discard")
	}
	if cfg.Audio.Backend == "wav" && cfg.Audio.WavPath == "" {
		return errors.New("audio.wav_path must be set when backend=wav")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.BitDepth != 8 && cfg.Audio.BitDepth != 16 && cfg.Audio.BitDepth != 32 {
		return errors.New("audio.bit_depth must be one of 8|16|32")
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		return errors.New("audio.frames_per_buffer must be positive")
	}
	if cfg.Playback.ChunkDurationMS <= 0 {
		return errors.New("playback.chunk_duration_ms must be positive")
	}
	if cfg.Playback.QueueDepth <= 0 {
		return errors.New("playback.queue_depth must be >= 1")
	}
	if cfg.Playback.OpenTimeoutMS < 0 {
		return errors.New("playback.open_timeout_ms must be >= 0")
	}
	return nil
}
