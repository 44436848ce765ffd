package synth

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	tts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
)

const DefaultYandexEndpoint = "tts.api.cloud.yandex.net:443"

type YandexConfig struct {
	Endpoint string
	APIKey   string
	FolderID string
	Voice    string
	Format   string // pcm (wav container), mp3
}

// YandexSource synthesizes speech through the Yandex SpeechKit v3 gRPC API.
type YandexSource struct {
	cfg    YandexConfig
	conn   *grpc.ClientConn
	client tts.SynthesizerClient
}

func NewYandexSource(cfg YandexConfig) (*YandexSource, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultYandexEndpoint
	}
	creds := credentials.NewTLS(&tls.Config{})
	conn, err := grpc.Dial(cfg.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("connect to synthesis service: %w", err)
	}
	return &YandexSource{
		cfg:    cfg,
		conn:   conn,
		client: tts.NewSynthesizerClient(conn),
	}, nil
}

func (y *YandexSource) Open(ctx context.Context, req Request) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Api-Key "+y.cfg.APIKey)
	ctx = metadata.AppendToOutgoingContext(ctx, "x-folder-id", y.cfg.FolderID)

	voice := req.Voice
	if voice == "" {
		voice = y.cfg.Voice
	}

	stream, err := y.client.UtteranceSynthesis(ctx, y.buildRequest(req.Text, voice))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start synthesis: %w", err)
	}

	var s Stream = &yandexStream{stream: stream, cancel: cancel}
	if y.cfg.Format == "mp3" {
		s, err = NewMP3Stream(s)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open mp3 decoder: %w", err)
		}
	}
	return s, nil
}

func (y *YandexSource) buildRequest(text, voice string) *tts.UtteranceSynthesisRequest {
	req := &tts.UtteranceSynthesisRequest{}
	req.SetModel("general")
	req.SetText(text)

	voiceHint := &tts.Hints{}
	voiceHint.SetVoice(voice)
	req.SetHints([]*tts.Hints{voiceHint})

	containerAudio := &tts.ContainerAudio{}
	if y.cfg.Format == "mp3" {
		containerAudio.SetContainerAudioType(tts.ContainerAudio_MP3)
	} else {
		containerAudio.SetContainerAudioType(tts.ContainerAudio_WAV)
	}
	audioSpec := &tts.AudioFormatOptions{}
	audioSpec.SetContainerAudio(containerAudio)
	req.SetOutputAudioSpec(audioSpec)

	req.SetLoudnessNormalizationType(tts.UtteranceSynthesisRequest_LUFS)
	return req
}

func (y *YandexSource) Close() error {
	return y.conn.Close()
}

type yandexStream struct {
	stream tts.Synthesizer_UtteranceSynthesisClient
	cancel context.CancelFunc
	buf    []byte
}

func (s *yandexStream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("receive audio data: %w", err)
		}
		if chunk := resp.GetAudioChunk(); chunk != nil {
			s.buf = chunk.GetData()
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *yandexStream) Close() error {
	s.cancel()
	return nil
}
