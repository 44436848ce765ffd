package synth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	shellwords "github.com/mattn/go-shellwords"
)

// execSource bridges to an external synthesis engine run as a subprocess.
// The request goes to stdin as JSON; the engine answers with one JSON object
// per line carrying base64 PCM until it marks the final chunk.
type execSource struct {
	cmd        []string
	voice      string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewExecSource(command, voice string, sampleRate, channels int) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synthesis command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synthesis command empty")
	}
	return &execSource{cmd: args, voice: voice, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSource) Open(ctx context.Context, req Request) (Stream, error) {
	// One subprocess at a time; the playback worker is serialized anyway.
	e.mu.Lock()

	voice := req.Voice
	if voice == "" {
		voice = e.voice
	}
	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      voice,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("start synthesis command: %w", err)
	}

	if _, err := stdin.Write(payload); err != nil {
		cmd.Wait()
		e.mu.Unlock()
		return nil, err
	}
	stdin.Close()

	pr, pw := io.Pipe()
	go func() {
		defer e.mu.Unlock()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp execResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				pw.CloseWithError(err)
				cmd.Wait()
				return
			}
			pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				pw.CloseWithError(err)
				cmd.Wait()
				return
			}
			if _, err := pw.Write(pcm); err != nil {
				cmd.Wait()
				return
			}
			if resp.Final {
				break
			}
		}
		if err := cmd.Wait(); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := scanner.Err(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return &execStream{pr: pr}, nil
}

type execStream struct {
	pr *io.PipeReader
}

func (s *execStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close unblocks the pump goroutine; the subprocess dies with its context.
func (s *execStream) Close() error {
	return s.pr.CloseWithError(io.ErrClosedPipe)
}
