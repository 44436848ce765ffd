package synth

import (
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/calliope-labs/calliope-speak/internal/sink"
)

func testFormat() sink.Format {
	return sink.Format{SampleRate: 24000, Channels: 1, BitDepth: 16}
}

func TestMockSourceSizesAudioToText(t *testing.T) {
	src := NewMockSource(testFormat())
	stream, err := src.Open(context.Background(), Request{Text: "one two three"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = stream.Close() })

	var total int
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}

	// 200ms per word at 48000 bytes/s.
	want := 3 * 9600
	if total != want {
		t.Fatalf("expected %d bytes for 3 words, got %d", want, total)
	}
}

func TestMockSourceReportsBoundariesOnce(t *testing.T) {
	src := NewMockSource(testFormat())
	stream, err := src.Open(context.Background(), Request{Text: "alpha beta"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = stream.Close() })

	bs, ok := stream.(BoundaryStream)
	if !ok {
		t.Fatal("mock stream should report word boundaries")
	}

	first := bs.TakeBoundaries(0)
	if len(first) != 1 || first[0].Word != "alpha" {
		t.Fatalf("expected boundary for alpha at offset 0, got %v", first)
	}
	if again := bs.TakeBoundaries(0); len(again) != 0 {
		t.Fatalf("boundaries must only be returned once, got %v", again)
	}
	rest := bs.TakeBoundaries(1 << 30)
	if len(rest) != 1 || rest[0].Word != "beta" {
		t.Fatalf("expected remaining boundary for beta, got %v", rest)
	}
}

func TestMockSourceHonorsCancelledContext(t *testing.T) {
	src := NewMockSource(testFormat())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Open(ctx, Request{Text: "hello"}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestExecSourceStreamsDecodedPCM(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test command is unix-only")
	}

	// The command ignores stdin and emits one final chunk: base64 "AAEC" is
	// the three bytes 0x00 0x01 0x02.
	src, err := NewExecSource(`/bin/echo '{"pcm_base64":"AAEC","final":true}'`, "", 24000, 1)
	if err != nil {
		t.Fatalf("new exec source: %v", err)
	}

	stream, err := src.Open(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = stream.Close() })

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) != 3 || data[0] != 0 || data[1] != 1 || data[2] != 2 {
		t.Fatalf("unexpected PCM: %v", data)
	}
}

func TestExecSourceRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecSource("", "", 24000, 1); err == nil {
		t.Fatal("expected error for empty command")
	}
}
