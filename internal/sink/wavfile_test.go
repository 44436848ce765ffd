package sink

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func TestWavFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	format := Format{SampleRate: 24000, Channels: 1, BitDepth: 16}

	s, err := NewWavFile(path, format)
	if err != nil {
		t.Fatalf("new wav sink: %v", err)
	}

	samples := []int16{0, 100, -100, 32767, -32768}
	chunk := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(v))
	}

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	n, err := s.Write(chunk)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len(chunk) {
		t.Fatalf("expected %d bytes written, got %d", len(chunk), n)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(buf.Data))
	}
	for i, v := range samples {
		if buf.Data[i] != int(v) {
			t.Fatalf("sample %d: expected %d, got %d", i, v, buf.Data[i])
		}
	}
	if buf.Format.SampleRate != format.SampleRate {
		t.Fatalf("expected sample rate %d, got %d", format.SampleRate, buf.Format.SampleRate)
	}
}

func TestWavFileRejectsUnalignedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	s, err := NewWavFile(path, Format{SampleRate: 24000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("new wav sink: %v", err)
	}
	t.Cleanup(func() { _ = s.Release() })

	n, err := s.Write([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for unaligned write")
	}
	if n != 0 {
		t.Fatalf("expected no bytes reported written, got %d", n)
	}
}

func TestChunkBytesAlignment(t *testing.T) {
	format := Format{SampleRate: 24000, Channels: 2, BitDepth: 16}
	n := format.ChunkBytes(50 * time.Millisecond)
	if n%format.BytesPerFrame() != 0 {
		t.Fatalf("chunk size %d not frame aligned", n)
	}
	if n != 4800 {
		t.Fatalf("expected 4800 bytes for 50ms at 24kHz stereo 16-bit, got %d", n)
	}
}
