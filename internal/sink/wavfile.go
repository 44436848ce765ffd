package sink

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavFile renders the stream to a WAV file instead of an output device.
// Useful for headless runs and for inspecting what a cycle produced.
type WavFile struct {
	format Format
	file   *os.File
	enc    *wav.Encoder
}

func NewWavFile(path string, format Format) (*WavFile, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("wav sink supports 16-bit PCM only, got %d-bit", format.BitDepth)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}
	enc := wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, 1)
	return &WavFile{format: format, file: f, enc: enc}, nil
}

func (w *WavFile) Start() error { return nil }

func (w *WavFile) Write(p []byte) (int, error) {
	if len(p)%2 != 0 {
		return 0, fmt.Errorf("wav sink requires 16-bit aligned writes, got %d bytes", len(p))
	}
	samples := len(p) / 2
	data := make([]int, samples)
	for i := 0; i < samples; i++ {
		data[i] = int(int16(binary.LittleEndian.Uint16(p[i*2 : i*2+2])))
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: w.format.Channels,
			SampleRate:  w.format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: w.format.BitDepth,
	}
	if err := w.enc.Write(buf); err != nil {
		return 0, err
	}
	return samples * 2, nil
}

func (w *WavFile) Pause() error { return nil }
func (w *WavFile) Flush() error { return nil }
func (w *WavFile) Stop() error  { return nil }

// Release finalizes the RIFF header and closes the file.
func (w *WavFile) Release() error {
	if err := w.enc.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *WavFile) MinBufferSize() int {
	return w.format.BytesPerFrame()
}
