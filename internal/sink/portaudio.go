package sink

import (
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio streams 16-bit PCM to the default output device.
type PortAudio struct {
	format          Format
	framesPerBuffer int
	stage           []int16
	stream          *portaudio.Stream
	started         bool
}

func NewPortAudio(format Format, framesPerBuffer int) (*PortAudio, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("portaudio sink supports 16-bit PCM only, got %d-bit", format.BitDepth)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	p := &PortAudio{
		format:          format,
		framesPerBuffer: framesPerBuffer,
		stage:           make([]int16, framesPerBuffer*format.Channels),
	}

	stream, err := portaudio.OpenDefaultStream(
		0,
		format.Channels,
		float64(format.SampleRate),
		framesPerBuffer,
		p.stage,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	p.stream = stream
	return p, nil
}

func (p *PortAudio) Start() error {
	if p.started {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Write pushes PCM bytes to the device in stage-buffer slices. The final
// slice of a chunk is zero-padded to a full buffer.
func (p *PortAudio) Write(data []byte) (int, error) {
	if !p.started {
		return 0, fmt.Errorf("portaudio sink not started")
	}
	if len(data)%2 != 0 {
		return 0, fmt.Errorf("portaudio sink requires 16-bit aligned writes, got %d bytes", len(data))
	}
	blockBytes := len(p.stage) * 2
	written := 0
	for written < len(data) {
		end := written + blockBytes
		if end > len(data) {
			end = len(data)
		}
		block := data[written:end]
		samples := len(block) / 2
		for i := 0; i < samples; i++ {
			p.stage[i] = int16(binary.LittleEndian.Uint16(block[i*2 : i*2+2]))
		}
		for i := samples; i < len(p.stage); i++ {
			p.stage[i] = 0
		}
		if err := p.stream.Write(); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

// Pause aborts the stream, discarding samples queued in the device. Abort
// rather than Stop keeps the audible latency of a user stop low.
func (p *PortAudio) Pause() error {
	if !p.started {
		return nil
	}
	p.started = false
	return p.stream.Abort()
}

func (p *PortAudio) Flush() error {
	for i := range p.stage {
		p.stage[i] = 0
	}
	return nil
}

func (p *PortAudio) Stop() error {
	if !p.started {
		return nil
	}
	p.started = false
	return p.stream.Stop()
}

func (p *PortAudio) Release() error {
	err := p.stream.Close()
	portaudio.Terminate()
	return err
}

func (p *PortAudio) MinBufferSize() int {
	return p.framesPerBuffer * p.format.BytesPerFrame()
}
