package synth

import (
	mp3 "github.com/hajimehoshi/go-mp3"
)

// mp3Stream decodes an MP3 container stream into raw PCM on the fly.
// The decoder output is 16-bit little-endian stereo at the source sample rate.
type mp3Stream struct {
	dec *mp3.Decoder
	src Stream
}

func NewMP3Stream(src Stream) (Stream, error) {
	dec, err := mp3.NewDecoder(src)
	if err != nil {
		return nil, err
	}
	return &mp3Stream{dec: dec, src: src}, nil
}

func (s *mp3Stream) Read(p []byte) (int, error) {
	return s.dec.Read(p)
}

func (s *mp3Stream) Close() error {
	return s.src.Close()
}
