package synth

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/calliope-labs/calliope-speak/internal/sink"
)

// mockSource produces silence sized to the request text, with word
// boundaries spaced through it. Used for tests and as the default mode so
// the daemon runs without credentials or an engine.
type mockSource struct {
	format    sink.Format
	perWordMS int
}

func NewMockSource(format sink.Format) Source {
	return &mockSource{format: format, perWordMS: 200}
}

func (m *mockSource) Open(ctx context.Context, req Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.Fields(req.Text)
	bytesPerWord := m.format.BytesPerSecond() * m.perWordMS / 1000
	frame := m.format.BytesPerFrame()
	bytesPerWord -= bytesPerWord % frame

	data := make([]byte, bytesPerWord*len(words))
	boundaries := make([]Boundary, 0, len(words))
	for i, w := range words {
		boundaries = append(boundaries, Boundary{Word: w, ByteOffset: int64(i * bytesPerWord)})
	}
	return &mockStream{ctx: ctx, data: data, boundaries: boundaries}, nil
}

type mockStream struct {
	ctx        context.Context
	mu         sync.Mutex
	data       []byte
	pos        int
	boundaries []Boundary
	closed     bool
}

func (s *mockStream) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *mockStream) TakeBoundaries(offset int64) []Boundary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Boundary
	for len(s.boundaries) > 0 && s.boundaries[0].ByteOffset <= offset {
		out = append(out, s.boundaries[0])
		s.boundaries = s.boundaries[1:]
	}
	return out
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
