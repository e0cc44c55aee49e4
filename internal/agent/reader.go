package agent

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// ReaderStream replays stream-json lines from an io.Reader. Used to consume
// pre-recorded transcripts and as a stand-in stream in tests.
type ReaderStream struct {
	scanner *bufio.Scanner
}

// NewReaderStream wraps a reader of newline-delimited stream-json.
func NewReaderStream(r io.Reader) *ReaderStream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &ReaderStream{scanner: scanner}
}

// Next returns the next parsed message or io.EOF.
func (s *ReaderStream) Next(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		line := s.scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		return ParseMessage(line)
	}
}

// Close is a no-op; the underlying reader is owned by the caller.
func (s *ReaderStream) Close() error {
	return nil
}
