package agent

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// A producer that outruns the consumer must not wedge Close: once the line
// buffer fills, the pump goroutine parks on its send, and Close has to
// release it before waiting.
func TestCLIStreamCloseReturnsWithBlockedProducer(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "agent.sh")
	body := "#!/bin/sh\n" +
		"i=0\n" +
		"while [ $i -lt 200 ]; do\n" +
		"  echo not-json\n" +
		"  i=$((i+1))\n" +
		"done\n" +
		"exec sleep 30 >/dev/null 2>&1\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	r := NewCLIRunner(WithPath(script))
	stream, err := r.Start(context.Background(), Request{Prompt: "x", WorkDir: dir})
	require.NoError(t, err)

	// The consumer stops at the first malformed line while the producer is
	// still writing.
	_, err = stream.Next(context.Background())
	require.Error(t, err)

	closed := make(chan struct{})
	go func() {
		_ = stream.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return while the producer was blocked")
	}
}

// Close after a fully drained stream is a no-op.
func TestCLIStreamCloseAfterEOF(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "agent.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	r := NewCLIRunner(WithPath(script))
	stream, err := r.Start(context.Background(), Request{Prompt: "x", WorkDir: dir})
	require.NoError(t, err)

	_, err = stream.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, stream.Close())
}
