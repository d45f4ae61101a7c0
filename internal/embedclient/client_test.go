package embedclient

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

// echoServerScript is a minimal stand-in embedding subprocess: it announces
// ready immediately, then for every request line it reads, echoes back an
// embed_result carrying the same id and a fixed embedding. Good enough to
// exercise the line-framing and queuing contract without a real model.
const echoServerScript = `
echo '{"type":"ready"}'
while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  case "$line" in
    *'"type":"shutdown"'*) exit 0 ;;
  esac
  echo "{\"type\":\"embed_result\",\"id\":\"$id\",\"embedding\":[0.1,0.2,0.3]}"
done
`

func newEchoClient(t *testing.T) *Client {
	t.Helper()
	spawn := func() (*exec.Cmd, error) {
		cmd := exec.Command("sh", "-c", echoServerScript)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}
	return New(spawn, 3)
}

func TestClientEmbedRoundTrip(t *testing.T) {
	c := newEchoClient(t)
	c.requestTimeout = 2 * time.Second
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = c.Shutdown(ctx) }()

	v, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed returned error (should never happen): %v", err)
	}
	if len(v) != 3 {
		t.Fatalf("expected a 3-dim vector from the echo server, got %v", v)
	}
}

func TestClientEmbedBeforeReadyIsQueued(t *testing.T) {
	c := newEchoClient(t)
	c.requestTimeout = 2 * time.Second
	ctx := context.Background()

	// Mark not-ready and queue a request manually to exercise the queue
	// path deterministically, independent of the echo server's timing.
	c.mu.Lock()
	c.ready = false
	c.pending["99"] = make(chan response, 1)
	c.queued = append(c.queued, request{Type: "embed", ID: "99", Text: "queued"})
	c.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = c.Shutdown(ctx) }()

	select {
	case resp := <-c.pending["99"]:
		if resp.ID != "99" {
			t.Fatalf("expected response for queued id 99, got %v", resp)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("queued request was never flushed after ready")
	}
}

func TestClientFallsBackToMockOnTimeout(t *testing.T) {
	spawn := func() (*exec.Cmd, error) {
		// A subprocess that never announces ready: every request must
		// fall back to a mock vector once requestTimeout elapses.
		cmd := exec.Command("sh", "-c", "sleep 5")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}
	c := New(spawn, 4)
	c.requestTimeout = 50 * time.Millisecond
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = c.Shutdown(ctx) }()

	v, err := c.Embed(ctx, "never answered")
	if err != nil {
		t.Fatalf("Embed returned error (should never happen): %v", err)
	}
	want := mockVector("never answered", 4)
	if len(v) != len(want) {
		t.Fatalf("expected mock fallback of dim %d, got %d", len(want), len(v))
	}
}
