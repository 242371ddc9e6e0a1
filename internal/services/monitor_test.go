package services

import (
	"testing"
	"time"

	"github.com/codedeck/runner/internal/language"
	"github.com/codedeck/runner/internal/sandbox"
)

func TestEndsWithPrompt(t *testing.T) {
	tests := []struct {
		stdout string
		want   bool
	}{
		{"Name: ", true},
		{"Name:", true},
		{"Enter a value? ", true},
		{"> ", true},
		{">>> ", true},
		{"How many:\t", true},
		{"Name: \n", false},
		{"all done\n", false},
		{"plain text", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := endsWithPrompt(tt.stdout); got != tt.want {
			t.Errorf("endsWithPrompt(%q) = %v, want %v", tt.stdout, got, tt.want)
		}
	}
}

type fakeHandle struct {
	out   chan sandbox.Chunk
	done  chan sandbox.ExitStatus
	stdin []string
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		out:  make(chan sandbox.Chunk, 16),
		done: make(chan sandbox.ExitStatus, 1),
	}
}

func (h *fakeHandle) Output() <-chan sandbox.Chunk     { return h.out }
func (h *fakeHandle) Done() <-chan sandbox.ExitStatus  { return h.done }
func (h *fakeHandle) WriteStdin(data string) error     { h.stdin = append(h.stdin, data); return nil }
func (h *fakeHandle) Kill()                            {}
func (h *fakeHandle) Release()                         {}

func testMonitor() *Monitor {
	return &Monitor{
		Idle:    150 * time.Millisecond,
		Silence: 600 * time.Millisecond,
	}
}

func TestWatch_Exit(t *testing.T) {
	h := newFakeHandle()
	h.out <- sandbox.Chunk{Stream: sandbox.Stdout, Data: "hello\n"}
	close(h.out)
	h.done <- sandbox.ExitStatus{Code: 0}

	stdout := sandbox.NewOutputBuffer(1000)
	stderr := sandbox.NewOutputBuffer(1000)
	res := testMonitor().Watch(h, stdout, stderr, 5*time.Second)

	if res.Outcome != WatchExited {
		t.Fatalf("expected WatchExited, got %v", res.Outcome)
	}
	if res.Status.Code != 0 {
		t.Errorf("expected exit 0, got %d", res.Status.Code)
	}
	if stdout.String() != "hello\n" {
		t.Errorf("expected buffered stdout, got %q", stdout.String())
	}
}

func TestWatch_PromptTriggersWaiting(t *testing.T) {
	h := newFakeHandle()
	h.out <- sandbox.Chunk{Stream: sandbox.Stdout, Data: "Name: "}

	stdout := sandbox.NewOutputBuffer(1000)
	stderr := sandbox.NewOutputBuffer(1000)

	start := time.Now()
	res := testMonitor().Watch(h, stdout, stderr, 5*time.Second)
	elapsed := time.Since(start)

	if res.Outcome != WatchWaiting {
		t.Fatalf("expected WatchWaiting, got %v", res.Outcome)
	}
	if stdout.String() != "Name: " {
		t.Errorf("expected prompt in buffer, got %q", stdout.String())
	}
	// Prompt detection must not wait for the idle timer.
	if elapsed > 100*time.Millisecond {
		t.Errorf("prompt detection took %v, should be immediate", elapsed)
	}
}

func TestWatch_EOFMarkerTriggersWaiting(t *testing.T) {
	h := newFakeHandle()
	h.out <- sandbox.Chunk{Stream: sandbox.Stderr, Data: "EOFError: EOF when reading a line\n"}

	mon := testMonitor()
	mon.Hints = language.WaitHints{EOFMarkers: []string{"EOFError"}}

	stdout := sandbox.NewOutputBuffer(1000)
	stderr := sandbox.NewOutputBuffer(1000)
	res := mon.Watch(h, stdout, stderr, 5*time.Second)

	if res.Outcome != WatchWaiting {
		t.Fatalf("expected WatchWaiting, got %v", res.Outcome)
	}
}

func TestWatch_IdleFallback(t *testing.T) {
	h := newFakeHandle()
	// Output without prompt punctuation, then nothing.
	h.out <- sandbox.Chunk{Stream: sandbox.Stdout, Data: "computing\n"}

	stdout := sandbox.NewOutputBuffer(1000)
	stderr := sandbox.NewOutputBuffer(1000)
	res := testMonitor().Watch(h, stdout, stderr, 5*time.Second)

	if res.Outcome != WatchWaiting {
		t.Fatalf("expected WatchWaiting via idle fallback, got %v", res.Outcome)
	}
}

func TestWatch_DeadlineWins(t *testing.T) {
	h := newFakeHandle()

	// Feed chunks faster than the idle threshold so only the overall
	// deadline can end the round.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.out <- sandbox.Chunk{Stream: sandbox.Stdout, Data: "tick\n"}
			case <-stop:
				return
			}
		}
	}()

	stdout := sandbox.NewOutputBuffer(10000)
	stderr := sandbox.NewOutputBuffer(10000)
	res := testMonitor().Watch(h, stdout, stderr, 400*time.Millisecond)

	if res.Outcome != WatchTimedOut {
		t.Fatalf("expected WatchTimedOut, got %v", res.Outcome)
	}
}

func TestWatch_ExitBeatsPrompt(t *testing.T) {
	// A program that prints a prompt-looking line and exits immediately
	// must report its exit, not a phantom interactive session.
	h := newFakeHandle()
	h.done <- sandbox.ExitStatus{Code: 2}
	h.out <- sandbox.Chunk{Stream: sandbox.Stdout, Data: "oops: "}
	close(h.out)

	stdout := sandbox.NewOutputBuffer(1000)
	stderr := sandbox.NewOutputBuffer(1000)
	res := testMonitor().Watch(h, stdout, stderr, 5*time.Second)

	if res.Outcome != WatchExited {
		t.Fatalf("expected WatchExited, got %v", res.Outcome)
	}
	if res.Status.Code != 2 {
		t.Errorf("expected exit 2, got %d", res.Status.Code)
	}
}

func TestWatch_OnChunkObservesOutput(t *testing.T) {
	h := newFakeHandle()
	h.out <- sandbox.Chunk{Stream: sandbox.Stdout, Data: "a"}
	h.out <- sandbox.Chunk{Stream: sandbox.Stderr, Data: "b"}
	close(h.out)
	h.done <- sandbox.ExitStatus{Code: 0}

	var seen []sandbox.Chunk
	mon := testMonitor()
	mon.OnChunk = func(c sandbox.Chunk) { seen = append(seen, c) }

	stdout := sandbox.NewOutputBuffer(1000)
	stderr := sandbox.NewOutputBuffer(1000)
	mon.Watch(h, stdout, stderr, 5*time.Second)

	if len(seen) != 2 {
		t.Fatalf("expected 2 observed chunks, got %d", len(seen))
	}
	if seen[0].Data != "a" || seen[1].Data != "b" {
		t.Errorf("chunks observed out of order: %v", seen)
	}
}
