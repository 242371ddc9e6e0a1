package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/codedeck/runner/internal/language"
	"github.com/codedeck/runner/internal/sandbox"
)

// WatchOutcome is the verdict of one round of supervision.
type WatchOutcome int

const (
	// WatchExited means the process finished; ExitStatus carries the code.
	WatchExited WatchOutcome = iota
	// WatchWaiting means the process is alive and, as far as the heuristics
	// can tell, blocked on stdin.
	WatchWaiting
	// WatchTimedOut means the deadline elapsed before either of the above.
	WatchTimedOut
)

// WatchResult is what Watch observed. Output is already appended to the
// buffers handed in; this only reports how the round ended.
type WatchResult struct {
	Outcome WatchOutcome
	Status  sandbox.ExitStatus
}

// promptPattern matches terminal punctuation at the very end of the
// accumulated stdout, with nothing after it but spaces or tabs. A trailing
// newline disqualifies the match: a finished line is ordinary output, an
// unfinished one is a prompt waiting to be answered.
var promptPattern = regexp.MustCompile(`[:?>][ \t]*$`)

// endsWithPrompt reports whether accumulated stdout looks like an
// unanswered input prompt.
func endsWithPrompt(stdout string) bool {
	if stdout == "" || strings.HasSuffix(stdout, "\n") {
		return false
	}
	return promptPattern.MatchString(stdout)
}

// Monitor drives the interactive-input detection state machine over a live
// sandbox handle. There is no direct signal that a process is blocked on a
// read, so it is inferred from three tiers, strongest first:
//
//  1. a language-specific end-of-input marker on stderr
//  2. stdout ending in an unanswered prompt
//  3. no new output for the idle threshold, or total silence from the
//     start for the longer silence threshold
//
// Tier 3 cannot distinguish "blocked on stdin" from "blocked on anything";
// handing control back to the caller beats hanging the request.
type Monitor struct {
	Idle    time.Duration
	Silence time.Duration
	Hints   language.WaitHints

	// OnChunk, when set, observes every chunk after it is buffered. Used
	// for live streaming.
	OnChunk func(sandbox.Chunk)
}

// Watch consumes output from the handle into the buffers until the process
// exits, looks blocked on input, or deadline elapses. It is a single race
// over the exit event, the output stream and the timers, so a fast exit
// right after a late prompt is never missed.
func (m *Monitor) Watch(h sandbox.Handle, stdout, stderr *sandbox.OutputBuffer, deadline time.Duration) WatchResult {
	idle := time.NewTimer(m.Idle)
	defer idle.Stop()

	// The silence timer covers programs that never print at all. It is
	// disarmed by the first chunk; from then on the idle timer governs.
	silence := time.NewTimer(m.Silence)
	defer silence.Stop()

	overall := time.NewTimer(deadline)
	defer overall.Stop()

	out := h.Output()
	for {
		select {
		case status := <-h.Done():
			m.drain(out, stdout, stderr)
			return WatchResult{Outcome: WatchExited, Status: status}

		case chunk, ok := <-out:
			if !ok {
				// Pipes closed; only the exit status is left.
				out = nil
				continue
			}
			m.consume(chunk, stdout, stderr)
			idle.Reset(m.Idle)
			silence.Stop()

			if chunk.Stream == sandbox.Stderr && m.matchesEOFMarker(stderr.String()) {
				if res, exited := m.exitedNow(h, out, stdout, stderr); exited {
					return res
				}
				return WatchResult{Outcome: WatchWaiting}
			}
			if chunk.Stream == sandbox.Stdout && endsWithPrompt(stdout.String()) {
				if res, exited := m.exitedNow(h, out, stdout, stderr); exited {
					return res
				}
				return WatchResult{Outcome: WatchWaiting}
			}

		case <-idle.C:
			if out == nil {
				// Output is finished but the exit status has not arrived;
				// keep waiting for it rather than misreading teardown
				// latency as an input prompt.
				idle.Reset(m.Idle)
				continue
			}
			if res, exited := m.exitedNow(h, out, stdout, stderr); exited {
				return res
			}
			return WatchResult{Outcome: WatchWaiting}

		case <-silence.C:
			if res, exited := m.exitedNow(h, out, stdout, stderr); exited {
				return res
			}
			return WatchResult{Outcome: WatchWaiting}

		case <-overall.C:
			return WatchResult{Outcome: WatchTimedOut}
		}
	}
}

func (m *Monitor) consume(chunk sandbox.Chunk, stdout, stderr *sandbox.OutputBuffer) {
	switch chunk.Stream {
	case sandbox.Stdout:
		stdout.Append(chunk.Data)
	case sandbox.Stderr:
		stderr.Append(chunk.Data)
	}
	if m.OnChunk != nil {
		m.OnChunk(chunk)
	}
}

func (m *Monitor) matchesEOFMarker(stderrText string) bool {
	for _, marker := range m.Hints.EOFMarkers {
		if marker != "" && strings.Contains(stderrText, marker) {
			return true
		}
	}
	return false
}

// exitedNow peeks for a completed exit before declaring the process
// blocked on input. A program that prints a final prompt-looking line and
// exits immediately must report its real exit, not a phantom session.
func (m *Monitor) exitedNow(h sandbox.Handle, out <-chan sandbox.Chunk, stdout, stderr *sandbox.OutputBuffer) (WatchResult, bool) {
	select {
	case status := <-h.Done():
		m.drain(out, stdout, stderr)
		return WatchResult{Outcome: WatchExited, Status: status}, true
	default:
		return WatchResult{}, false
	}
}

// drain collects whatever output was produced before exit. The channel
// closes once the pipes hit EOF; the grace period covers backends whose
// exit notification can outrun the output demuxer.
func (m *Monitor) drain(out <-chan sandbox.Chunk, stdout, stderr *sandbox.OutputBuffer) {
	if out == nil {
		return
	}
	grace := time.After(time.Second)
	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				return
			}
			m.consume(chunk, stdout, stderr)
		case <-grace:
			return
		}
	}
}
