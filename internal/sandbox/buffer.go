package sandbox

import (
	"strings"
	"sync"
)

// TruncationMarker is appended exactly once when a buffer hits its cap.
const TruncationMarker = "\n[Output truncated]"

// OutputBuffer accumulates process output up to a hard cap. Once the cap
// is reached the marker is appended and every later chunk is discarded,
// so memory stays bounded for chatty programs.
type OutputBuffer struct {
	mu        sync.Mutex
	b         strings.Builder
	limit     int
	truncated bool
}

// NewOutputBuffer creates a buffer that holds at most limit characters of
// program output (the marker is not counted against the limit).
func NewOutputBuffer(limit int) *OutputBuffer {
	return &OutputBuffer{limit: limit}
}

// Append adds a chunk, discarding anything past the cap.
func (ob *OutputBuffer) Append(s string) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if ob.truncated {
		return
	}
	room := ob.limit - ob.b.Len()
	if len(s) <= room {
		ob.b.WriteString(s)
		return
	}
	ob.b.WriteString(s[:room])
	ob.b.WriteString(TruncationMarker)
	ob.truncated = true
}

// Write implements io.Writer so the buffer can sit directly behind a pipe.
func (ob *OutputBuffer) Write(p []byte) (int, error) {
	ob.Append(string(p))
	return len(p), nil
}

// String returns everything accumulated so far, marker included.
func (ob *OutputBuffer) String() string {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.b.String()
}

// Truncated reports whether the cap was hit.
func (ob *OutputBuffer) Truncated() bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.truncated
}
