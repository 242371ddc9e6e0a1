package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codedeck/runner/internal/models"
	"github.com/codedeck/runner/internal/sandbox"
)

// ErrSessionNotFound is returned when a continuation names a session that
// was never created or has already been torn down.
var ErrSessionNotFound = errors.New("session not found")

// reapInterval is how often the background reaper scans for dead or
// abandoned sessions. The max session age passed to NewSessionManager is
// the policy knob; this only bounds how stale the scan can be.
const reapInterval = 30 * time.Second

// Session is a live interactive execution parked between inputs. It owns
// the process handle, the accumulated transcript and the workspace
// cleanup. All mutation goes through the continuation path under mu.
type Session struct {
	ID        string
	Language  models.Language
	EntryFile string
	ProjectID string
	// ExecutionID ties continuation output back to the stream opened for
	// the original execute call.
	ExecutionID string

	Handle  sandbox.Handle
	Stdout  *sandbox.OutputBuffer
	Stderr  *sandbox.OutputBuffer
	Monitor *Monitor

	// Terminal is true when the process runs under a pty, which echoes
	// typed input by itself; the transcript echo is skipped there.
	Terminal bool

	StartedAt time.Time

	// lastActivity is unix nanos, atomic because the reaper and the
	// listing surface read it without the continuation lock.
	lastActivity atomic.Int64

	cleanup func()

	// mu serializes continuations. Concurrent continues against one
	// session must never interleave buffer writes.
	mu sync.Mutex
}

// Lock takes the per-session continuation lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-session continuation lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch records continuation activity for the reaper and listings.
func (s *Session) Touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// LastActivity reports when the session last saw a continuation.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Release kills the process if still alive and frees every attached
// resource. Safe to call from any teardown path; the underlying handle
// operations are idempotent.
func (s *Session) Release() {
	s.Handle.Kill()
	s.Handle.Release()
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Info is the listing view of a session.
func (s *Session) Info() models.SessionInfo {
	return models.SessionInfo{
		ID:           s.ID,
		Language:     s.Language,
		EntryFile:    s.EntryFile,
		StartedAt:    s.StartedAt,
		LastActivity: s.LastActivity(),
	}
}

// SessionManager owns every parked interactive session, keyed by the
// opaque session identifier. It is the only cross-request shared mutable
// state in the engine.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxAge  time.Duration
	stopCh  chan struct{}
	stopped sync.Once
}

// NewSessionManager creates the manager and starts the background reaper.
// maxAge bounds how long an abandoned session may sit without a
// continuation before being torn down.
func NewSessionManager(maxAge time.Duration) *SessionManager {
	m := &SessionManager{
		sessions: make(map[string]*Session),
		maxAge:   maxAge,
		stopCh:   make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Create parks a handle as a new session and returns it. The manager takes
// ownership of the handle and the cleanup.
func (m *SessionManager) Create(lang models.Language, entryFile, projectID, executionID string, h sandbox.Handle, stdout, stderr *sandbox.OutputBuffer, mon *Monitor, terminal bool, cleanup func()) *Session {
	s := &Session{
		ID:          uuid.New().String(),
		Language:    lang,
		EntryFile:   entryFile,
		ProjectID:   projectID,
		ExecutionID: executionID,
		Handle:      h,
		Stdout:      stdout,
		Stderr:      stderr,
		Monitor:     mon,
		Terminal:    terminal,
		StartedAt:   time.Now(),
		cleanup:     cleanup,
	}
	s.Touch()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Printf("[Session] Created %s (%s, %s)", s.ID, lang, entryFile)
	return s
}

// Get looks up a session by identifier.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove detaches the session from the table and releases its resources.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Release()
		log.Printf("[Session] Removed %s", id)
	}
}

// List returns info for every live session, for the operator surface.
func (m *SessionManager) List() []models.SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]models.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops the reaper and tears down every live session.
func (m *SessionManager) Shutdown() {
	m.stopped.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Release()
	}
}

func (m *SessionManager) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reap()
		case <-m.stopCh:
			return
		}
	}
}

// reap removes sessions whose process already exited and sessions
// abandoned past the activity ceiling.
func (m *SessionManager) reap() {
	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		select {
		case <-s.Handle.Done():
			stale = append(stale, id)
		default:
			if m.maxAge > 0 && time.Since(s.LastActivity()) > m.maxAge {
				stale = append(stale, id)
			}
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		log.Printf("[Session] Reaping stale session %s", id)
		m.Remove(id)
	}
}
