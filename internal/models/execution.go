package models

// Language identifies a supported execution language.
type Language string

const (
	// LangPython runs through the host Python interpreter.
	LangPython Language = "python"
	// LangJavaScript runs through the host Node.js runtime.
	LangJavaScript Language = "javascript"
	// LangJava compiles with javac and runs on the host JVM.
	LangJava Language = "java"
	// LangC compiles and runs inside an isolated container.
	LangC Language = "c"
)

// Supported reports whether the language is one the engine can execute.
func (l Language) Supported() bool {
	switch l {
	case LangPython, LangJavaScript, LangJava, LangC:
		return true
	}
	return false
}

// SourceFile is a single file of a submitted program.
type SourceFile struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

// ExecutionRequest is the body of POST /api/execute.
// Either Code (single file) or Files must be provided.
type ExecutionRequest struct {
	Language  Language     `json:"language" binding:"required"`
	Code      string       `json:"code"`
	Files     []SourceFile `json:"files"`
	EntryFile string       `json:"entryFile"`
	ProjectID string       `json:"projectId"`
	// ExecutionID is an optional caller-chosen identifier, letting a
	// client open the streaming endpoint before or while the run executes.
	// Assigned by the engine when absent.
	ExecutionID string `json:"executionId"`
}

// ExecutionState is the lifecycle state reported to callers.
type ExecutionState string

const (
	// StateIdle is returned when nothing was executed (e.g. browser-sandboxed JS).
	StateIdle ExecutionState = "idle"
	// StateRunning is only visible through the streaming endpoint.
	StateRunning ExecutionState = "running"
	// StateWaitingForInput means the process is alive and blocked on stdin;
	// SessionID is set and ExitCode is nil.
	StateWaitingForInput ExecutionState = "waiting_for_input"
	// StateCompleted means the process exited with code zero.
	StateCompleted ExecutionState = "completed"
	// StateFailed covers compile errors, runtime errors, timeouts and
	// infrastructure failures.
	StateFailed ExecutionState = "failed"
)

// Terminal reports whether the state ends the logical run.
func (s ExecutionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ExecutionResult is the response shape shared by /api/execute and
// /api/continue.
//
// Invariants: StateWaitingForInput implies SessionID != "" and ExitCode ==
// nil; a terminal state implies SessionID == "" and ExitCode != nil (124 on
// timeout).
type ExecutionResult struct {
	State           ExecutionState `json:"state"`
	Stdout          string         `json:"stdout"`
	Stderr          string         `json:"stderr"`
	ExitCode        *int           `json:"exitCode"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	SessionID       string         `json:"sessionId,omitempty"`
	CompileError    bool           `json:"compileError,omitempty"`
	ExecutionID     string         `json:"executionId,omitempty"`
}

// ExitCodeTimeout is the sentinel exit code for a killed, overdue process.
// Mirrors the conventional shell timeout(1) code.
const ExitCodeTimeout = 124

// ContinueRequest is the body of POST /api/continue.
type ContinueRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Input     string `json:"input"`
}
