package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/language"
	"github.com/codedeck/runner/internal/models"
	"github.com/codedeck/runner/internal/sandbox"
)

// ErrInvalidRequest marks submissions rejected before anything is spawned:
// empty code, a missing entry file, a bad path.
var ErrInvalidRequest = errors.New("invalid request")

// Engine is the execution orchestrator. One call to Execute takes a
// request through validation, phase detection, the build pipeline, the
// sandbox run and either a terminal result or a parked interactive
// session. Continue resumes a parked session with one round of input.
type Engine struct {
	cfg      *config.Config
	registry *language.Registry
	process  *sandbox.ProcessBackend
	docker   *sandbox.DockerBackend
	sessions *SessionManager
	history  *HistoryService
	files    *ProjectFileService
	works    *WorkspaceService

	// sem bounds simultaneous sandbox invocations.
	sem chan struct{}

	streams   map[string][]chan string
	streamsMu sync.RWMutex
}

// NewEngine wires the orchestrator from its collaborators.
func NewEngine(cfg *config.Config, registry *language.Registry, process *sandbox.ProcessBackend, docker *sandbox.DockerBackend, sessions *SessionManager, history *HistoryService, files *ProjectFileService, works *WorkspaceService) *Engine {
	maxConcurrent := cfg.Execution.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		process:  process,
		docker:   docker,
		sessions: sessions,
		history:  history,
		files:    files,
		works:    works,
		sem:      make(chan struct{}, maxConcurrent),
		streams:  make(map[string][]chan string),
	}
}

// defaultEntryFile is the synthesized file name for single-snippet
// submissions that carry code instead of a file list.
func defaultEntryFile(lang models.Language) string {
	switch lang {
	case models.LangPython:
		return "main.py"
	case models.LangJavaScript:
		return "main.js"
	case models.LangJava:
		return "Main.java"
	case models.LangC:
		return "main.c"
	}
	return "main"
}

// resolveFiles normalizes the three request shapes (inline files, single
// code snippet, stored project) into a file list and entry file.
func (e *Engine) resolveFiles(req *models.ExecutionRequest) ([]models.SourceFile, string, error) {
	files := req.Files
	entry := req.EntryFile

	if len(files) == 0 && req.ProjectID != "" {
		stored, err := e.files.GetFiles(req.ProjectID)
		if err != nil {
			return nil, "", err
		}
		files = stored
	}
	if len(files) == 0 {
		if strings.TrimSpace(req.Code) == "" {
			return nil, "", fmt.Errorf("%w: no code provided", ErrInvalidRequest)
		}
		if entry == "" {
			entry = defaultEntryFile(req.Language)
		}
		files = []models.SourceFile{{Path: entry, Content: req.Code}}
	}
	if entry == "" && len(files) == 1 {
		entry = files[0].Path
	}

	found := false
	for _, f := range files {
		if f.Path == entry {
			found = true
			break
		}
	}
	if !found {
		return nil, "", fmt.Errorf("%w: entry file not found in submission: %s", ErrInvalidRequest, entry)
	}
	return files, entry, nil
}

// Execute runs one submission to a terminal result or a parked session.
func (e *Engine) Execute(ctx context.Context, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	rt, err := e.registry.Get(req.Language)
	if err != nil {
		return nil, err
	}

	execID := req.ExecutionID
	if execID == "" {
		execID = uuid.New().String()
	}

	if rt.Backend() == language.BackendClient {
		// The client's own sandbox runs the program; nothing executes here.
		return &models.ExecutionResult{State: models.StateIdle, ExecutionID: execID}, nil
	}

	files, entry, err := e.resolveFiles(req)
	if err != nil {
		return nil, err
	}

	// Admission control: bounded simultaneous sandbox runs.
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sem }()

	phase, err := rt.DetectPhase(files, entry)
	if err != nil {
		if language.IsStructural(err) {
			res := e.structuralResult(execID, err)
			e.finish(execID, req.ProjectID, req.Language, entry, res)
			return res, nil
		}
		return nil, err
	}

	workDir, cleanupWork, err := e.works.Materialize(files)
	if err != nil {
		return nil, err
	}

	var scratchDir string
	cleanup := cleanupWork
	if rt.Backend() == language.BackendContainer {
		var cleanupScratch func()
		scratchDir, cleanupScratch, err = e.works.Scratch()
		if err != nil {
			cleanupWork()
			return nil, err
		}
		cleanup = func() {
			cleanupScratch()
			cleanupWork()
		}
	}

	plan, err := rt.Plan(phase, files, entry, workDir)
	if err != nil {
		cleanup()
		if language.IsStructural(err) {
			res := e.structuralResult(execID, err)
			e.finish(execID, req.ProjectID, req.Language, entry, res)
			return res, nil
		}
		return nil, err
	}

	log.Printf("[Engine] Executing %s %s (phase %s, %d files)", req.Language, entry, phase, len(files))

	if res, failed, err := e.compile(ctx, rt, plan, workDir, scratchDir, execID); err != nil {
		cleanup()
		return nil, err
	} else if failed {
		cleanup()
		e.finish(execID, req.ProjectID, req.Language, entry, res)
		return res, nil
	}

	return e.run(ctx, rt, plan, req, entry, workDir, scratchDir, execID, cleanup)
}

// compile runs the plan's build steps in order, stopping at the first
// failure. The returned result, when failed is true, is the terminal
// compile-error result.
func (e *Engine) compile(ctx context.Context, rt language.Runtime, plan *language.Plan, workDir, scratchDir, execID string) (*models.ExecutionResult, bool, error) {
	if len(plan.Compile) == 0 {
		return nil, false, nil
	}

	var attempted []language.Step
	for _, step := range plan.Compile {
		attempted = append(attempted, step)

		res, err := e.runStep(ctx, rt, step, workDir, scratchDir)
		if err != nil {
			return nil, false, err
		}
		if res.TimedOut {
			code := models.ExitCodeTimeout
			return &models.ExecutionResult{
				State:           models.StateFailed,
				Stdout:          res.Stdout,
				Stderr:          appendTimeoutNotice(res.Stderr, e.cfg.Execution.CompileTimeout),
				ExitCode:        &code,
				ExecutionTimeMs: res.Duration.Milliseconds(),
				CompileError:    true,
				ExecutionID:     execID,
			}, true, nil
		}
		if res.ExitCode != 0 {
			stderr := res.Stderr
			if len(plan.Compile) > 1 {
				stderr = buildTranscript(attempted) + stderr
			}
			code := res.ExitCode
			return &models.ExecutionResult{
				State:           models.StateFailed,
				Stdout:          res.Stdout,
				Stderr:          stderr,
				ExitCode:        &code,
				ExecutionTimeMs: res.Duration.Milliseconds(),
				CompileError:    true,
				ExecutionID:     execID,
			}, true, nil
		}
	}
	return nil, false, nil
}

// runStep executes one collecting build step on the backend the runtime
// selected.
func (e *Engine) runStep(ctx context.Context, rt language.Runtime, step language.Step, workDir, scratchDir string) (*sandbox.RunResult, error) {
	timeout := e.cfg.Execution.CompileTimeoutDuration()

	if rt.Backend() == language.BackendContainer {
		return e.docker.Run(ctx, sandbox.ContainerSpec{
			Args:             step.Args,
			Dir:              step.Dir,
			WorkspaceHostDir: workDir,
			ScratchHostDir:   scratchDir,
		}, timeout, e.cfg.Execution.MaxContainerChars)
	}
	return e.process.Run(ctx, sandbox.Spec{
		Args: step.Args,
		Dir:  step.Dir,
	}, timeout, e.cfg.Execution.MaxOutputChars)
}

// buildTranscript renders the ordered build commands attempted, so a
// multi-step compile failure shows which invocation broke.
func buildTranscript(steps []language.Step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString("$ ")
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// run launches the program, supervises it and produces either a terminal
// result or a parked session.
func (e *Engine) run(ctx context.Context, rt language.Runtime, plan *language.Plan, req *models.ExecutionRequest, entry, workDir, scratchDir, execID string, cleanup func()) (*models.ExecutionResult, error) {
	container := rt.Backend() == language.BackendContainer

	var (
		h   sandbox.Handle
		err error
	)
	if container {
		h, err = e.docker.Start(ctx, sandbox.ContainerSpec{
			Args:             plan.Run.Args,
			Dir:              plan.Run.Dir,
			WorkspaceHostDir: workDir,
			ScratchHostDir:   scratchDir,
		})
	} else {
		h, err = e.process.Start(sandbox.Spec{
			Args:     plan.Run.Args,
			Dir:      plan.Run.Dir,
			Terminal: plan.Terminal,
		})
	}
	if err != nil {
		cleanup()
		return nil, err
	}

	maxChars := e.cfg.Execution.MaxOutputChars
	deadline := e.cfg.Execution.RunTimeoutDuration()
	if container {
		maxChars = e.cfg.Execution.MaxContainerChars
		deadline = e.cfg.Execution.ContainerRunTimeoutDuration()
	}

	stdout := sandbox.NewOutputBuffer(maxChars)
	stderr := sandbox.NewOutputBuffer(maxChars)
	mon := &Monitor{
		Idle:    e.cfg.Execution.IdleThreshold(),
		Silence: e.cfg.Execution.SilenceThreshold(),
		Hints:   rt.WaitHints(),
		OnChunk: func(c sandbox.Chunk) { e.broadcastChunk(execID, c) },
	}

	start := time.Now()
	watch := mon.Watch(h, stdout, stderr, deadline)
	elapsed := time.Since(start).Milliseconds()

	switch watch.Outcome {
	case WatchWaiting:
		sess := e.sessions.Create(req.Language, entry, req.ProjectID, execID, h, stdout, stderr, mon, plan.Terminal && !container, cleanup)
		return &models.ExecutionResult{
			State:           models.StateWaitingForInput,
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			ExecutionTimeMs: elapsed,
			SessionID:       sess.ID,
			ExecutionID:     execID,
		}, nil

	case WatchTimedOut:
		h.Kill()
		h.Release()
		cleanup()
		code := models.ExitCodeTimeout
		res := &models.ExecutionResult{
			State:           models.StateFailed,
			Stdout:          stdout.String(),
			Stderr:          appendTimeoutNotice(stderr.String(), int(deadline.Seconds())),
			ExitCode:        &code,
			ExecutionTimeMs: elapsed,
			ExecutionID:     execID,
		}
		e.finish(execID, req.ProjectID, req.Language, entry, res)
		return res, nil

	default:
		h.Release()
		cleanup()
		res := exitedResult(watch.Status, stdout.String(), stderr.String(), elapsed, execID)
		e.finish(execID, req.ProjectID, req.Language, entry, res)
		return res, nil
	}
}

// Continue delivers one round of input to a parked session and supervises
// the next stretch of execution.
func (e *Engine) Continue(ctx context.Context, req *models.ContinueRequest) (*models.ExecutionResult, error) {
	sess, err := e.sessions.Get(req.SessionID)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	defer sess.Unlock()
	sess.Touch()

	// Complete the prompt line in the transcript the way a real terminal
	// would show it. Pty-backed sessions echo input themselves.
	if !sess.Terminal && endsWithPrompt(sess.Stdout.String()) {
		sess.Stdout.Append(req.Input + "\n")
	}

	if err := sess.Handle.WriteStdin(req.Input + "\n"); err != nil {
		res := &models.ExecutionResult{
			State:           models.StateFailed,
			Stdout:          sess.Stdout.String(),
			Stderr:          sess.Stderr.String() + "\ninput could not be delivered: stdin is closed",
			ExitCode:        intPtr(1),
			ExecutionTimeMs: time.Since(sess.StartedAt).Milliseconds(),
			ExecutionID:     sess.ExecutionID,
		}
		e.finishSession(sess, res)
		return res, nil
	}

	watch := sess.Monitor.Watch(sess.Handle, sess.Stdout, sess.Stderr, e.cfg.Execution.ContinueTimeoutDuration())
	elapsed := time.Since(sess.StartedAt).Milliseconds()

	switch watch.Outcome {
	case WatchExited:
		res := exitedResult(watch.Status, sess.Stdout.String(), sess.Stderr.String(), elapsed, sess.ExecutionID)
		e.finishSession(sess, res)
		return res, nil

	default:
		// Still waiting, including the re-armed continuation timeout. The
		// session survives; the caller may retry or abandon it.
		return &models.ExecutionResult{
			State:           models.StateWaitingForInput,
			Stdout:          sess.Stdout.String(),
			Stderr:          sess.Stderr.String(),
			ExecutionTimeMs: elapsed,
			SessionID:       sess.ID,
			ExecutionID:     sess.ExecutionID,
		}, nil
	}
}

// finishSession records history exactly once for the logical run and tears
// the session down.
func (e *Engine) finishSession(sess *Session, res *models.ExecutionResult) {
	e.finish(sess.ExecutionID, sess.ProjectID, sess.Language, sess.EntryFile, res)
	e.sessions.Remove(sess.ID)
}

// finish records a terminal outcome and notifies stream subscribers.
func (e *Engine) finish(execID, projectID string, lang models.Language, entry string, res *models.ExecutionResult) {
	if err := e.history.Record(projectID, lang, entry, res); err != nil {
		log.Printf("[Engine] Failed to record run history: %v", err)
	}
	if execID != "" {
		e.broadcastComplete(execID, res.State)
	}
}

func (e *Engine) structuralResult(execID string, err error) *models.ExecutionResult {
	return &models.ExecutionResult{
		State:        models.StateFailed,
		Stderr:       err.Error(),
		ExitCode:     intPtr(1),
		CompileError: true,
		ExecutionID:  execID,
	}
}

func exitedResult(status sandbox.ExitStatus, stdout, stderr string, elapsed int64, execID string) *models.ExecutionResult {
	if status.Err != nil {
		return &models.ExecutionResult{
			State:           models.StateFailed,
			Stdout:          stdout,
			Stderr:          stderr + "\nprocess could not be reaped: " + status.Err.Error(),
			ExitCode:        intPtr(1),
			ExecutionTimeMs: elapsed,
			ExecutionID:     execID,
		}
	}

	state := models.StateCompleted
	if status.Code != 0 {
		state = models.StateFailed
	}
	code := status.Code
	return &models.ExecutionResult{
		State:           state,
		Stdout:          stdout,
		Stderr:          stderr,
		ExitCode:        &code,
		ExecutionTimeMs: elapsed,
		ExecutionID:     execID,
	}
}

// appendTimeoutNotice adds the timeout marker to whatever the program
// managed to write before being killed.
func appendTimeoutNotice(stderr string, seconds int) string {
	notice := fmt.Sprintf("[Execution timeout after %ds]", seconds)
	if stderr == "" {
		return notice
	}
	if !strings.HasSuffix(stderr, "\n") {
		return stderr + "\n" + notice
	}
	return stderr + notice
}

func intPtr(v int) *int { return &v }

// Subscribe attaches a live output stream for an execution identifier.
// Events are "stdout:<chunk>", "stderr:<chunk>" and "complete:<state>".
func (e *Engine) Subscribe(executionID string) chan string {
	ch := make(chan string, 100)

	e.streamsMu.Lock()
	e.streams[executionID] = append(e.streams[executionID], ch)
	e.streamsMu.Unlock()

	return ch
}

// Unsubscribe detaches and closes a stream channel.
func (e *Engine) Unsubscribe(executionID string, ch chan string) {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()

	channels := e.streams[executionID]
	for i, c := range channels {
		if c == ch {
			e.streams[executionID] = append(channels[:i], channels[i+1:]...)
			close(ch)
			break
		}
	}

	if len(e.streams[executionID]) == 0 {
		delete(e.streams, executionID)
	}
}

func (e *Engine) broadcastChunk(executionID string, chunk sandbox.Chunk) {
	prefix := "stdout:"
	if chunk.Stream == sandbox.Stderr {
		prefix = "stderr:"
	}

	e.streamsMu.RLock()
	defer e.streamsMu.RUnlock()

	for _, ch := range e.streams[executionID] {
		select {
		case ch <- prefix + chunk.Data:
		default:
		}
	}
}

func (e *Engine) broadcastComplete(executionID string, state models.ExecutionState) {
	e.streamsMu.RLock()
	defer e.streamsMu.RUnlock()

	for _, ch := range e.streams[executionID] {
		select {
		case ch <- "complete:" + string(state):
		default:
		}
	}
}
