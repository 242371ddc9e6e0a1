package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/database"
	"github.com/codedeck/runner/internal/language"
	"github.com/codedeck/runner/internal/models"
	"github.com/codedeck/runner/internal/sandbox"
)

// testEngine wires an engine whose "python" command is the shell, so
// interactive and timing behavior can be exercised without any language
// toolchain installed.
type testEngine struct {
	eng      *Engine
	db       *database.DB
	history  *HistoryService
	sessions *SessionManager
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	cfg := config.Default()
	cfg.Execution.RunTimeout = 2
	cfg.Execution.CompileTimeout = 2
	cfg.Execution.ContinueTimeout = 1
	cfg.Execution.IdleThresholdMs = 150
	cfg.Execution.SilenceAfterMs = 600
	cfg.Execution.MaxConcurrent = 4
	cfg.Languages.Python.Command = "sh"

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	sessions := NewSessionManager(time.Hour)
	t.Cleanup(sessions.Shutdown)

	history := NewHistoryService(db, cfg.Execution.HistoryLimit)
	eng := NewEngine(cfg,
		language.NewRegistry(&cfg.Languages),
		sandbox.NewProcessBackend(),
		sandbox.NewDockerBackend(&cfg.Sandbox),
		sessions,
		history,
		NewProjectFileService(db),
		NewWorkspaceService(t.TempDir()),
	)
	return &testEngine{eng: eng, db: db, history: history, sessions: sessions}
}

// assertResultInvariant checks the session/exit-code coupling every result
// must satisfy.
func assertResultInvariant(t *testing.T, res *models.ExecutionResult) {
	t.Helper()
	switch {
	case res.State == models.StateWaitingForInput:
		if res.SessionID == "" {
			t.Error("waiting_for_input requires a session id")
		}
		if res.ExitCode != nil {
			t.Error("waiting_for_input requires a nil exit code")
		}
	case res.State.Terminal():
		if res.SessionID != "" {
			t.Error("terminal result must not carry a session id")
		}
		if res.ExitCode == nil {
			t.Error("terminal result requires an exit code")
		}
	}
}

func pythonRequest(code string) *models.ExecutionRequest {
	return &models.ExecutionRequest{Language: models.LangPython, Code: code}
}

func TestExecute_Completed(t *testing.T) {
	te := newTestEngine(t)

	res, err := te.eng.Execute(context.Background(), pythonRequest("echo hello"))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	assertResultInvariant(t, res)

	if res.State != models.StateCompleted {
		t.Fatalf("expected completed, got %s (stderr: %q)", res.State, res.Stderr)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("expected stdout %q, got %q", "hello\n", res.Stdout)
	}
	if *res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", *res.ExitCode)
	}
}

func TestExecute_RuntimeFailure(t *testing.T) {
	te := newTestEngine(t)

	res, err := te.eng.Execute(context.Background(), pythonRequest("echo boom >&2; exit 3"))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	assertResultInvariant(t, res)

	if res.State != models.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if *res.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", *res.ExitCode)
	}
	if res.Stderr != "boom\n" {
		t.Errorf("expected stderr %q, got %q", "boom\n", res.Stderr)
	}
	if res.CompileError {
		t.Error("runtime failure must not be flagged as a compile error")
	}
}

func TestExecute_Timeout(t *testing.T) {
	te := newTestEngine(t)

	res, err := te.eng.Execute(context.Background(), pythonRequest("sleep 30"))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	assertResultInvariant(t, res)

	if res.State != models.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if *res.ExitCode != models.ExitCodeTimeout {
		t.Errorf("expected exit %d, got %d", models.ExitCodeTimeout, *res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "[Execution timeout after 2s]") {
		t.Errorf("expected timeout notice in stderr, got %q", res.Stderr)
	}
}

func TestExecute_InteractivePromptAndContinue(t *testing.T) {
	te := newTestEngine(t)

	script := `printf "Name: "
read name
echo "Hello $name"`

	res, err := te.eng.Execute(context.Background(), pythonRequest(script))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	assertResultInvariant(t, res)

	if res.State != models.StateWaitingForInput {
		t.Fatalf("expected waiting_for_input, got %s (stdout %q, stderr %q)", res.State, res.Stdout, res.Stderr)
	}
	if res.Stdout != "Name: " {
		t.Errorf("expected the prompt as stdout, got %q", res.Stdout)
	}

	cont, err := te.eng.Continue(context.Background(), &models.ContinueRequest{SessionID: res.SessionID, Input: "Ann"})
	if err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	assertResultInvariant(t, cont)

	if cont.State != models.StateCompleted {
		t.Fatalf("expected completed after input, got %s", cont.State)
	}
	// Transcript reads like a real terminal: prompt, echoed input, reply.
	want := "Name: Ann\nHello Ann\n"
	if cont.Stdout != want {
		t.Errorf("expected transcript %q, got %q", want, cont.Stdout)
	}

	if _, err := te.sessions.Get(res.SessionID); err == nil {
		t.Error("expected session destroyed after terminal result")
	}
}

func TestExecute_MultiRoundContinuation(t *testing.T) {
	te := newTestEngine(t)

	script := `read a
read b
echo "$a $b"`

	res, err := te.eng.Execute(context.Background(), pythonRequest(script))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	assertResultInvariant(t, res)
	if res.State != models.StateWaitingForInput {
		t.Fatalf("expected waiting via idle fallback, got %s", res.State)
	}

	mid, err := te.eng.Continue(context.Background(), &models.ContinueRequest{SessionID: res.SessionID, Input: "first"})
	if err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	assertResultInvariant(t, mid)
	if mid.State != models.StateWaitingForInput {
		t.Fatalf("expected still waiting after first input, got %s", mid.State)
	}
	if mid.SessionID != res.SessionID {
		t.Error("expected the same session across rounds")
	}

	fin, err := te.eng.Continue(context.Background(), &models.ContinueRequest{SessionID: res.SessionID, Input: "second"})
	if err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	assertResultInvariant(t, fin)
	if fin.State != models.StateCompleted {
		t.Fatalf("expected completed, got %s", fin.State)
	}
	if !strings.Contains(fin.Stdout, "first second") {
		t.Errorf("expected both inputs in output, got %q", fin.Stdout)
	}
}

func TestContinue_UnknownSession(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.eng.Continue(context.Background(), &models.ContinueRequest{SessionID: "nope", Input: "x"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestExecute_UnsupportedLanguage(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.eng.Execute(context.Background(), &models.ExecutionRequest{Language: "cobol", Code: "x"})
	if !errors.Is(err, language.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestExecute_EmptyCode(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.eng.Execute(context.Background(), pythonRequest("   "))
	if err == nil {
		t.Fatal("expected rejection of empty code")
	}
}

func TestExecute_EntryFileMissing(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.eng.Execute(context.Background(), &models.ExecutionRequest{
		Language:  models.LangPython,
		Files:     []models.SourceFile{{Path: "a.py", Content: "x"}},
		EntryFile: "b.py",
	})
	if err == nil {
		t.Fatal("expected rejection of missing entry file")
	}
}

func TestExecute_StructuralError(t *testing.T) {
	te := newTestEngine(t)

	// Two Java files, neither named Main.java: structurally invalid before
	// any compiler runs.
	res, err := te.eng.Execute(context.Background(), &models.ExecutionRequest{
		Language: models.LangJava,
		Files: []models.SourceFile{
			{Path: "A.java", Content: "public class A { public static void main(String[] args) {} }"},
			{Path: "B.java", Content: "public class B {}"},
		},
		EntryFile: "A.java",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	assertResultInvariant(t, res)

	if res.State != models.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if !res.CompileError {
		t.Error("structural errors report through the compile-error flag")
	}
	if res.Stderr == "" {
		t.Error("expected guidance in stderr")
	}
}

func TestExecute_BrowserBackendRunsNothing(t *testing.T) {
	te := newTestEngine(t)
	te.eng.cfg.Languages.JavaScript.Backend = "browser"
	te.eng.registry = language.NewRegistry(&te.eng.cfg.Languages)

	res, err := te.eng.Execute(context.Background(), &models.ExecutionRequest{
		Language: models.LangJavaScript,
		Code:     "console.log(1)",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.State != models.StateIdle {
		t.Errorf("expected idle for client-side sandbox, got %s", res.State)
	}
}

func TestExecute_OutputCapped(t *testing.T) {
	te := newTestEngine(t)
	te.eng.cfg.Execution.MaxOutputChars = 200

	script := "i=0; while [ $i -lt 200 ]; do echo 0123456789; i=$((i+1)); done"
	res, err := te.eng.Execute(context.Background(), pythonRequest(script))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if res.State != models.StateCompleted {
		t.Fatalf("expected completed, got %s", res.State)
	}
	if !strings.HasSuffix(res.Stdout, sandbox.TruncationMarker) {
		t.Errorf("expected truncation marker, got tail %q", res.Stdout[max(0, len(res.Stdout)-40):])
	}
	if len(res.Stdout) != 200+len(sandbox.TruncationMarker) {
		t.Errorf("expected capped output, got %d chars", len(res.Stdout))
	}
}

func TestExecute_HistoryRecordedOnce(t *testing.T) {
	te := newTestEngine(t)

	script := `printf "go: "
read x
echo done`

	res, err := te.eng.Execute(context.Background(), &models.ExecutionRequest{
		Language:  models.LangPython,
		Code:      script,
		ProjectID: "proj-1",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.State != models.StateWaitingForInput {
		t.Fatalf("expected waiting, got %s", res.State)
	}

	// Nothing recorded while the run is parked.
	entries, err := te.history.ListByProject("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no history while waiting, got %d entries", len(entries))
	}

	fin, err := te.eng.Continue(context.Background(), &models.ContinueRequest{SessionID: res.SessionID, Input: "x"})
	if err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	if fin.State != models.StateCompleted {
		t.Fatalf("expected completed, got %s", fin.State)
	}

	entries, err = te.history.ListByProject("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one history entry, got %d", len(entries))
	}
	if entries[0].Status != models.RunSuccess {
		t.Errorf("expected success status, got %s", entries[0].Status)
	}
}

func TestExecute_ProjectFilesResolved(t *testing.T) {
	te := newTestEngine(t)

	if _, err := te.db.Exec(`INSERT INTO projects (id, name, language) VALUES (?, ?, ?)`,
		"proj-2", "demo", "python"); err != nil {
		t.Fatalf("failed to insert project: %v", err)
	}
	if _, err := te.db.Exec(`INSERT INTO project_files (project_id, path, content) VALUES (?, ?, ?)`,
		"proj-2", "main.py", "echo stored"); err != nil {
		t.Fatalf("failed to insert project file: %v", err)
	}

	res, err := te.eng.Execute(context.Background(), &models.ExecutionRequest{
		Language:  models.LangPython,
		ProjectID: "proj-2",
		EntryFile: "main.py",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.State != models.StateCompleted {
		t.Fatalf("expected completed, got %s (stderr %q)", res.State, res.Stderr)
	}
	if res.Stdout != "stored\n" {
		t.Errorf("expected stored code to run, got stdout %q", res.Stdout)
	}
}

func TestExecute_StreamsOutput(t *testing.T) {
	te := newTestEngine(t)

	execID := "stream-test"
	ch := te.eng.Subscribe(execID)
	defer te.eng.Unsubscribe(execID, ch)

	req := pythonRequest("echo streamed")
	req.ExecutionID = execID
	res, err := te.eng.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.ExecutionID != execID {
		t.Errorf("expected the caller-chosen execution id back, got %q", res.ExecutionID)
	}

	var sawOutput, sawComplete bool
	deadline := time.After(2 * time.Second)
	for !sawComplete {
		select {
		case ev := <-ch:
			if strings.HasPrefix(ev, "stdout:") && strings.Contains(ev, "streamed") {
				sawOutput = true
			}
			if strings.HasPrefix(ev, "complete:") {
				sawComplete = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream events")
		}
	}
	if !sawOutput {
		t.Error("expected a stdout event on the stream")
	}
}
