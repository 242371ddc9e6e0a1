// Package language classifies submitted programs and plans how to build and
// run them. Each supported language implements the Runtime capability; the
// engine selects one at the front door and never branches on language again.
package language

import (
	"errors"
	"fmt"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/models"
)

// Phase is a language-specific classification of project structure that
// determines the build/run strategy.
type Phase string

const (
	// PhaseSingleFile runs a single source file directly.
	PhaseSingleFile Phase = "single_file"
	// PhaseMultiFile compiles several files with no package structure (Java).
	PhaseMultiFile Phase = "multi_file"
	// PhasePackaged compiles package-structured sources (Java with package
	// declarations mirrored by folders).
	PhasePackaged Phase = "packaged"
	// PhaseObjects compiles each translation unit to an object file and
	// links them (multi-file C).
	PhaseObjects Phase = "objects"
)

// BackendKind selects the sandbox strategy for a language.
type BackendKind string

const (
	// BackendProcess spawns the toolchain directly on the host.
	BackendProcess BackendKind = "process"
	// BackendContainer runs the pipeline inside an isolated container.
	BackendContainer BackendKind = "container"
	// BackendClient performs no server-side execution; the client's own
	// sandbox runs the program.
	BackendClient BackendKind = "client"
)

// Mount points used by container plans. The workspace is bind-mounted
// read-only; compiled artifacts land in the writable scratch mount.
const (
	ContainerWorkspaceDir = "/workspace"
	ContainerScratchDir   = "/build"
)

// Step is one command of a build or run plan.
type Step struct {
	// Args is the argv to execute. Args[0] is the program.
	Args []string
	// Dir is the working directory. For container plans this is a path
	// inside the container.
	Dir string
}

// String renders the step the way a shell transcript would show it.
func (s Step) String() string {
	out := ""
	for i, a := range s.Args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// Plan is the build-then-run strategy for one execution.
type Plan struct {
	// Compile steps run in order; any failure aborts the plan before the
	// next step. Empty for interpreted languages.
	Compile []Step
	// Run launches the program itself.
	Run Step
	// Terminal requests a pseudo-terminal on the run step's stdout so
	// partial-line prompts are flushed (process backend only).
	Terminal bool
}

// WaitHints carries per-language signals used by the interactive-input
// detector. EOFMarkers are stderr substrings produced by the language's
// input primitive when it hits end of stream; they short-circuit the
// timer-based heuristic.
type WaitHints struct {
	EOFMarkers []string
}

// Runtime is the per-language capability: classify the file set, plan the
// build, and describe how to watch the program run.
type Runtime interface {
	Name() models.Language
	Backend() BackendKind

	// DetectPhase classifies the file set. It is pure: same input, same
	// phase. Structural problems (no main, ambiguous main) are reported
	// as *StructuralError before any process is spawned.
	DetectPhase(files []models.SourceFile, entryFile string) (Phase, error)

	// Plan produces the concrete build/run steps for a detected phase.
	// workDir is the host workspace for process backends and ignored by
	// container plans, which use the fixed mount points.
	Plan(phase Phase, files []models.SourceFile, entryFile, workDir string) (*Plan, error)

	WaitHints() WaitHints
}

// StructuralError reports a problem with the shape of the submitted
// project (missing or ambiguous entry point, package/folder mismatch).
// It is detected before any compiler runs, so the message carries explicit
// guidance instead of a confusing secondary compiler diagnostic.
type StructuralError struct {
	msg string
}

func (e *StructuralError) Error() string {
	return e.msg
}

func structuralf(format string, args ...any) error {
	return &StructuralError{msg: fmt.Sprintf(format, args...)}
}

// IsStructural reports whether err is a structural classification error.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// ErrUnsupported is returned by Registry.Get for unknown languages.
var ErrUnsupported = errors.New("unsupported language")

// Registry holds one Runtime per supported language.
type Registry struct {
	runtimes map[models.Language]Runtime
}

// NewRegistry builds the runtime set from configuration.
func NewRegistry(cfg *config.LanguagesConfig) *Registry {
	r := &Registry{runtimes: make(map[models.Language]Runtime)}
	r.register(newPython(&cfg.Python))
	r.register(newJavaScript(&cfg.JavaScript))
	r.register(newJava(&cfg.Java))
	r.register(newC())
	return r
}

func (r *Registry) register(rt Runtime) {
	r.runtimes[rt.Name()] = rt
}

// Get returns the runtime for a language.
func (r *Registry) Get(lang models.Language) (Runtime, error) {
	rt, ok := r.runtimes[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, lang)
	}
	return rt, nil
}
