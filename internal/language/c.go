package language

import (
	"path"
	"regexp"
	"strings"

	"github.com/codedeck/runner/internal/models"
)

// cMainRe matches a top-level main definition. Indented matches are
// excluded so a commented or nested mention does not count.
var cMainRe = regexp.MustCompile(`(?m)^(?:int|void)\s+main\s*\(`)

type cRuntime struct{}

func newC() *cRuntime {
	return &cRuntime{}
}

func (r *cRuntime) Name() models.Language {
	return models.LangC
}

func (r *cRuntime) Backend() BackendKind {
	return BackendContainer
}

// DetectPhase: a single .c file compiles and runs directly; more than one
// .c file, or any header, switches to object-file compilation and linking.
// The multi-file phase requires exactly one translation unit defining main,
// checked here because it is cheaper and clearer than a linker error.
func (r *cRuntime) DetectPhase(files []models.SourceFile, entryFile string) (Phase, error) {
	cFiles := filterSuffix(files, ".c")
	hFiles := filterSuffix(files, ".h")

	if len(cFiles) == 0 {
		return "", structuralf("no .c files in submission")
	}

	if len(cFiles) == 1 && len(hFiles) == 0 {
		return PhaseSingleFile, nil
	}

	mains := 0
	for _, f := range cFiles {
		if cMainRe.MatchString(f.Content) {
			mains++
		}
	}
	switch {
	case mains == 0:
		return "", structuralf("no main function: exactly one .c file must define main")
	case mains > 1:
		return "", structuralf("multiple main functions: %d files define main, exactly one is required", mains)
	}
	return PhaseObjects, nil
}

// Plan builds container-side steps: sources are visible read-only under the
// workspace mount, artifacts land in the writable scratch mount.
func (r *cRuntime) Plan(phase Phase, files []models.SourceFile, entryFile, workDir string) (*Plan, error) {
	exe := path.Join(ContainerScratchDir, "program")

	switch phase {
	case PhaseSingleFile:
		src := path.Join(ContainerWorkspaceDir, filterSuffix(files, ".c")[0].Path)
		return &Plan{
			Compile: []Step{{
				Args: []string{"gcc", src, "-o", exe},
				Dir:  ContainerWorkspaceDir,
			}},
			Run: Step{Args: []string{exe}, Dir: ContainerScratchDir},
		}, nil

	case PhaseObjects:
		cFiles := filterSuffix(files, ".c")
		includeDirs := collectIncludeDirs(files)

		var steps []Step
		var objects []string
		for _, f := range cFiles {
			obj := path.Join(ContainerScratchDir, objectName(f.Path))
			args := []string{"gcc", "-c", path.Join(ContainerWorkspaceDir, f.Path)}
			for _, dir := range includeDirs {
				args = append(args, "-I", dir)
			}
			args = append(args, "-o", obj)
			steps = append(steps, Step{Args: args, Dir: ContainerWorkspaceDir})
			objects = append(objects, obj)
		}

		link := append([]string{"gcc"}, objects...)
		link = append(link, "-o", exe)
		steps = append(steps, Step{Args: link, Dir: ContainerScratchDir})

		return &Plan{
			Compile: steps,
			Run:     Step{Args: []string{exe}, Dir: ContainerScratchDir},
		}, nil
	}

	return nil, structuralf("unknown c phase %q", phase)
}

func (r *cRuntime) WaitHints() WaitHints {
	// scanf reports EOF through its return value, not stderr, so the
	// detector has to rely on prompts and idle timing for C.
	return WaitHints{}
}

// collectIncludeDirs returns the container path of every folder containing
// a source or header, so includes resolve regardless of project layout.
func collectIncludeDirs(files []models.SourceFile) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		dir := path.Dir(f.Path)
		if dir == "." {
			dir = ""
		}
		full := path.Join(ContainerWorkspaceDir, dir)
		if !seen[full] {
			seen[full] = true
			dirs = append(dirs, full)
		}
	}
	return dirs
}

// objectName flattens a source path into a unique object file name
// (src/util.c -> src_util.o).
func objectName(srcPath string) string {
	flat := strings.ReplaceAll(srcPath, "/", "_")
	return strings.TrimSuffix(flat, ".c") + ".o"
}
