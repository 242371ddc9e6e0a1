package language

import (
	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/models"
)

type pythonRuntime struct {
	cfg *config.PythonConfig
}

func newPython(cfg *config.PythonConfig) *pythonRuntime {
	return &pythonRuntime{cfg: cfg}
}

func (r *pythonRuntime) Name() models.Language {
	return models.LangPython
}

func (r *pythonRuntime) Backend() BackendKind {
	return BackendProcess
}

// Python programs are always single-file: the entry file is the whole
// program, any other files are just importable modules in the same dir.
func (r *pythonRuntime) DetectPhase(files []models.SourceFile, entryFile string) (Phase, error) {
	return PhaseSingleFile, nil
}

func (r *pythonRuntime) Plan(phase Phase, files []models.SourceFile, entryFile, workDir string) (*Plan, error) {
	entry := entryFile
	if entry == "" {
		entry = files[0].Path
	}
	return &Plan{
		Run: Step{
			Args: []string{r.cfg.Command, "-u", entry},
			Dir:  workDir,
		},
	}, nil
}

func (r *pythonRuntime) WaitHints() WaitHints {
	return WaitHints{
		// input() raises this when stdin is exhausted mid-read.
		EOFMarkers: []string{"EOFError: EOF when reading a line", "EOFError"},
	}
}
