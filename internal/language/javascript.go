package language

import (
	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/models"
)

type javaScriptRuntime struct {
	cfg *config.JavaScriptConfig
}

func newJavaScript(cfg *config.JavaScriptConfig) *javaScriptRuntime {
	return &javaScriptRuntime{cfg: cfg}
}

func (r *javaScriptRuntime) Name() models.Language {
	return models.LangJavaScript
}

func (r *javaScriptRuntime) Backend() BackendKind {
	if r.cfg.Backend == "browser" {
		return BackendClient
	}
	return BackendProcess
}

// JavaScript programs are always single-file, same as Python.
func (r *javaScriptRuntime) DetectPhase(files []models.SourceFile, entryFile string) (Phase, error) {
	return PhaseSingleFile, nil
}

func (r *javaScriptRuntime) Plan(phase Phase, files []models.SourceFile, entryFile, workDir string) (*Plan, error) {
	entry := entryFile
	if entry == "" {
		entry = files[0].Path
	}
	return &Plan{
		Run: Step{
			Args: []string{r.cfg.Command, entry},
			Dir:  workDir,
		},
	}, nil
}

func (r *javaScriptRuntime) WaitHints() WaitHints {
	return WaitHints{
		// readline/prompt libraries surface a closed stdin this way.
		EOFMarkers: []string{"Error: EOF"},
	}
}
