package language

import (
	"path"
	"regexp"
	"strings"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/models"
)

var (
	javaPackageRe = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)
	javaMainRe    = regexp.MustCompile(`public\s+static\s+void\s+main\s*\(`)
)

type javaRuntime struct {
	cfg *config.JavaConfig
}

func newJava(cfg *config.JavaConfig) *javaRuntime {
	return &javaRuntime{cfg: cfg}
}

func (r *javaRuntime) Name() models.Language {
	return models.LangJava
}

func (r *javaRuntime) Backend() BackendKind {
	return BackendProcess
}

// DetectPhase classifies a Java submission:
//
//   - packaged: any file declares a package or sits in a subfolder; exactly
//     one file must define a main method, anything else is structural.
//   - single file: exactly one .java file named Main.java.
//   - multi file: several .java files with no package structure; Main.java
//     must exist because it is the fixed entry point.
func (r *javaRuntime) DetectPhase(files []models.SourceFile, entryFile string) (Phase, error) {
	javaFiles := filterSuffix(files, ".java")
	if len(javaFiles) == 0 {
		return "", structuralf("no .java files in submission")
	}

	packaged := false
	for _, f := range javaFiles {
		if strings.Contains(f.Path, "/") || javaPackageRe.MatchString(f.Content) {
			packaged = true
			break
		}
	}

	if packaged {
		mains := 0
		for _, f := range javaFiles {
			if javaMainRe.MatchString(f.Content) {
				mains++
			}
		}
		switch {
		case mains == 0:
			return "", structuralf("no main method: exactly one class must define public static void main(String[] args)")
		case mains > 1:
			return "", structuralf("multiple main methods: %d classes define public static void main, exactly one is required", mains)
		}
		return PhasePackaged, nil
	}

	if len(javaFiles) == 1 && path.Base(javaFiles[0].Path) == "Main.java" {
		return PhaseSingleFile, nil
	}

	hasMain := false
	for _, f := range javaFiles {
		if path.Base(f.Path) == "Main.java" {
			hasMain = true
			break
		}
	}
	if !hasMain {
		return "", structuralf("Main.java not found: multi-file Java projects without packages must include a Main.java entry point")
	}
	return PhaseMultiFile, nil
}

func (r *javaRuntime) Plan(phase Phase, files []models.SourceFile, entryFile, workDir string) (*Plan, error) {
	javaFiles := filterSuffix(files, ".java")

	switch phase {
	case PhaseSingleFile, PhaseMultiFile:
		compile := []string{r.cfg.Javac}
		for _, f := range javaFiles {
			compile = append(compile, f.Path)
		}
		return &Plan{
			Compile:  []Step{{Args: compile, Dir: workDir}},
			Run:      Step{Args: []string{r.cfg.Java, "-cp", ".", "Main"}, Dir: workDir},
			Terminal: r.cfg.JavaTerminal(),
		}, nil

	case PhasePackaged:
		// Folder structure must mirror package declarations. A mismatch is
		// reported here with the expected location; compiling anyway would
		// surface a much less helpful javac diagnostic.
		entryClass := ""
		for _, f := range javaFiles {
			pkg := ""
			if m := javaPackageRe.FindStringSubmatch(f.Content); m != nil {
				pkg = m[1]
			}
			expectedDir := strings.ReplaceAll(pkg, ".", "/")
			actualDir := path.Dir(f.Path)
			if actualDir == "." {
				actualDir = ""
			}
			if expectedDir != actualDir {
				return nil, structuralf("package mismatch: %s declares package %q and must be located at %q, found at %q",
					f.Path, pkg, path.Join(expectedDir, path.Base(f.Path)), f.Path)
			}
			if javaMainRe.MatchString(f.Content) {
				className := strings.TrimSuffix(path.Base(f.Path), ".java")
				if pkg != "" {
					entryClass = pkg + "." + className
				} else {
					entryClass = className
				}
			}
		}
		if entryClass == "" {
			return nil, structuralf("no main method: exactly one class must define public static void main(String[] args)")
		}

		compile := []string{r.cfg.Javac, "-d", "classes"}
		for _, f := range javaFiles {
			compile = append(compile, f.Path)
		}
		return &Plan{
			Compile:  []Step{{Args: compile, Dir: workDir}},
			Run:      Step{Args: []string{r.cfg.Java, "-cp", "classes", entryClass}, Dir: workDir},
			Terminal: r.cfg.JavaTerminal(),
		}, nil
	}

	return nil, structuralf("unknown java phase %q", phase)
}

func (r *javaRuntime) WaitHints() WaitHints {
	return WaitHints{
		// Scanner.nextLine on an exhausted stream.
		EOFMarkers: []string{"java.util.NoSuchElementException"},
	}
}

func filterSuffix(files []models.SourceFile, suffix string) []models.SourceFile {
	out := make([]models.SourceFile, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Path, suffix) {
			out = append(out, f)
		}
	}
	return out
}
