package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ronnygunawan/opencopilot/pkg/config"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

// toolCommands maps a detected tool name to its invocation.
var toolCommands = map[string]struct {
	command string
	args    []string
}{
	"go":          {"go", []string{"build", "./..."}},
	"npm":         {"npm", []string{"run", "build"}},
	"cargo":       {"cargo", []string{"build"}},
	"maven":       {"mvn", []string{"-B", "compile"}},
	"gradle":      {"gradle", []string{"build", "-x", "test"}},
	"dotnet":      {"dotnet", []string{"build"}},
	"make":        {"make", nil},
	"python":      {"python", []string{"-m", "compileall", "-q", "."}},
	"go test":     {"go", []string{"test", "./..."}},
	"jest":        {"npx", []string{"jest", "--ci"}},
	"vitest":      {"npx", []string{"vitest", "run"}},
	"pytest":      {"python", []string{"-m", "pytest", "-q"}},
	"cargo test":  {"cargo", []string{"test"}},
	"dotnet test": {"dotnet", []string{"test", "--no-build"}},
}

var languageByExt = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".rs":    "rust",
	".cs":    "csharp",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
}

// ContextBuilder inspects a working tree and produces a RepositoryContext.
// Marker priority and the ignore list come from configuration so detection
// order is visible, not a hidden default.
type ContextBuilder struct {
	cfg    *config.Config
	logger *utils.Logger
}

// NewContextBuilder creates a builder using the given configuration.
func NewContextBuilder(cfg *config.Config, logger *utils.Logger) *ContextBuilder {
	return &ContextBuilder{cfg: cfg, logger: logger}
}

// Build scans root and returns an immutable snapshot of what was found. An
// empty tree yields an empty-but-valid context; downstream components treat a
// missing build tool as "skip verification, report undetermined".
func (b *ContextBuilder) Build(root string) (*RepositoryContext, error) {
	files, err := b.listFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository files: %w", err)
	}

	rc := &RepositoryContext{
		Root:     root,
		Files:    files,
		Metadata: map[string]string{},
	}
	if len(files) == 0 {
		return rc, nil
	}

	rc.Language = detectLanguage(files)
	rc.BuildTool = detectTool(b.cfg.Workspace.BuildMarkers, files)
	rc.TestFramework = detectTool(b.cfg.Workspace.TestMarkers, testScopedFiles(files))
	rc.Metadata["file_count"] = fmt.Sprintf("%d", len(files))
	if rc.Language != "" {
		rc.Metadata["language_display"] = utils.Capitalize(rc.Language)
	}

	if b.logger != nil {
		b.logger.Logf("Repository context: language=%s build=%v test=%v files=%d",
			rc.Language, toolName(rc.BuildTool), toolName(rc.TestFramework), len(files))
	}
	return rc, nil
}

func toolName(t *ToolInfo) string {
	if t == nil {
		return "<none>"
	}
	return t.Name
}

// listFiles walks root in discovery order, skipping configured ignore
// directories and anything matched by the repository's .gitignore.
func (b *ContextBuilder) listFiles(root string) ([]string, error) {
	ignored := make(map[string]bool, len(b.cfg.Workspace.IgnoreDirs))
	for _, dir := range b.cfg.Workspace.IgnoreDirs {
		ignored[dir] = true
	}

	var gi *ignore.GitIgnore
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		gi = ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if ignored[d.Name()] {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

// detectTool returns the first marker rule matched by any file in the set.
// Exactly one tool wins; priority is the rule order.
func detectTool(rules []config.MarkerRule, files []string) *ToolInfo {
	for _, rule := range rules {
		for _, f := range files {
			base := filepath.Base(f)
			matched := base == rule.Marker
			if !matched && strings.ContainsAny(rule.Marker, "*?[") {
				if ok, _ := filepath.Match(rule.Marker, base); ok {
					matched = true
				}
			}
			if matched {
				info := &ToolInfo{Name: rule.Tool, Marker: f}
				if cmd, ok := toolCommands[rule.Tool]; ok {
					info.Command = cmd.command
					info.Args = cmd.args
				}
				return info
			}
		}
	}
	return nil
}

// testScopedFiles narrows the file set to test-related paths plus top-level
// marker files, so test framework detection is not fooled by source trees.
func testScopedFiles(files []string) []string {
	var scoped []string
	for _, f := range files {
		base := filepath.Base(f)
		lower := strings.ToLower(f)
		switch {
		case !strings.Contains(f, "/"):
			scoped = append(scoped, f)
		case strings.Contains(lower, "test") || strings.Contains(lower, "spec"):
			scoped = append(scoped, f)
		case strings.HasPrefix(base, "jest.config") || strings.HasPrefix(base, "vitest.config"):
			scoped = append(scoped, f)
		}
	}
	return scoped
}

// detectLanguage picks the most common recognized source extension.
func detectLanguage(files []string) string {
	counts := map[string]int{}
	for _, f := range files {
		if lang, ok := languageByExt[strings.ToLower(filepath.Ext(f))]; ok {
			counts[lang]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	langs := make([]string, 0, len(counts))
	for lang := range counts {
		langs = append(langs, lang)
	}
	// Stable winner when counts tie.
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})
	return langs[0]
}
