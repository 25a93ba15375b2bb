package refactor

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Static reference extraction. Files are opaque text; references are found by
// ecosystem-specific patterns and resolved against the candidate file set,
// never by parsing a language grammar.

var (
	// TS/JS
	reFrom = regexp.MustCompile(`(?m)from\s+['"]([^'"]+)['"]`)
	reReq  = regexp.MustCompile(`(?m)require\(\s*['"]([^'"]+)['"]\s*\)`)
	// Python
	rePyFrom = regexp.MustCompile(`(?m)^\s*from\s+([\w\.]+)\s+import\s+`)
	rePyImp  = regexp.MustCompile(`(?m)^\s*import\s+([\w\.]+)`)
	// Java/Kotlin/Scala/C#/Swift
	reImpGeneric = regexp.MustCompile(`(?m)^\s*(?:import|using)\s+(?:static\s+)?([A-Za-z0-9_\.]+)`)
	// PHP
	rePhpReq = regexp.MustCompile(`(?m)(?:require|include|require_once|include_once)\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	// Ruby
	reRbReqRel = regexp.MustCompile(`(?m)^\s*require_relative\s+['"]([^'"]+)['"]`)
	// Rust
	reRsMod = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?mod\s+([A-Za-z0-9_]+)\s*;`)
)

// FileReader loads a file's content by repository-relative path.
type FileReader func(path string) (string, error)

// AnalyzeDependencies builds a dependency graph over the given files. Each
// file is scanned for references; references resolving to another file in the
// set become edges. Cycles are detected and recorded on the graph.
func AnalyzeDependencies(files []string, read FileReader) (*DependencyGraph, error) {
	cleaned := make([]string, len(files))
	set := make(map[string]bool, len(files))
	for i, f := range files {
		cleaned[i] = filepath.ToSlash(filepath.Clean(f))
		set[cleaned[i]] = true
	}
	g := NewDependencyGraph(cleaned)

	for _, path := range cleaned {
		content, err := read(path)
		if err != nil {
			// A listed file that cannot be read contributes no edges.
			continue
		}
		for _, target := range extractReferences(path, content, set) {
			g.AddEdge(path, target)
		}
	}

	g.DetectCycles()
	return g, nil
}

// extractReferences returns the files in set that path's content references.
func extractReferences(path, content string, set map[string]bool) []string {
	dir := filepath.ToSlash(filepath.Dir(path))
	ext := strings.ToLower(filepath.Ext(path))

	var targets []string
	add := func(target string) {
		if target != "" && set[target] {
			targets = append(targets, target)
		}
	}

	switch ext {
	case ".ts", ".tsx", ".js", ".jsx":
		specs := append(reFrom.FindAllStringSubmatch(content, -1), reReq.FindAllStringSubmatch(content, -1)...)
		for _, m := range specs {
			add(resolveRelative(dir, m[1], set,
				".ts", ".tsx", ".js", ".jsx",
				"/index.ts", "/index.tsx", "/index.js", "/index.jsx"))
		}
	case ".py":
		mods := append(rePyFrom.FindAllStringSubmatch(content, -1), rePyImp.FindAllStringSubmatch(content, -1)...)
		for _, m := range mods {
			parts := strings.Split(m[1], ".")
			name := parts[len(parts)-1]
			add(joinIfPresent(dir, name+".py", set))
			add(joinIfPresent(dir, name+"/__init__.py", set))
		}
	case ".rs":
		for _, m := range reRsMod.FindAllStringSubmatch(content, -1) {
			add(joinIfPresent(dir, m[1]+".rs", set))
			add(joinIfPresent(dir, m[1]+"/mod.rs", set))
		}
	case ".rb":
		for _, m := range reRbReqRel.FindAllStringSubmatch(content, -1) {
			spec := m[1]
			add(resolveRelative(dir, "./"+strings.TrimPrefix(spec, "./"), set, ".rb", ""))
		}
	case ".php":
		for _, m := range rePhpReq.FindAllStringSubmatch(content, -1) {
			add(resolveRelative(dir, m[1], set, "", ".php", "/index.php"))
		}
	case ".java", ".kt", ".scala", ".cs", ".swift":
		// Namespaced imports resolve by matching the trailing segment against
		// file base names anywhere in the set.
		for _, m := range reImpGeneric.FindAllStringSubmatch(content, -1) {
			parts := strings.Split(m[1], ".")
			tail := parts[len(parts)-1]
			for candidate := range set {
				cBase := strings.TrimSuffix(filepath.Base(candidate), filepath.Ext(candidate))
				if strings.EqualFold(cBase, tail) {
					add(candidate)
				}
			}
		}
	}
	return targets
}

// resolveRelative resolves a relative reference like ./util against the file
// set, trying each suffix in order. Non-relative specs resolve to nothing.
func resolveRelative(dir, spec string, set map[string]bool, suffixes ...string) string {
	if !strings.HasPrefix(spec, ".") {
		return ""
	}
	p := filepath.ToSlash(filepath.Clean(filepath.Join(dir, spec)))
	for _, suffix := range suffixes {
		candidate := p + suffix
		if set[filepath.ToSlash(filepath.Clean(candidate))] {
			return filepath.ToSlash(filepath.Clean(candidate))
		}
	}
	return ""
}

func joinIfPresent(dir, rel string, set map[string]bool) string {
	candidate := filepath.ToSlash(filepath.Clean(filepath.Join(dir, rel)))
	if set[candidate] {
		return candidate
	}
	return ""
}
