package validation

import (
	"regexp"
	"strconv"
	"strings"
)

// Build output parsers. Each parser is a pure text-pattern decomposition:
// every recognized diagnostic line yields one BuildError, unrecognized lines
// are ignored. Keeping them free of side effects lets them be tested against
// captured tool output directly.

var (
	// pkg/file.go:12:34: message  (column optional)
	goErrRe = regexp.MustCompile(`^(.+\.go):(\d+)(?::\d+)?:\s*(.+)$`)
	// src/app.ts(12,3): error TS2304: message
	tscErrRe = regexp.MustCompile(`^(.+?)\((\d+),\d+\):\s*(error|warning)\s+(TS\d+):\s*(.+)$`)
	// Program.cs(12,3): error CS0246: message
	dotnetErrRe = regexp.MustCompile(`^(.*?)\((\d+),\d+\):\s*(error|warning)\s+([A-Z]+\d+):\s*(.+?)(?:\s+\[.*\])?$`)
	// error[E0425]: message
	cargoErrRe = regexp.MustCompile(`^error(?:\[(E\d+)\])?:\s*(.+)$`)
	// --> src/main.rs:4:5
	cargoLocRe = regexp.MustCompile(`^\s*-->\s*(.+?):(\d+):\d+\s*$`)
	// [ERROR] /path/App.java:[12,8] message
	mavenErrRe = regexp.MustCompile(`^\[ERROR\]\s+(.+\.java):\[(\d+),\d+\]\s*(.+)$`)
	//   File "app.py", line 12
	pythonLocRe = regexp.MustCompile(`^\s*File "(.+)", line (\d+)`)
	pythonErrRe = regexp.MustCompile(`^(\w*Error):\s*(.+)$`)
)

// ParseBuildErrors decomposes raw build output into structured errors for the
// given tool family.
func ParseBuildErrors(tool, output string) []BuildError {
	switch tool {
	case "go":
		return parseGoBuildErrors(output)
	case "npm", "tsc":
		return parseTscErrors(output)
	case "cargo":
		return parseCargoErrors(output)
	case "dotnet", "msbuild":
		return parseDotnetErrors(output)
	case "maven", "gradle":
		return parseMavenErrors(output)
	case "python":
		return parsePythonErrors(output)
	default:
		// Unknown tools get the generic "error:" sweep.
		return parseGenericErrors(output)
	}
}

func parseGoBuildErrors(output string) []BuildError {
	var errs []BuildError
	for _, line := range strings.Split(output, "\n") {
		m := goErrRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		errs = append(errs, BuildError{
			Message:  m[3],
			File:     m[1],
			Line:     lineNo,
			Severity: SeverityError,
			Category: categorizeMessage(m[3]),
		})
	}
	return errs
}

func parseTscErrors(output string) []BuildError {
	var errs []BuildError
	for _, line := range strings.Split(output, "\n") {
		m := tscErrRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		sev := SeverityError
		if m[3] == "warning" {
			sev = SeverityWarning
		}
		errs = append(errs, BuildError{
			Code:     m[4],
			Message:  m[5],
			File:     m[1],
			Line:     lineNo,
			Severity: sev,
			Category: categorizeTsCode(m[4], m[5]),
		})
	}
	return errs
}

func parseDotnetErrors(output string) []BuildError {
	var errs []BuildError
	seen := map[string]bool{}
	for _, line := range strings.Split(output, "\n") {
		m := dotnetErrRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		sev := SeverityError
		if m[3] == "warning" {
			sev = SeverityWarning
		}
		err := BuildError{
			Code:     m[4],
			Message:  m[5],
			File:     m[1],
			Line:     lineNo,
			Severity: sev,
			Category: categorizeCsCode(m[4], m[5]),
		}
		// MSBuild repeats diagnostics once per target; report each once.
		key := err.Code + "|" + err.File + "|" + strconv.Itoa(err.Line) + "|" + err.Message
		if !seen[key] {
			seen[key] = true
			errs = append(errs, err)
		}
	}
	return errs
}

func parseCargoErrors(output string) []BuildError {
	var errs []BuildError
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		m := cargoErrRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		err := BuildError{
			Code:     m[1],
			Message:  m[2],
			Severity: SeverityError,
			Category: categorizeMessage(m[2]),
		}
		// Location follows on the next "-->" line.
		for j := i + 1; j < len(lines) && j <= i+3; j++ {
			if loc := cargoLocRe.FindStringSubmatch(lines[j]); loc != nil {
				err.File = loc[1]
				err.Line, _ = strconv.Atoi(loc[2])
				break
			}
		}
		errs = append(errs, err)
	}
	return errs
}

func parseMavenErrors(output string) []BuildError {
	var errs []BuildError
	for _, line := range strings.Split(output, "\n") {
		m := mavenErrRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		errs = append(errs, BuildError{
			Message:  m[3],
			File:     m[1],
			Line:     lineNo,
			Severity: SeverityError,
			Category: categorizeMessage(m[3]),
		})
	}
	return errs
}

func parsePythonErrors(output string) []BuildError {
	var errs []BuildError
	var lastFile string
	var lastLine int
	for _, line := range strings.Split(output, "\n") {
		if m := pythonLocRe.FindStringSubmatch(line); m != nil {
			lastFile = m[1]
			lastLine, _ = strconv.Atoi(m[2])
			continue
		}
		if m := pythonErrRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			cat := CategoryRuntime
			if m[1] == "SyntaxError" || m[1] == "IndentationError" {
				cat = CategorySyntax
			} else if m[1] == "ImportError" || m[1] == "ModuleNotFoundError" {
				cat = CategoryMissingDep
			}
			errs = append(errs, BuildError{
				Code:     m[1],
				Message:  m[2],
				File:     lastFile,
				Line:     lastLine,
				Severity: SeverityError,
				Category: cat,
			})
			lastFile, lastLine = "", 0
		}
	}
	return errs
}

func parseGenericErrors(output string) []BuildError {
	var errs []BuildError
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if idx := strings.Index(lower, "error:"); idx != -1 {
			msg := strings.TrimSpace(trimmed[idx+len("error:"):])
			if msg == "" {
				continue
			}
			errs = append(errs, BuildError{
				Message:  msg,
				Severity: SeverityError,
				Category: categorizeMessage(msg),
			})
		}
	}
	return errs
}

func categorizeMessage(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "syntax error"), strings.Contains(lower, "unexpected"),
		strings.Contains(lower, "expected"):
		return CategorySyntax
	case strings.Contains(lower, "cannot find package"), strings.Contains(lower, "no required module"),
		strings.Contains(lower, "cannot find module"), strings.Contains(lower, "unresolved import"),
		strings.Contains(lower, "package") && strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "missing go.sum entry"):
		return CategoryMissingDep
	case strings.Contains(lower, "undefined"), strings.Contains(lower, "cannot use"),
		strings.Contains(lower, "mismatched types"), strings.Contains(lower, "incompatible type"),
		strings.Contains(lower, "cannot convert"), strings.Contains(lower, "not found in scope"):
		return CategoryType
	case strings.Contains(lower, "config"), strings.Contains(lower, "invalid flag"),
		strings.Contains(lower, "unknown flag"):
		return CategoryConfiguration
	default:
		return CategoryOther
	}
}

func categorizeTsCode(code, msg string) ErrorCategory {
	switch code {
	case "TS1005", "TS1002", "TS1128", "TS1109":
		return CategorySyntax
	case "TS2304", "TS2339", "TS2345", "TS2322":
		return CategoryType
	case "TS2307":
		return CategoryMissingDep
	default:
		return categorizeMessage(msg)
	}
}

func categorizeCsCode(code, msg string) ErrorCategory {
	switch code {
	case "CS1002", "CS1513", "CS1514", "CS1003":
		return CategorySyntax
	case "CS0029", "CS0266", "CS1503", "CS0103":
		return CategoryType
	case "CS0246", "CS0234":
		return CategoryMissingDep
	default:
		return categorizeMessage(msg)
	}
}
