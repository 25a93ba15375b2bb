package validation

import (
	"regexp"
	"strconv"
	"strings"
)

// Test output parsers, one per framework family. Pure text decomposition like
// the build parsers.

var (
	goFailRe     = regexp.MustCompile(`^--- FAIL: (\S+)`)
	goPassRe     = regexp.MustCompile(`^--- PASS: (\S+)`)
	goSkipRe     = regexp.MustCompile(`^--- SKIP: (\S+)`)
	goLocRe      = regexp.MustCompile(`^\s+(\S+\.go):(\d+):\s*(.*)$`)
	goCoverRe    = regexp.MustCompile(`coverage:\s+([\d.]+)% of statements`)
	pytestFailRe = regexp.MustCompile(`^FAILED\s+(\S+?)(?:::(\S+))?\s+-\s+(.+)$`)
	pytestSumRe  = regexp.MustCompile(`(\d+) (passed|failed|skipped|error)`)
	jestSumRe    = regexp.MustCompile(`Tests:\s+(.+)$`)
	jestPartRe   = regexp.MustCompile(`(\d+) (failed|passed|skipped|todo)`)
	jestFailRe   = regexp.MustCompile(`^\s*[✕×]\s+(.+?)(?:\s+\(\d+\s*m?s\))?$`)
	dotnetFailRe = regexp.MustCompile(`^\s*Failed\s+(\S+)(?:\s+\[.*\])?$`)
	dotnetSumRe  = regexp.MustCompile(`Failed:\s*(\d+),\s*Passed:\s*(\d+),\s*Skipped:\s*(\d+)`)
	cargoTestRe  = regexp.MustCompile(`^test (\S+) \.\.\. (ok|FAILED|ignored)`)
)

// testCounts aggregates what a parser extracted from runner output.
type testCounts struct {
	passed, failed, skipped int
	failures                []TestFailure
	coverage                *CoverageReport
}

// parseTestOutput dispatches to the framework-specific parser.
func parseTestOutput(framework, output string) testCounts {
	switch framework {
	case "go test":
		return parseGoTestOutput(output)
	case "pytest":
		return parsePytestOutput(output)
	case "jest", "vitest":
		return parseJestOutput(output)
	case "dotnet test":
		return parseDotnetTestOutput(output)
	case "cargo test":
		return parseCargoTestOutput(output)
	default:
		return parseGoTestOutput(output)
	}
}

func parseGoTestOutput(output string) testCounts {
	var c testCounts
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		switch {
		case goPassRe.MatchString(line):
			c.passed++
		case goSkipRe.MatchString(line):
			c.skipped++
		case goFailRe.MatchString(line):
			c.failed++
			m := goFailRe.FindStringSubmatch(line)
			failure := TestFailure{Name: m[1], Kind: FailureUnknown}
			// Failure detail is indented under the FAIL line.
			for j := i + 1; j < len(lines) && j <= i+6; j++ {
				if loc := goLocRe.FindStringSubmatch(lines[j]); loc != nil {
					failure.File = loc[1]
					failure.Line, _ = strconv.Atoi(loc[2])
					failure.Message = loc[3]
					break
				}
				if strings.HasPrefix(lines[j], "---") || strings.HasPrefix(lines[j], "===") {
					break
				}
			}
			if strings.Contains(output, "panic: test timed out") {
				failure.Kind = FailureTimeout
			} else {
				failure.Kind = classifyFailureMessage(failure.Message)
			}
			c.failures = append(c.failures, failure)
		}
	}
	if m := goCoverRe.FindStringSubmatch(output); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		c.coverage = &CoverageReport{Percent: pct, Raw: m[0]}
	}
	return c
}

func parsePytestOutput(output string) testCounts {
	var c testCounts
	for _, line := range strings.Split(output, "\n") {
		if m := pytestFailRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			name := m[2]
			if name == "" {
				name = m[1]
			}
			c.failures = append(c.failures, TestFailure{
				Name:    name,
				File:    strings.SplitN(m[1], "::", 2)[0],
				Message: m[3],
				Kind:    classifyFailureMessage(m[3]),
			})
		}
	}
	for _, m := range pytestSumRe.FindAllStringSubmatch(output, -1) {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "passed":
			c.passed = n
		case "failed", "error":
			c.failed += n
		case "skipped":
			c.skipped = n
		}
	}
	if c.failed == 0 {
		c.failed = len(c.failures)
	}
	return c
}

func parseJestOutput(output string) testCounts {
	var c testCounts
	for _, line := range strings.Split(output, "\n") {
		if m := jestFailRe.FindStringSubmatch(line); m != nil {
			c.failures = append(c.failures, TestFailure{
				Name: strings.TrimSpace(m[1]),
				Kind: classifyFailureMessage(output),
			})
		}
	}
	if m := jestSumRe.FindStringSubmatch(output); m != nil {
		for _, part := range jestPartRe.FindAllStringSubmatch(m[1], -1) {
			n, _ := strconv.Atoi(part[1])
			switch part[2] {
			case "passed":
				c.passed = n
			case "failed":
				c.failed = n
			case "skipped", "todo":
				c.skipped += n
			}
		}
	}
	if c.failed == 0 {
		c.failed = len(c.failures)
	}
	return c
}

func parseDotnetTestOutput(output string) testCounts {
	var c testCounts
	for _, line := range strings.Split(output, "\n") {
		if m := dotnetFailRe.FindStringSubmatch(line); m != nil {
			c.failures = append(c.failures, TestFailure{
				Name: m[1],
				Kind: FailureUnknown,
			})
		}
	}
	if m := dotnetSumRe.FindStringSubmatch(output); m != nil {
		c.failed, _ = strconv.Atoi(m[1])
		c.passed, _ = strconv.Atoi(m[2])
		c.skipped, _ = strconv.Atoi(m[3])
	}
	// Attach messages from the "Error Message:" blocks when present.
	blocks := strings.Split(output, "Error Message:")
	for i := 1; i < len(blocks) && i-1 < len(c.failures); i++ {
		parts := strings.SplitN(blocks[i], "\n", 3)
		if len(parts) < 2 {
			continue
		}
		msg := strings.TrimSpace(parts[1])
		c.failures[i-1].Message = msg
		c.failures[i-1].Kind = classifyFailureMessage(msg)
	}
	return c
}

func parseCargoTestOutput(output string) testCounts {
	var c testCounts
	for _, line := range strings.Split(output, "\n") {
		if m := cargoTestRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			switch m[2] {
			case "ok":
				c.passed++
			case "ignored":
				c.skipped++
			case "FAILED":
				c.failed++
				c.failures = append(c.failures, TestFailure{Name: m[1], Kind: classifyFailureMessage(output)})
			}
		}
	}
	return c
}

// classifyFailureMessage distinguishes assertion mismatches, exceptions and
// timeouts so fix generation can be steered per kind.
func classifyFailureMessage(msg string) TestFailureKind {
	lower := strings.ToLower(msg)
	switch {
	case msg == "":
		return FailureUnknown
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(lower, "assert"), strings.Contains(lower, "expected"),
		strings.Contains(lower, "should be"), strings.Contains(lower, "not equal"):
		return FailureAssertion
	case strings.Contains(lower, "panic"), strings.Contains(lower, "exception"),
		strings.Contains(lower, "traceback"), strings.Contains(lower, "nil pointer"),
		strings.Contains(lower, "null reference"):
		return FailureException
	case strings.Contains(lower, "setup"), strings.Contains(lower, "fixture"),
		strings.Contains(lower, "before each"):
		return FailureSetup
	default:
		return FailureUnknown
	}
}
