package validation

import "time"

// ErrorCategory is a coarse classification of a build error, used to steer
// fix generation.
type ErrorCategory string

const (
	CategorySyntax        ErrorCategory = "syntax"
	CategoryType          ErrorCategory = "type"
	CategoryMissingDep    ErrorCategory = "missing_dependency"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryRuntime       ErrorCategory = "runtime"
	CategoryOther         ErrorCategory = "other"
)

// Severity of a diagnostic line.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// BuildError is one structured diagnostic parsed from raw tool output. It
// lives for a single verification attempt and is never persisted.
type BuildError struct {
	Code     string
	Message  string
	File     string
	Line     int
	Severity Severity
	Category ErrorCategory
}

// CodeFix is a proposed remediation for one file: replace Original with
// Replacement. Generated, applied, then discarded.
type CodeFix struct {
	FilePath    string  `json:"file_path"`
	Original    string  `json:"original"`
	Replacement string  `json:"replacement"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// BuildResult is the outcome of build verification. Determined is false when
// no build tool could be detected; the build then neither succeeded nor
// failed and Attempts is zero.
type BuildResult struct {
	Determined   bool
	Succeeded    bool
	Tool         string
	Output       string
	Errors       []BuildError
	FixesApplied []CodeFix
	Attempts     int
	Duration     time.Duration
}

// TestFailureKind distinguishes why a test failed.
type TestFailureKind string

const (
	FailureAssertion TestFailureKind = "assertion"
	FailureException TestFailureKind = "exception"
	FailureTimeout   TestFailureKind = "timeout"
	FailureSetup     TestFailureKind = "setup"
	FailureUnknown   TestFailureKind = "unknown"
)

// TestFailure is one structured failing test parsed from runner output.
type TestFailure struct {
	Name    string
	Message string
	File    string
	Line    int
	Kind    TestFailureKind
}

// TestFix is a proposed remediation for one failing test.
type TestFix struct {
	FilePath    string `json:"file_path"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Description string `json:"description,omitempty"`
}

// CoverageReport carries coverage when the underlying tool reports it.
// Absence of coverage is not a failure.
type CoverageReport struct {
	Percent float64
	Raw     string
}

// TestValidationResult is the outcome of test validation.
type TestValidationResult struct {
	Determined   bool
	AllPassed    bool
	Passed       int
	Failed       int
	Skipped      int
	Failures     []TestFailure
	FixesApplied []TestFix
	Attempts     int
	Duration     time.Duration
	Output       string
	Coverage     *CoverageReport
}
