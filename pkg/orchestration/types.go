package orchestration

import (
	"time"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/validation"
)

// PlanStep is one unit of planned work. The pipeline mutates only Completed,
// and only after a verified success.
type PlanStep struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Details   string `json:"details"`
	Completed bool   `json:"completed"`
}

// ActionKind classifies an intended change.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionModify ActionKind = "modify"
	ActionDelete ActionKind = "delete"
)

// GenerationRequest carries the payload handed to the generation collaborator
// for one action: free text plus optional anchors and named parameters.
type GenerationRequest struct {
	Prompt       string            `json:"prompt"`
	BeforeAnchor string            `json:"before_anchor,omitempty"`
	AfterAnchor  string            `json:"after_anchor,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
}

// CodeAction is one atomic intended change, created by analysis, consumed by
// application, discarded after use.
type CodeAction struct {
	Kind        ActionKind        `json:"kind"`
	FilePath    string            `json:"file_path"`
	Description string            `json:"description"`
	Request     GenerationRequest `json:"request"`
}

// StepActionPlan is the analysis outcome for one step: what to change, in
// what order, and whether tests are expected.
type StepActionPlan struct {
	Actions       []CodeAction `json:"actions"`
	Prerequisites []string     `json:"prerequisites,omitempty"`
	RequiresTests bool         `json:"requires_tests"`
	MainFileHint  string       `json:"main_file,omitempty"`
	TestFileHint  string       `json:"test_file,omitempty"`
}

// Phase is one state of the step execution machine.
type Phase string

const (
	PhaseAnalyzing   Phase = "analyzing"
	PhaseGenerating  Phase = "generating"
	PhaseBuilding    Phase = "building"
	PhaseTesting     Phase = "testing"
	PhaseSucceeded   Phase = "succeeded"
	PhaseFailed      Phase = "failed"
	PhaseRollingBack Phase = "rolling_back"
)

// ExecutionMetrics accumulate across every retry within one call to
// ExecuteStepWithRetry and are reported regardless of the final outcome.
type ExecutionMetrics struct {
	FilesChanged  int
	BuildAttempts int
	TestAttempts  int
	// GenerationCalls is the number of model invocations, counting fix
	// attempts that produced no usable fix.
	GenerationCalls int
	StepAttempts    int
	PhaseDurations  map[Phase]time.Duration
}

func newExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{PhaseDurations: map[Phase]time.Duration{}}
}

func (m *ExecutionMetrics) addPhase(phase Phase, d time.Duration) {
	m.PhaseDurations[phase] += d
}

// StepExecutionResult is the immutable outcome of one step. When Success is
// true, BuildResult and TestResult both report success (or were skipped as
// undetermined when no tool exists and escalation is off).
type StepExecutionResult struct {
	StepID      string
	Success     bool
	Err         error
	FailedAt    Phase
	Changes     []changetracker.FileChange
	BuildResult *validation.BuildResult
	TestResult  *validation.TestValidationResult
	Metrics     *ExecutionMetrics
}
