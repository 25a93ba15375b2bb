package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/executor"
	"github.com/ronnygunawan/opencopilot/pkg/llm"
	"github.com/ronnygunawan/opencopilot/pkg/orchestration"
	"github.com/ronnygunawan/opencopilot/pkg/progress"
)

var (
	stepDetails      string
	stepConcurrency  int
	stepProgressAddr string
	stepShowDiffs    bool
)

// stepCmd represents the step command
var stepCmd = &cobra.Command{
	Use:   "step \"step title\" [\"another step\" ...]",
	Short: "Execute plan steps through the full verification pipeline",
	Long: `Execute one or more plan steps. Each step runs its own pipeline:
analyze the repository, generate the file changes, verify the build, run the
tests. A step that cannot be made to pass is rolled back completely.

Examples:
  opencopilot step "Add pagination to the user list endpoint"
  opencopilot step "Extract shared validation" --details "move into pkg/validate"
  opencopilot step "Step A" "Step B" --concurrency 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := cmdLogger()

		var sink progress.Sink = progress.NopSink{}
		if stepProgressAddr != "" {
			hub := progress.NewHub(logger)
			sink = hub
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/ws", hub)
				if err := http.ListenAndServe(stepProgressAddr, mux); err != nil {
					logger.Logf("Progress server stopped: %v", err)
				}
			}()
			fmt.Printf("📡 Progress events on ws://%s/ws\n", stepProgressAddr)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		steps := make([]*orchestration.PlanStep, 0, len(args))
		for i, title := range args {
			steps = append(steps, &orchestration.PlanStep{
				ID:      fmt.Sprintf("step-%d", i+1),
				Title:   title,
				Details: stepDetails,
			})
		}

		runner := orchestration.NewPlanRunner(root, cfg,
			executor.NewShellRunner(cfg.CommandTimeout(), logger),
			llm.NewOllamaGenerator(cfg.Model, cfg.GenerationTimeout()),
			sink, logger)
		runner.Concurrency = stepConcurrency

		results, runErr := runner.Run(ctx, steps)
		failed := 0
		for _, result := range results {
			printStepResult(result)
			if !result.Success {
				failed++
			}
		}
		if runErr != nil {
			return runErr
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d step(s) failed", failed, len(results))
		}
		return nil
	},
}

func printStepResult(result *orchestration.StepExecutionResult) {
	if result.Success {
		fmt.Printf("✅ %s succeeded (%d file(s) changed, %d build attempt(s), %d test attempt(s))\n",
			result.StepID, result.Metrics.FilesChanged, result.Metrics.BuildAttempts, result.Metrics.TestAttempts)
	} else {
		fmt.Printf("❌ %s failed in %s: %v\n", result.StepID, result.FailedAt, result.Err)
	}
	if result.BuildResult != nil && len(result.BuildResult.Errors) > 0 {
		fmt.Printf("   Build errors:\n")
		for _, e := range result.BuildResult.Errors {
			fmt.Printf("   - %s\n", strings.TrimSpace(e.Message))
		}
	}
	if result.TestResult != nil && len(result.TestResult.Failures) > 0 {
		fmt.Printf("   Failing tests:\n")
		for _, f := range result.TestResult.Failures {
			fmt.Printf("   - %s\n", f.Name)
		}
	}
	if stepShowDiffs {
		for _, change := range result.Changes {
			fmt.Print(changetracker.DiffForChange(change))
		}
	}
}

func init() {
	rootCmd.AddCommand(stepCmd)
	stepCmd.Flags().StringVar(&stepDetails, "details", "", "Additional instructions applied to every step")
	stepCmd.Flags().IntVar(&stepConcurrency, "concurrency", 1, "How many steps may run at once")
	stepCmd.Flags().StringVar(&stepProgressAddr, "progress-addr", "", "Serve progress events over websocket on this address (e.g. :8077)")
	stepCmd.Flags().BoolVar(&stepShowDiffs, "diff", false, "Print a diff of every change the step made")
}
