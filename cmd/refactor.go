package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/refactor"
)

// refactorCmd represents the refactor command
var refactorCmd = &cobra.Command{
	Use:   "refactor <file> [<file> ...]",
	Short: "Analyze a multi-file changeset and show its application order",
	Long: `Analyze cross-file references between the given files and print the
order the pipeline would apply changes in, dependencies first. Circular
dependency groups are reported and fall back to the order the files were
listed in.

Examples:
  opencopilot refactor src/user.ts src/api.ts src/db.ts`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _, err := loadConfig()
		if err != nil {
			return err
		}
		logger := cmdLogger()
		tracker := changetracker.NewTracker(root, logger)
		coordinator := refactor.NewCoordinator(tracker, nil, logger)

		graph, err := coordinator.AnalyzeDependencies(args)
		if err != nil {
			return fmt.Errorf("dependency analysis failed: %w", err)
		}

		changes := make([]changetracker.FileChange, 0, len(args))
		for _, path := range args {
			changes = append(changes, changetracker.FileChange{Kind: changetracker.ChangeModified, Path: path})
		}
		ordered := coordinator.PlanChangeOrder(changes, graph)

		fmt.Println("📋 Application order:")
		for i, change := range ordered {
			fmt.Printf("  %d. %s\n", i+1, change.Path)
		}
		if len(graph.CircularDependencies) > 0 {
			fmt.Printf("\n⚠️  %d circular dependency group(s):\n", len(graph.CircularDependencies))
			for _, cycle := range graph.CircularDependencies {
				fmt.Printf("  - %s\n", strings.Join(cycle, " -> "))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refactorCmd)
}
