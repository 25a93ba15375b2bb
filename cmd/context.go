package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ronnygunawan/opencopilot/pkg/workspace"
)

var contextShowFiles bool

// contextCmd represents the context command
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show what the pipeline knows about this repository",
	Long: `Build and print the repository context the pipeline would start from:
detected language, build tool, test framework, and the files fix prompts can
reference.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := cmdLogger()

		repoCtx, err := workspace.NewContextBuilder(cfg, logger).Build(root)
		if err != nil {
			return err
		}

		fmt.Printf("Root:           %s\n", repoCtx.Root)
		fmt.Printf("Language:       %s\n", orUnknown(repoCtx.Language))
		if repoCtx.HasBuildTool() {
			fmt.Printf("Build tool:     %s (%s, marker %s)\n", repoCtx.BuildTool.Name, commandLine(repoCtx.BuildTool), repoCtx.BuildTool.Marker)
		} else {
			fmt.Printf("Build tool:     none detected\n")
		}
		if repoCtx.HasTestFramework() {
			fmt.Printf("Test framework: %s (%s, marker %s)\n", repoCtx.TestFramework.Name, commandLine(repoCtx.TestFramework), repoCtx.TestFramework.Marker)
		} else {
			fmt.Printf("Test framework: none detected\n")
		}
		fmt.Printf("Files:          %d\n", len(repoCtx.Files))
		if contextShowFiles {
			for _, f := range repoCtx.Files {
				fmt.Printf("  %s\n", f)
			}
		}
		return nil
	},
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func commandLine(tool *workspace.ToolInfo) string {
	line := tool.Command
	for _, arg := range tool.Args {
		line += " " + arg
	}
	return line
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.Flags().BoolVar(&contextShowFiles, "files", false, "List every file in the context")
}
