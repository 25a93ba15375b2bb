package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ronnygunawan/opencopilot/pkg/config"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

var (
	flagDir   string
	flagModel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opencopilot",
	Short: "Automated step execution and verification for code changes",
	Long: `Opencopilot turns plan steps into verified code changes. For each step it
analyzes the repository, generates file changes through an LLM, verifies the
build, runs the tests, and rolls everything back if the step cannot be made
to pass.

Available commands:
  step      - Execute one plan step through the full pipeline
  refactor  - Analyze and order a multi-file changeset
  context   - Show what the pipeline knows about this repository
  version   - Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "d", ".", "Working directory for the pipeline")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Override the configured model")
}

// loadConfig resolves the working directory and layers flag overrides on top
// of the workspace configuration.
func loadConfig() (string, *config.Config, error) {
	root, err := resolveDir(flagDir)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	return root, cfg, nil
}

func resolveDir(dir string) (string, error) {
	if dir == "" || dir == "." {
		return os.Getwd()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", os.ErrInvalid
	}
	return dir, nil
}

func cmdLogger() *utils.Logger {
	return utils.GetLogger()
}
