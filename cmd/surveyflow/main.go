package main

import (
	"os"

	"github.com/spf13/cobra"

	"surveyflow/internal/commands"
	"surveyflow/internal/output"
)

var jsonFlag bool

var rootCmd = &cobra.Command{
	Use:   "surveyflow",
	Short: "Survey generation workflows with human prompt review",
	Long: `surveyflow turns a request-for-questionnaire into a finished survey via a
server-side generation workflow. Each run pauses for a human prompt review
before anything is generated; the CLI streams progress and handles the
review inline.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output in JSON format")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SubmitCmd)
	rootCmd.AddCommand(commands.ReviewCmd)
	rootCmd.AddCommand(commands.GoldenCmd)
	rootCmd.AddCommand(commands.MCPCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	// Propagate --json flag before execution
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		output.JSONMode = jsonFlag
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
