package commands

import (
	"github.com/spf13/cobra"
)

// ServeCmd represents the serve command
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the surveyflow API server",
	Long:  "Start the HTTP API server: RFQ submission, workflow progress streaming, review endpoints, and the golden example library",
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		RunServe(addr)
	},
}

// SubmitCmd represents the submit command
var SubmitCmd = &cobra.Command{
	Use:   "submit <rfq.yaml>",
	Short: "Submit an RFQ and follow the generation workflow",
	Long: `Submit a request-for-questionnaire file and follow the workflow in real
time. When the workflow pauses for prompt review, the review is handled
inline: interactively on a terminal, or auto-approved with --auto.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		auto, _ := cmd.Flags().GetBool("auto")
		plain, _ := cmd.Flags().GetBool("plain")
		outFile, _ := cmd.Flags().GetString("out")
		RunSubmit(args[0], auto, plain, outFile)
	},
}

// ReviewCmd is the parent command for review operations.
var ReviewCmd = &cobra.Command{
	Use:     "review",
	Aliases: []string{"rv"},
	Short:   "Inspect and decide prompt reviews",
	Long:    "Show, approve, reject, or edit the prompt review attached to a workflow",
}

// ReviewShowCmd represents the review show command
var ReviewShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show the review for a workflow",
	Long:  "Fetch and display the review record attached to a workflow",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunReviewShow(args[0])
	},
}

// ReviewApproveCmd represents the review approve command
var ReviewApproveCmd = &cobra.Command{
	Use:   "approve <workflow-id>",
	Short: "Approve the pending review",
	Long:  "Approve the pending prompt review and resume the paused workflow",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		notes, _ := cmd.Flags().GetString("notes")
		RunReviewDecide(args[0], "approve", notes)
	},
}

// ReviewRejectCmd represents the review reject command
var ReviewRejectCmd = &cobra.Command{
	Use:   "reject <workflow-id>",
	Short: "Reject the pending review",
	Long:  "Reject the pending prompt review; the workflow terminates without generating a survey",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		notes, _ := cmd.Flags().GetString("notes")
		RunReviewDecide(args[0], "reject", notes)
	},
}

// ReviewEditCmd represents the review edit command
var ReviewEditCmd = &cobra.Command{
	Use:   "edit <workflow-id> <prompt-file>",
	Short: "Edit the prompt under review",
	Long:  "Replace the prompt under review with the contents of a file; the workflow stays paused until a decision",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		RunReviewEdit(args[0], args[1], reason)
	},
}

// GoldenCmd is the parent command for the golden example library.
var GoldenCmd = &cobra.Command{
	Use:     "golden",
	Aliases: []string{"g"},
	Short:   "Manage the golden example library",
	Long:    "List, add, show, or remove curated golden survey examples used for few-shot prompting",
}

// GoldenListCmd represents the golden list command
var GoldenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List golden examples",
	Run: func(cmd *cobra.Command, args []string) {
		RunGoldenList()
	},
}

// GoldenShowCmd represents the golden show command
var GoldenShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a golden example",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunGoldenShow(args[0])
	},
}

// GoldenAddCmd represents the golden add command
var GoldenAddCmd = &cobra.Command{
	Use:   "add <example.yaml>",
	Short: "Add a golden example from a YAML file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunGoldenAdd(args[0])
	},
}

// GoldenRemoveCmd represents the golden remove command
var GoldenRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a golden example",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		RunGoldenRemove(args[0])
	},
}

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show surveyflow version",
	Run: func(cmd *cobra.Command, args []string) {
		RunVersion()
	},
}

// MCPCmd represents the mcp command
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server mode",
	Long:  "Expose surveyflow operations as MCP tools over stdio for agent integration",
	Run: func(cmd *cobra.Command, args []string) {
		RunMCP()
	},
}

func init() {
	ServeCmd.Flags().String("addr", "", "Listen address (overrides config)")

	SubmitCmd.Flags().Bool("auto", false, "Auto-approve the prompt review without prompting")
	SubmitCmd.Flags().Bool("plain", false, "Plain line output even on a terminal")
	SubmitCmd.Flags().StringP("out", "o", "", "Write the generated survey JSON to a file")

	ReviewApproveCmd.Flags().String("notes", "", "Reviewer notes attached to the decision")
	ReviewRejectCmd.Flags().String("notes", "", "Reviewer notes attached to the decision")
	ReviewEditCmd.Flags().String("reason", "", "Reason for the prompt edit")

	ReviewCmd.AddCommand(ReviewShowCmd, ReviewApproveCmd, ReviewRejectCmd, ReviewEditCmd)
	GoldenCmd.AddCommand(GoldenListCmd, GoldenShowCmd, GoldenAddCmd, GoldenRemoveCmd)
}
