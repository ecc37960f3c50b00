package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a single non-interactive analysis",
	Long: `Analyse a binary in non-interactive mode, print a summary of the
discovered functions and exit.`,
	Example: `
# Summarise a binary
ouroboros run /path/to/binary

# Machine readable summary
ouroboros run --json /path/to/binary
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		jsonOut, _ := cmd.Flags().GetBool("json")

		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}
		ws, err := openWorkspace(cmd, args[0])
		if err != nil {
			return err
		}
		defer ws.Close()

		fns, err := selectFunctions(ws.Session, nil)
		if err != nil {
			return err
		}
		out := buildOutput(ws, fns, false)
		if !quiet {
			slog.Info("Analysed", "file", out.File, "functions", len(out.Functions), "failed", len(out.Failed))
		}

		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		if useColor(ws) {
			fmt.Fprint(cmd.OutOrStdout(), renderSummary(out, terminalWidth()))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), summaryMarkdown(out))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Do not log progress")
	runCmd.Flags().BoolP("json", "j", false, "Output the summary as JSON")
	runCmd.Flags().StringArrayP("rename", "r", nil, "Rename a symbol before summarising (from=to, repeatable)")
}
