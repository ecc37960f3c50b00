package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default ./ouroboros.toml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable syntax highlighting")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print pseudo-code instead of opening the browser")
	rootCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
	rootCmd.Flags().StringArrayP("function", "f", nil, "Decompile only this function (name or address, repeatable)")
	rootCmd.Flags().StringArrayP("rename", "r", nil, "Rename a symbol or variable before printing (from=to, repeatable)")

	rootCmd.AddCommand(runCmd, graphCmd, listingCmd, browseCmd)
}

var rootCmd = &cobra.Command{
	Use:   "ouroboros [file]",
	Short: "Decompile x86 executables into structured pseudo-code",
	Long: `Ouroboros lifts the machine code of an ELF or PE executable, rebuilds
its control flow and prints each discovered function as C-like pseudo-code.
On a terminal it opens an interactive browser instead.`,
	Example: `
# Browse a binary interactively
ouroboros /path/to/binary

# Print one function with a renamed parameter
ouroboros -n -f main -r arg0=argc /path/to/binary

# Dump every function as JSON
ouroboros --json /path/to/binary
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		jsonOut, _ := cmd.Flags().GetBool("json")
		if !noTUI && !jsonOut && isTerminal() {
			return runBrowser(cmd, args[0])
		}

		ws, err := openWorkspace(cmd, args[0])
		if err != nil {
			return err
		}
		defer ws.Close()

		refs, _ := cmd.Flags().GetStringArray("function")
		fns, err := selectFunctions(ws.Session, refs)
		if err != nil {
			return err
		}

		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), buildOutput(ws, fns, true))
		}
		return writePseudo(cmd.OutOrStdout(), ws, fns, useColor(ws))
	},
}

func Execute() {
	// Check if --no-tui or --json is present, or if output is being piped,
	// to bypass fang's styled output
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			noTUI = true
			break
		}
	}
	if !noTUI && !isTerminal() {
		noTUI = true
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// Root exposes the command tree to tests.
func Root() *cobra.Command { return rootCmd }

func usageError(format string, args ...any) error {
	return fmt.Errorf("usage: "+format, args...)
}
