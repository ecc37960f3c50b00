package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ouroboros/internal/disasm"
	"ouroboros/internal/ui/colorize"
)

var listingCmd = &cobra.Command{
	Use:   "listing [file]",
	Short: "Print the disassembly listing",
	Long: `Print every loaded section as decoded instructions and data rows,
labelled with the symbols the analysis found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}
		ws, err := openWorkspace(cmd, args[0])
		if err != nil {
			return err
		}
		defer ws.Close()

		color := useColor(ws)
		lines := disasm.NewListing(ws.Session.Space).Rows().Lines(ws.Session.Symbols)
		for _, line := range lines {
			if color {
				line = colorize.Line(line)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}
