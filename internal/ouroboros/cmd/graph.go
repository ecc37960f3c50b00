package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ouroboros/internal/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph [file]",
	Short: "Write control flow and call graphs as DOT",
	Long: `Write one DOT file per multi-block function under <out>/cfg and the
call graph to <out>/callgraph.dot.`,
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

		dir, _ := cmd.Flags().GetString("out")
		if dir == "" {
			dir = ws.Config.GraphDir
		}
		if dir == "" {
			return usageError("ouroboros graph --out <dir> <file>, or set graph_dir")
		}

		n, err := graph.WriteDir(ws.Session, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d function graphs and the call graph to %s\n", n, dir)
		return nil
	},
}

func init() {
	graphCmd.Flags().StringP("out", "o", "", "Output directory")
}
