package commands

import (
	"github.com/spf13/cobra"

	"github.com/liamgwallace/claude-web/internal/files"
)

func newTreeCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <project>",
		Short: "Print a project's file tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := files.NewService(e.projects, e.logger).Tree(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, tree)
		},
	}
}
