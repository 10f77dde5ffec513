package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProjectsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List, create and delete projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := e.projects.List()
			if err != nil {
				return fmt.Errorf("failed to list projects: %w", err)
			}
			return printJSON(cmd, map[string]any{"projects": projects, "count": len(projects)})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a project folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := e.projects.Create(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"project_name": name, "original_name": args[0]})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a project with all of its threads and files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.projects.Delete(args[0]); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"project_name": args[0],
				"message":      fmt.Sprintf("Project %s deleted successfully", args[0]),
			})
		},
	})

	return cmd
}
