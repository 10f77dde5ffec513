package commands

import (
	"github.com/spf13/cobra"
)

func newThreadsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect and create threads",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <project>",
		Short: "List the threads of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threads, err := e.threads.List(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"project_name": args[0],
				"threads":      threads,
				"count":        len(threads),
			})
		},
	})

	var name string
	create := &cobra.Command{
		Use:   "create <project>",
		Short: "Create a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := e.threads.Create(args[0], name)
			if err != nil {
				return err
			}
			thread, err := e.threads.Get(args[0], id)
			if err != nil {
				return err
			}
			return printJSON(cmd, thread.Summary())
		},
	}
	create.Flags().StringVar(&name, "name", "", "Thread name (defaults to \"Thread <id>\")")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "messages <project> <thread>",
		Short: "Print a thread's message history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := e.threads.Messages(args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"messages": messages, "count": len(messages)})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <project> <thread>",
		Short: "Print a thread's status record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, e.threads.Status(args[0], args[1]))
		},
	})

	return cmd
}
