package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/liamgwallace/claude-web/internal/relay"
	"github.com/liamgwallace/claude-web/internal/runner"
)

func newSendCommand(e *env) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <project> <thread> <message>",
		Short: "Send one message to claude and wait for the reply",
		Long: `Send runs the same relay as a queued job, synchronously and without the
server's queue. The exchange is appended to the thread on success.

Thread locking only holds within one process: send is not coordinated with a
running claude-web server. Do not send to a thread the server may be working
on at the same time, or one of the two exchanges can be lost.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("timeout") {
				timeout = e.cfg.ClaudeTimeout
			}
			claude := runner.New(runner.Config{
				Binary:          e.cfg.ClaudeBin,
				Timeout:         timeout,
				SkipPermissions: e.cfg.ClaudeSkipPermissions,
			}, e.logger)

			reply, err := relay.New(e.threads, claude, e.logger).Send(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"response":   reply.Text,
				"session_id": reply.SessionID,
				"metadata":   reply.Metadata,
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", runner.DefaultTimeout, "Maximum time to wait for claude")
	return cmd
}
