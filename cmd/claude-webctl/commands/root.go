// Package commands implements claude-webctl, an admin CLI that works on the
// data directory directly, without a running server.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/liamgwallace/claude-web/internal/config"
	"github.com/liamgwallace/claude-web/internal/store"
	"github.com/liamgwallace/claude-web/internal/template"
)

// env is shared by every subcommand once the root pre-run has opened the stores.
type env struct {
	dataDir string
	verbose bool

	cfg      *config.Config
	logger   zerolog.Logger
	projects *store.ProjectStore
	threads  *store.ThreadStore
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "claude-webctl",
		Short:         "Manage claude-web projects and threads from the command line",
		Long:          `claude-webctl reads and writes the claude-web data directory directly. Output is JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVar(&e.dataDir, "data-dir", "", "Projects root (defaults to DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log at debug level to stderr")

	rootCmd.AddCommand(newProjectsCommand(e))
	rootCmd.AddCommand(newThreadsCommand(e))
	rootCmd.AddCommand(newSendCommand(e))
	rootCmd.AddCommand(newTreeCommand(e))

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (e *env) open(stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if e.dataDir != "" {
		cfg.DataDir = e.dataDir
	}
	e.cfg = cfg

	level := zerolog.WarnLevel
	if e.verbose {
		level = zerolog.DebugLevel
	}
	e.logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger()

	projects, err := store.NewProjectStore(cfg.DataDir, e.logger)
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}
	if cfg.TemplatesEnabled() {
		seeder, err := template.New(cfg.TemplateDir, e.logger)
		if err != nil {
			return fmt.Errorf("load project template: %w", err)
		}
		projects.SetSeeder(seeder)
	}
	e.projects = projects
	e.threads = store.NewThreadStore(projects, e.logger)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
