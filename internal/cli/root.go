package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/docreduce/internal/config"
	"github.com/roach88/docreduce/internal/doctype"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	// Config is loaded before any subcommand runs. Subcommands built
	// directly (as in tests) fall back to config.Defaults().
	Config *config.Config

	// Registry resolves document types. Default: doctype.Default()
	Registry *doctype.Registry

	// Logger receives engine and store diagnostics.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{config.FormatText, config.FormatJSON}

// NewRootCommand creates the root command for the docreduce CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docreduce",
		Short: "docreduce - operation-sourced document reducer",
		Long: `A reducer engine for operation-sourced documents.

Documents are rebuilt by replaying per-scope operation logs. Undo appends
a NOOP that skips earlier operations, redo re-dispatches them from a
clipboard, and prune collapses a log range into a LOAD_STATE checkpoint.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", config.FormatText, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: ./docreduce.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup loads configuration and lets explicit flags override it.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg

	if !cmd.Flags().Changed("format") {
		o.Format = cfg.Format
	}
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.Database == "" {
		o.Database = cfg.Database
	}

	level, err := cfg.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.Format == config.FormatJSON {
		o.Logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), handlerOpts))
	} else {
		o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), handlerOpts))
	}
	return nil
}

func (o *RootOptions) config() *config.Config {
	if o.Config == nil {
		cfg := config.Defaults()
		o.Config = &cfg
	}
	return o.Config
}

func (o *RootOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.config().Database
}

func (o *RootOptions) registry() *doctype.Registry {
	if o.Registry == nil {
		o.Registry = doctype.Default()
	}
	return o.Registry
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
