package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/oplog"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Scope     string
	Collapsed bool
	Dump      bool
}

// LogEntry is one operation as listed by the log command.
type LogEntry struct {
	Index     int    `json:"index"`
	Skip      int    `json:"skip"`
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Hash      string `json:"hash"`
	Error     string `json:"error,omitempty"`
	Memoized  bool   `json:"memoized,omitempty"`
}

// LogResult is the listed log of one scope.
type LogResult struct {
	ID         string     `json:"id"`
	Scope      string     `json:"scope"`
	Collapsed  bool       `json:"collapsed"`
	Operations []LogEntry `json:"operations"`
}

func (r LogResult) renderText(w io.Writer, verbose bool) {
	view := "log"
	if r.Collapsed {
		view = "replay view"
	}
	fmt.Fprintf(w, "%s [%s] %s: %d operation(s)\n", r.ID, r.Scope, view, len(r.Operations))
	for _, e := range r.Operations {
		fmt.Fprintf(w, "  #%-4d %-16s skip=%-3d %s", e.Index, e.Type, e.Skip, e.Hash)
		if e.Memoized {
			fmt.Fprint(w, " memoized")
		}
		fmt.Fprintln(w)
		if verbose {
			fmt.Fprintf(w, "        id=%s at %s\n", e.ID, e.Timestamp)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "        error: %s\n", e.Error)
		}
	}
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <doc-id>",
		Short: "List the operation log of a document scope",
		Long: `List the durable operation log of one scope of a stored document.

With --collapsed only the replay view is listed: operations hidden by a
later skip and superseded NOOPs are left out. --dump prints the raw
operations with their inputs.

Examples:
  docreduce log notes
  docreduce log notes --scope local --collapsed
  docreduce log notes --dump`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scope, "scope", string(ir.ScopeGlobal), "scope to list")
	cmd.Flags().BoolVar(&opts.Collapsed, "collapsed", false, "list the garbage-collected replay view")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "dump raw operations")

	return cmd
}

func runLog(ctx context.Context, opts *LogOptions, id string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, _, err := opts.engineFor(ctx, st, id); err != nil {
		return err
	}
	ops, err := st.ReadOperations(ctx, id, ir.Scope(opts.Scope))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read operations", err)
	}
	if opts.Collapsed {
		ops = oplog.View(ops)
	}

	if opts.Dump {
		fmt.Fprintln(cmd.OutOrStdout(), litter.Sdump(ops))
		return nil
	}

	result := LogResult{
		ID:         id,
		Scope:      opts.Scope,
		Collapsed:  opts.Collapsed,
		Operations: make([]LogEntry, 0, len(ops)),
	}
	for _, op := range ops {
		result.Operations = append(result.Operations, LogEntry{
			Index:     op.Index,
			Skip:      op.Skip,
			Type:      op.Type,
			ID:        op.ID,
			Timestamp: op.Timestamp,
			Hash:      op.Hash,
			Error:     op.Error,
			Memoized:  op.ResultingState != nil,
		})
	}
	return opts.formatter(cmd).Success(result)
}
