package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	Input      string
	Scope      string
	Skip       int
	IgnoreSkip bool
	Memoize    bool
}

// DispatchResult describes the operation a dispatch appended.
type DispatchResult struct {
	ID        string `json:"id"`
	Scope     string `json:"scope"`
	Type      string `json:"type"`
	Index     int    `json:"index"`
	Skip      int    `json:"skip"`
	Hash      string `json:"hash"`
	Error     string `json:"error,omitempty"`
	Name      string `json:"name"`
	Revision  int    `json:"revision"`
	LogLength int    `json:"log_length"`
}

func (r DispatchResult) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "%s #%d %s", r.Scope, r.Index, r.Type)
	if r.Skip > 0 {
		fmt.Fprintf(w, " skip=%d", r.Skip)
	}
	fmt.Fprintln(w)
	if r.Error != "" {
		fmt.Fprintf(w, "  Reducer error: %s\n", r.Error)
	}
	if verbose {
		fmt.Fprintf(w, "  Hash: %s\n", r.Hash)
		fmt.Fprintf(w, "  Revision: %d (%d operations)\n", r.Revision, r.LogLength)
	}
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <doc-id> <action-type>",
		Short: "Dispatch an action to a stored document",
		Long: `Load a document, dispatch one action and save the result.

Base actions (SET_NAME, UNDO, REDO, PRUNE, LOAD_STATE, NOOP) are handled
by the engine; any other type goes to the document reducer. A reducer
failure is recorded on the operation and is not a command error.

Exit codes:
  0 - Operation appended
  1 - Action rejected by the engine (nothing to undo, bad prune range, etc.)
  2 - Command error (document not found, invalid input JSON, etc.)

Examples:
  docreduce dispatch notes INCREMENT
  docreduce dispatch notes SET_NAME --input '"Weekly"'
  docreduce dispatch notes UNDO --input 2
  docreduce dispatch notes PRUNE --input '{"start":0,"end":10}'
  docreduce dispatch notes SET_LOCAL_NAME --scope local --input '"alice"'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "action input as JSON (default {})")
	cmd.Flags().StringVar(&opts.Scope, "scope", string(ir.ScopeGlobal), "action scope")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "skip the N preceding operations")
	cmd.Flags().BoolVar(&opts.IgnoreSkip, "ignore-skip", false, "append without resolving skips or clearing redo history")
	cmd.Flags().BoolVar(&opts.Memoize, "memoize", false, "store the resulting state on the operation (default from config)")

	return cmd
}

func runDispatch(ctx context.Context, opts *DispatchOptions, id, actionType string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Skip < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --skip %d: must not be negative", opts.Skip))
	}
	input, err := parseInput(opts.Input)
	if err != nil {
		return err
	}

	s, err := opts.openDocument(ctx, id)
	if err != nil {
		return err
	}
	defer s.store.Close()

	memoize := opts.Memoize || opts.config().Memoize
	doc, err := s.load(ctx, memoize)
	if err != nil {
		return err
	}

	var dispatchOpts []engine.DispatchOption
	if opts.Skip > 0 {
		dispatchOpts = append(dispatchOpts, engine.WithSkip(opts.Skip))
	}
	if opts.IgnoreSkip {
		dispatchOpts = append(dispatchOpts, engine.IgnoreSkipOperations())
	}
	if memoize {
		dispatchOpts = append(dispatchOpts, engine.MemoizeState())
	}

	scope := ir.Scope(opts.Scope)
	f := opts.formatter(cmd)
	next, err := s.engine.Dispatch(doc, ir.NewAction(actionType, input, scope), dispatchOpts...)
	if err != nil {
		return f.EngineError(fmt.Sprintf("%s rejected", actionType), err)
	}
	if err := s.store.SaveDocument(ctx, id, next); err != nil {
		return WrapExitError(ExitCommandError, "failed to save document", err)
	}

	ops := next.Operations[scope]
	tail := ops[len(ops)-1]
	opts.logger().Debug("dispatched", "id", id, "type", tail.Type, "scope", scope, "index", tail.Index)

	return f.Success(DispatchResult{
		ID:        tail.ID,
		Scope:     string(scope),
		Type:      tail.Type,
		Index:     tail.Index,
		Skip:      tail.Skip,
		Hash:      tail.Hash,
		Error:     tail.Error,
		Name:      next.Name,
		Revision:  next.Revision[scope],
		LogLength: len(ops),
	})
}
