package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/docreduce/internal/engine"
	"github.com/roach88/docreduce/internal/ir"
	"github.com/roach88/docreduce/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	VerifyHashes bool
	Memoized     bool
}

// ReplayDocumentResult holds the replay result for a single document.
type ReplayDocumentResult struct {
	ID            string         `json:"id"`
	DocumentType  string         `json:"document_type"`
	Operations    map[string]int `json:"operations"`
	Deterministic bool           `json:"deterministic"`
	MatchesStored bool           `json:"matches_stored"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
}

func (r ReplayDocumentResult) ok() bool {
	return r.Deterministic && r.MatchesStored && r.Error == ""
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Documents        []ReplayDocumentResult `json:"documents"`
	TotalDocuments   int                    `json:"total_documents"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

func (r ReplayResult) renderText(w io.Writer, verbose bool) {
	if r.TotalDocuments == 0 {
		fmt.Fprintln(w, "No documents found in database.")
		return
	}
	fmt.Fprintf(w, "Replay Summary: %d document(s)\n\n", r.TotalDocuments)

	for _, doc := range r.Documents {
		status := "ok  "
		if !doc.ok() {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", status, doc.ID, doc.DocumentType)
		if verbose {
			for _, scope := range slices.Sorted(maps.Keys(doc.Operations)) {
				fmt.Fprintf(w, "  %s: %d operations\n", scope, doc.Operations[scope])
			}
		}
		switch {
		case doc.Error != "":
			fmt.Fprintf(w, "  Error: %s\n", doc.Error)
		case !doc.Deterministic:
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		case !doc.MatchesStored:
			fmt.Fprintln(w, "  Warning: replayed state differs from the stored document")
		}
	}
	fmt.Fprintln(w)

	if r.AllDeterministic {
		fmt.Fprintln(w, "All documents verified deterministic")
		return
	}
	fmt.Fprintln(w, "Determinism verification failed")
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [doc-id]",
		Short: "Replay operation logs and verify determinism",
		Long: `Replay stored documents from their initial state and operation logs.

Each document is replayed twice and the canonical name, state and hash
chain of both runs are compared with each other and with the document as
loaded from the store.

Exit codes:
  0 - All documents are deterministic
  1 - Determinism or hash verification failed
  2 - Command error (database not found, etc.)

Examples:
  docreduce replay
  docreduce replay notes --verify-hashes
  docreduce replay --memoized --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.VerifyHashes, "verify-hashes", false, "recompute every hash and compare it with the log")
	cmd.Flags().BoolVar(&opts.Memoized, "memoized", false, "resume from memoized resulting states")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var ids []string
	if len(args) == 1 {
		ids = args
	} else {
		docs, err := st.ListDocuments(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list documents", err)
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
	}

	result := ReplayResult{
		Documents:        make([]ReplayDocumentResult, 0, len(ids)),
		TotalDocuments:   len(ids),
		AllDeterministic: true,
	}
	for _, id := range ids {
		docResult, err := opts.replayDocument(ctx, st, id)
		if err != nil {
			return err
		}
		result.Documents = append(result.Documents, docResult)
		if !docResult.ok() {
			result.AllDeterministic = false
		}
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" && !result.AllDeterministic {
		if err := f.Error("E_DETERMINISM", "determinism verification failed", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	if err := f.Success(result); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// replayDocument loads one document and replays its logs twice.
// Engine failures are reported on the result; only store and setup
// problems are returned as errors.
func (o *ReplayOptions) replayDocument(ctx context.Context, st *store.Store, id string) (ReplayDocumentResult, error) {
	e, sum, err := o.engineFor(ctx, st, id)
	if err != nil {
		return ReplayDocumentResult{}, err
	}
	res := ReplayDocumentResult{ID: id, DocumentType: sum.DocumentType, Operations: map[string]int{}}

	fail := func(err error) (ReplayDocumentResult, error) {
		res.Error = err.Error()
		res.ErrorCode = string(engine.CodeOf(err))
		if errors.Is(err, store.ErrInvalidLog) {
			res.ErrorCode = "E_INVALID_LOG"
		}
		return res, nil
	}

	stored, err := st.LoadDocument(ctx, id, e, engine.ReplayOptions{})
	if err != nil {
		return fail(err)
	}
	for scope, ops := range stored.Operations {
		res.Operations[string(scope)] = len(ops)
	}

	replayOpts := engine.ReplayOptions{VerifyHashes: o.VerifyHashes, UseResultingState: o.Memoized}
	first, err := e.Replay(stored.InitialState, stored.Operations, replayOpts)
	if err != nil {
		return fail(err)
	}
	second, err := e.Replay(first.InitialState, first.Operations, replayOpts)
	if err != nil {
		return fail(err)
	}

	a, err := fingerprint(first)
	if err != nil {
		return fail(err)
	}
	b, err := fingerprint(second)
	if err != nil {
		return fail(err)
	}
	s, err := fingerprint(stored)
	if err != nil {
		return fail(err)
	}
	res.Deterministic = bytes.Equal(a, b)
	res.MatchesStored = bytes.Equal(a, s)
	o.logger().Debug("replayed", "id", id, "deterministic", res.Deterministic, "matches_stored", res.MatchesStored)
	return res, nil
}

// fingerprint is the canonical JSON of what a replay must reproduce: the
// name, the per-scope state and revision, and the hash chain.
func fingerprint(doc *ir.Document) ([]byte, error) {
	state := make(map[string]any, len(doc.State))
	for scope, obj := range doc.State {
		state[string(scope)] = obj
	}
	revision := make(map[string]any, len(doc.Revision))
	for scope, rev := range doc.Revision {
		revision[string(scope)] = rev
	}
	hashes := make(map[string]any, len(doc.Operations))
	for scope, ops := range doc.Operations {
		chain := make([]any, len(ops))
		for i, op := range ops {
			chain[i] = op.Hash
		}
		hashes[string(scope)] = chain
	}
	return ir.MarshalCanonical(map[string]any{
		"name":     doc.Name,
		"state":    state,
		"revision": revision,
		"hashes":   hashes,
	})
}
