package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/docreduce/internal/doctype"
	"github.com/roach88/docreduce/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Type string
	Name string
}

// InitResult describes a newly created document.
type InitResult struct {
	ID           string `json:"id"`
	DocumentType string `json:"document_type"`
	Name         string `json:"name"`
	Created      string `json:"created"`
}

func (r InitResult) renderText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "Created %s (%s)\n", r.ID, r.DocumentType)
	if r.Name != "" {
		fmt.Fprintf(w, "  Name: %s\n", r.Name)
	}
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <doc-id>",
		Short: "Create a new document",
		Long: `Create a new empty document of a registered type and save it.

Exit codes:
  0 - Document created
  2 - Command error (document exists, unknown type, etc.)

Examples:
  docreduce init notes --type docreduce/counter --name "Sprint notes"
  docreduce init notes --db ./docs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", doctype.CounterType, "document type")
	cmd.Flags().StringVar(&opts.Name, "name", "", "initial document name")

	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, id string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	model, err := opts.registry().Get(opts.Type)
	if err != nil {
		return WrapExitError(ExitCommandError, "unsupported document type", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.ReadSummary(ctx, id); err == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("document already exists: %s", id))
	} else if !errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, "failed to read document", err)
	}

	e, err := opts.newEngine(model)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	doc := model.NewDocument(e, opts.Name)
	if err := st.SaveDocument(ctx, id, doc); err != nil {
		return WrapExitError(ExitCommandError, "failed to save document", err)
	}
	opts.logger().Info("document created", "id", id, "type", model.Type)

	return opts.formatter(cmd).Success(InitResult{
		ID:           id,
		DocumentType: doc.DocumentType,
		Name:         doc.Name,
		Created:      doc.Created,
	})
}
