package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/EdenKit/actions"
	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/settlement"
	"github.com/AltairaLabs/EdenKit/wallet"
	"github.com/AltairaLabs/EdenKit/workflow"
)

func newValidateCmd() *cobra.Command {
	var schemaOnly bool
	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow definition",
		Long: `Loads a workflow definition, checks it against the definition schema and
runs the semantic checks. Action types are checked against the built-in
handlers unless --schema-only is given.

Examples:
  edenkit validate workflows/movie-booking.yaml
  edenkit validate booking.json --schema-only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], schemaOnly)
		},
	}
	cmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "Skip the action handler check")
	return cmd
}

func runValidate(cmd *cobra.Command, path string, schemaOnly bool) error {
	var opts []workflow.ValidateOption
	if !schemaOnly {
		opts = append(opts, workflow.WithActionCatalog(builtinCatalog()))
	}

	out := cmd.OutOrStdout()
	def, err := workflow.LoadFile(path, opts...)
	if verr, ok := workflow.AsValidationError(err); ok {
		fmt.Fprintf(out, "✗ %s is invalid\n", path)
		for _, p := range verr.Problems {
			fmt.Fprintf(out, "  error: %s\n", p)
		}
		return fmt.Errorf("validation failed with %d error(s)", len(verr.Problems))
	}
	if err != nil {
		return err
	}

	res := workflow.Validate(def, opts...)
	fmt.Fprintf(out, "✓ %s is valid (%s %s, %d steps, %d transitions)\n",
		path, def.Name, def.Version, len(def.Steps), len(def.Transitions))
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	return nil
}

// builtinCatalog returns a dispatcher carrying every built-in handler. The
// collaborators are throwaway; only the registered tags matter.
func builtinCatalog() *actions.Dispatcher {
	reg := actions.NewRegistry()
	l := ledger.NewStore()
	_ = actions.RegisterAuthority(reg, actions.AuthorityDeps{
		Ledger:     l,
		Settlement: settlement.NewPipeline(l, wallet.NewService()),
	})
	return actions.NewDispatcher(reg)
}
