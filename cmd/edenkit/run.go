package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/EdenKit/app"
	"github.com/AltairaLabs/EdenKit/money"
	"github.com/AltairaLabs/EdenKit/workflow"
)

type runOptions struct {
	vars      []string
	varsJSON  string
	balances  []string
	decisions []string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a workflow execution end to end",
		Long: `Starts an execution of the workflow and drives it to completion. Authority
checkpoints are continued automatically. Decisions are answered from
--decision flags, or read from stdin when no flag names the step.

Examples:
  edenkit run movie-booking.yaml --vars-json '{"catalog":[...]}' --var payer=alice \
    --balance alice=15.00 --decision choose_listing=m1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			runErr := runWorkflow(ctx, a, args[0], opts, cmd.InOrStdin(), cmd.OutOrStdout())
			return errors.Join(runErr, a.Close(context.WithoutCancel(ctx)))
		},
	}
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Initial variable key=value (repeatable; values are parsed as YAML scalars)")
	cmd.Flags().StringVar(&opts.varsJSON, "vars-json", "", "Initial variables as a JSON object")
	cmd.Flags().StringArrayVar(&opts.balances, "balance", nil, "Seed a wallet payer=amount before the run (repeatable)")
	cmd.Flags().StringArrayVar(&opts.decisions, "decision", nil, "Answer a decision step=value (repeatable)")
	return cmd
}

func runWorkflow(ctx context.Context, a *app.App, path string, opts *runOptions, in io.Reader, out io.Writer) error {
	def, err := workflow.LoadFile(path, workflow.WithActionCatalog(a.Dispatcher))
	if err != nil {
		return err
	}
	vars, err := opts.initialVars()
	if err != nil {
		return err
	}
	decisions, err := splitPairs("--decision", opts.decisions)
	if err != nil {
		return err
	}
	if err := seedBalances(ctx, a, opts.balances); err != nil {
		return err
	}

	answers := &decisionSource{fixed: decisions, in: bufio.NewScanner(in), out: out}
	inst, err := a.Engine.Start(ctx, def, vars)
	for err == nil {
		printInstruction(out, inst)
		switch inst.Kind {
		case workflow.InstructionComplete:
			printSummary(out, a, inst.ExecutionID)
			return nil
		case workflow.InstructionDisplay:
			inst, err = a.Engine.ExecuteNextStep(ctx, inst.ExecutionID)
		case workflow.InstructionDecision:
			value, aerr := answers.answer(inst)
			if aerr != nil {
				return aerr
			}
			inst, err = a.Engine.SubmitDecision(ctx, inst.ExecutionID, value, nil)
		default:
			return fmt.Errorf("unexpected instruction kind %q", inst.Kind)
		}
	}
	return err
}

func (o *runOptions) initialVars() (map[string]any, error) {
	vars := map[string]any{}
	if o.varsJSON != "" {
		if err := json.Unmarshal([]byte(o.varsJSON), &vars); err != nil {
			return nil, fmt.Errorf("--vars-json: %w", err)
		}
	}
	pairs, err := splitPairs("--var", o.vars)
	if err != nil {
		return nil, err
	}
	for k, raw := range pairs {
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		vars[k] = v
	}
	return vars, nil
}

func seedBalances(ctx context.Context, a *app.App, specs []string) error {
	pairs, err := splitPairs("--balance", specs)
	if err != nil {
		return err
	}
	for _, who := range slices.Sorted(maps.Keys(pairs)) {
		amount, err := money.Parse(pairs[who])
		if err != nil {
			return fmt.Errorf("--balance %s: %w", who, err)
		}
		if _, err := a.Wallet.Credit(ctx, who, amount, "", "seed", nil); err != nil {
			return fmt.Errorf("--balance %s: %w", who, err)
		}
	}
	return nil
}

func splitPairs(flag string, specs []string) (map[string]string, error) {
	pairs := make(map[string]string, len(specs))
	for _, s := range specs {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%s %q: expected key=value", flag, s)
		}
		pairs[k] = v
	}
	return pairs, nil
}

// decisionSource answers decisions from flags first, then from stdin. A
// numeric stdin answer picks the option at that 1-based position.
type decisionSource struct {
	fixed map[string]string
	in    *bufio.Scanner
	out   io.Writer
}

func (d *decisionSource) answer(inst *workflow.Instruction) (string, error) {
	if v, ok := d.fixed[inst.Step]; ok {
		fmt.Fprintf(d.out, "> %s\n", v)
		return v, nil
	}
	fmt.Fprint(d.out, "> ")
	if !d.in.Scan() {
		if err := d.in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no decision for step %q", inst.Step)
	}
	line := strings.TrimSpace(d.in.Text())
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(inst.Options) {
		return inst.Options[n-1].Value, nil
	}
	return line, nil
}

func printInstruction(out io.Writer, inst *workflow.Instruction) {
	switch inst.Kind {
	case workflow.InstructionDecision:
		fmt.Fprintf(out, "[%s] %s\n", inst.Step, inst.Prompt)
		for i, opt := range inst.Options {
			fmt.Fprintf(out, "  %d) %s (%s)\n", i+1, opt.Label, opt.Value)
		}
		if inst.Timeout > 0 {
			fmt.Fprintf(out, "  times out after %s\n", inst.Timeout)
		}
	case workflow.InstructionDisplay:
		fmt.Fprintf(out, "[%s] authority checkpoint, next: %s\n", inst.Step, inst.NextStep)
	case workflow.InstructionComplete:
		fmt.Fprintf(out, "[%s] complete\n", inst.Step)
	}
}

func printSummary(out io.Writer, a *app.App, executionID string) {
	if exec, ok := a.Engine.Execution(executionID); ok {
		fmt.Fprintf(out, "\nexecution %s %s after %d steps\n", exec.ID, exec.Status, len(exec.History))
	}

	entries := a.Ledger.All()
	if len(entries) > 0 {
		fmt.Fprintln(out, "\nledger:")
		for _, e := range entries {
			fmt.Fprintf(out, "  %s  %-8s %8s  %s\n", e.EntryID, e.Payer, e.Amount, e.Status)
		}
	}

	balances := a.Wallet.Balances()
	if len(balances) > 0 {
		fmt.Fprintln(out, "\nbalances:")
		for _, who := range slices.Sorted(maps.Keys(balances)) {
			fmt.Fprintf(out, "  %-10s %8s\n", who, balances[who])
		}
	}
}
