package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loom-run/loom/ir"
	"github.com/loom-run/loom/types"
	"github.com/loom-run/loom/values"
)

func newRunCmd() *cobra.Command {
	var inputFlags []string

	cmd := &cobra.Command{
		Use:   "run <pipeline-file>",
		Short: "Run a declarative pipeline file against supplied inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appContextFrom(cmd.Context())

			dag, err := ir.LoadDeclarativeDAG(args[0])
			if err != nil {
				return err
			}

			inputs, err := parseInputs(dag, inputFlags)
			if err != nil {
				return err
			}

			executionID := uuid.NewString()
			sig, err := app.Runner.Run(context.Background(), executionID, dag, inputs)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "execution %s: %s\n", sig.ExecutionID, sig.Status)
			for name, v := range sig.Outputs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", name, v.String())
			}
			if len(sig.MissingInputs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  missing inputs: %s\n", strings.Join(sig.MissingInputs, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&inputFlags, "input", nil, "Input binding name=value, repeatable")
	return cmd
}

// parseInputs resolves each --input name=value flag against the type of
// the DAG's data node with that name. Only scalar types are parsed; a
// list-typed node, which the declarative loader can produce, is
// rejected by scalarFromString.
func parseInputs(dag *ir.DAG, flags []string) (map[string]values.CValue, error) {
	typeByName := make(map[string]types.SemanticType, len(dag.DataNodes))
	for _, n := range dag.DataNodes {
		typeByName[n.Name] = n.Type
	}

	inputs := make(map[string]values.CValue, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --input %q, want name=value", f)
		}
		t, ok := typeByName[name]
		if !ok {
			return nil, fmt.Errorf("--input %q: no data node named %q in this pipeline", f, name)
		}
		v, err := scalarFromString(raw, t)
		if err != nil {
			return nil, fmt.Errorf("--input %q: %w", f, err)
		}
		inputs[name] = v
	}
	return inputs, nil
}

func scalarFromString(raw string, t types.SemanticType) (values.CValue, error) {
	switch t.Kind {
	case types.KindString:
		return values.String(raw), nil
	case types.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return values.CValue{}, fmt.Errorf("not a valid Int: %w", err)
		}
		return values.Int(n), nil
	case types.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return values.CValue{}, fmt.Errorf("not a valid Float: %w", err)
		}
		return values.Float(f), nil
	case types.KindBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return values.CValue{}, fmt.Errorf("not a valid Boolean: %w", err)
		}
		return values.Bool(b), nil
	default:
		return values.CValue{}, fmt.Errorf("inputs of kind %v are not supported by --input", t.Kind)
	}
}
