package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/loom-run/loom/ir"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <alias|hash>",
		Short: "Show a stored pipeline image's DAG shape and module options",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appContextFrom(cmd.Context())

			img, err := app.Store.ResolveReference(args[0])
			if err != nil {
				return err
			}
			printImage(cmd, img)
			return nil
		},
	}
}

func printImage(cmd *cobra.Command, img *ir.PipelineImage) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "structural hash: %s\n", img.StructuralHash)
	fmt.Fprintf(out, "syntactic hash:  %s\n", img.SyntacticHash)
	fmt.Fprintf(out, "compiled at:     %s\n", img.CompiledAt.Format("2006-01-02T15:04:05Z07:00"))

	dataNames := make([]string, 0, len(img.DAG.DataNodes))
	for _, n := range img.DAG.DataNodes {
		dataNames = append(dataNames, n.Name)
	}
	sort.Strings(dataNames)
	fmt.Fprintf(out, "data nodes (%d): %v\n", len(dataNames), dataNames)

	type moduleSummary struct {
		name    string
		options string
	}
	summaries := make([]moduleSummary, 0, len(img.DAG.ModuleNodes))
	for _, m := range img.DAG.ModuleNodes {
		summaries = append(summaries, moduleSummary{name: m.Name, options: summarizeOptions(m.Options)})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].name < summaries[j].name })

	fmt.Fprintf(out, "module nodes (%d):\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(out, "  %s  %s\n", s.name, s.options)
	}

	fmt.Fprintf(out, "declared outputs: %v\n", img.DAG.DeclaredOutputs)
}

func summarizeOptions(o ir.ModuleCallOptions) string {
	s := ""
	if o.Retry != nil {
		s += fmt.Sprintf("retry=%d ", *o.Retry)
	}
	if o.TimeoutMs != nil {
		s += fmt.Sprintf("timeoutMs=%d ", *o.TimeoutMs)
	}
	if o.CacheMs != nil {
		s += fmt.Sprintf("cacheMs=%d ", *o.CacheMs)
	}
	if o.Concurrency != nil {
		s += fmt.Sprintf("concurrency=%d ", *o.Concurrency)
	}
	if o.Priority != nil {
		s += fmt.Sprintf("priority=%d ", *o.Priority)
	}
	if o.CircuitBreaker != nil {
		s += fmt.Sprintf("circuitBreaker(failureThreshold=%d) ", o.CircuitBreaker.FailureThreshold)
	}
	if s == "" {
		return "(default)"
	}
	return s
}
