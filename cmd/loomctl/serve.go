package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd is a placeholder: a network transport for remote pipeline
// submission is out of scope here (the core is a library that runs
// in-process), but every comparable dataflow tool in the pack ships a
// serve verb, so loomctl names the gap explicitly rather than omitting
// the command entirely.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve pipelines over a network transport (not implemented)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("serve: no transport layer is implemented; use run/inspect against local pipeline files and stores")
		},
	}
}
