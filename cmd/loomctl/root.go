package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loom-run/loom/config"
)

func newRootCmd() *cobra.Command {
	var configFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "loomctl",
		Short:         "Inspect and run compiled dataflow pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a loomctl config file")
	_ = v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		app := newAppContext(cfg)
		cmd.SetContext(withAppContext(cmd.Context(), app))
		return nil
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}
