package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "intercom",
		Short:         "Resilient control session for intercom audio calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config-env", "", "config environment, selects config/config.<env>.yaml")
	pf.String("config", "", "explicit config file path")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("config_env", pf.Lookup("config-env"))
	_ = v.BindPFlag("config_file", pf.Lookup("config"))
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))

	root.AddCommand(newRunCmd(v))
	return root
}
