package main

import (
	"github.com/spf13/cobra"

	"adlytics/internal/app"
	"adlytics/internal/config"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "adlytics",
		Short:         "Ad analytics ingestion and notification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath+")")

	open := func(opts ...app.Option) (*app.App, error) {
		return app.New(config.ResolvePath(cfgPath), opts...)
	}
	root.AddCommand(
		newServeCmd(open),
		newNotifyCmd(open),
		newFetchCmd(open),
		newHistoryCmd(open),
	)
	return root
}

type openFunc func(opts ...app.Option) (*app.App, error)
