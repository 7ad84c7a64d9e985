package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"growpilot/internal/config"
)

type rootOptions struct {
	configFile string
	envFiles   []string
	v          *viper.Viper
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{v: config.New()}
	cmd := &cobra.Command{
		Use:           "growpilot",
		Short:         "Garden activity logger with harvest forecasting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load (missing files are skipped)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	_ = opts.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newServeCommand(opts), newForecastCommand(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.v, config.Options{ConfigFile: o.configFile, EnvFiles: o.envFiles})
}
