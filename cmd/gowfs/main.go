package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/xiaoxuxiansheng/gowfs/config"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:          "gowfs",
		Short:        "gowfs is a transactional web feature service with an ISO/DC metadata record store.",
		SilenceUsage: true,
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from, .yaml or .toml.")

	rc.AddCommand(newServeCommand())
	rc.AddCommand(newGenerateConfigCommand())
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// loadConfig 未指定配置文件时使用缺省配置
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
