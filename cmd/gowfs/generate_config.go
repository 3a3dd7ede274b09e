package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// newGenerateConfigCommand 输出当前生效的配置，未指定配置文件时为缺省配置
func newGenerateConfigCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Print the effective configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "toml" {
				return errors.Errorf("unknown config format '%s'", format)
			}
			c, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			raw, err := c.Marshal(format == "toml")
			if err != nil {
				return errors.Wrap(err, "marshal config")
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format, yaml or toml.")
	return cmd
}
