package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyllective/egress0r/internal/config"
)

// newConfigCmd 输出生效配置，便于排查环境变量覆盖
func newConfigCmd() *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "显示合并默认值和环境变量后的生效配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.NewEnvLoader(envFiles...).Load(); err != nil {
				return err
			}
			cfg, err := config.NewConfigLoader(cfgFile, config.DefaultEnvPrefix).LoadConfig()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg, !showSecrets)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "显示 SMTP/FTP 密码")
	return cmd
}
