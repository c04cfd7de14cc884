/*
 * @author: sun977
 * @date: 2026.02.16
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/pkg/logger"
)

var (
	cfgFile  string
	envFiles []string
)

// rootCmd 不带子命令时直接执行全部检测
var rootCmd = &cobra.Command{
	Use:   "egress0r",
	Short: "egress0r 出网过滤检测工具",
	Long: `egress0r 通过多种协议 (DNS/ICMP/SMTP/HTTP/FTP/端口) 检测当前主机的出网限制，
并尝试向外部协作服务外传测试数据。

示例:
  1.使用默认配置 (./configs/config.yaml) 执行全部开启的检测
	egress0r
  2.指定配置文件并导出 CSV
	egress0r check --config ./egress0r.yaml --output-csv results.csv
  3.运行过程中修改配置文件即可调整日志级别
	egress0r check --watch-config --log-level debug
`,
	SilenceUsage: true,
	// PersistentPreRun: 全局初始化逻辑，确保所有子命令都能使用日志
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLILogger(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChecks(cmd, checkOptions{})
	},
}

func Execute() {
	// 全局 Panic Recovery
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] egress0r crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	// 全局 Flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml，也可通过 EGRESS0R_CONFIG_PATH 指定)")
	rootCmd.PersistentFlags().String("log-level", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "在读取配置前加载的 .env 文件")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(versionCmd)
}

// initCLILogger 初始化 CLI 模式下的日志
// 配置文件加载前先用 --log-level 输出到 stderr，加载后由 applyLogConfig 接管
func initCLILogger(cmd *cobra.Command) {
	level := logLevelFlag(cmd)
	if level == "" {
		level = "warn"
	}

	// 配置 pterm
	switch level {
	case "debug", "trace":
		pterm.EnableDebugMessages()
	case "info":
		pterm.DisableDebugMessages()
	default:
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}

	logConfig := &config.LogConfig{
		Level:  level,
		Format: "text",
		Output: "stderr",
		Caller: false,
	}
	if _, err := logger.InitLogger(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
	}
}

// applyLogConfig 使用配置文件中的日志设置，--log-level 优先
func applyLogConfig(cmd *cobra.Command, cfg *config.Config) error {
	if level := logLevelFlag(cmd); level != "" {
		cfg.Log.Level = level
	}
	_, err := logger.InitLogger(cfg.Log)
	return err
}

func logLevelFlag(cmd *cobra.Command) string {
	flag := cmd.Flags().Lookup("log-level")
	if flag != nil && flag.Changed {
		return flag.Value.String()
	}
	return ""
}
