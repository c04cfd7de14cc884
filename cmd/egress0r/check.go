/*
 * @author: sun977
 * @date: 2026.02.16
 * @description: check 子命令，执行环境检测和全部开启的出网检测
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/reporter"
	"github.com/cyllective/egress0r/internal/core/runner"
	"github.com/cyllective/egress0r/internal/core/sanity"
	"github.com/cyllective/egress0r/internal/pkg/logger"
)

type checkOptions struct {
	watchConfig bool
	outputCSV   string
	table       bool
	noBanner    bool
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "执行出网检测",
		Long: `按 dns、icmp、smtp、http、ftp、port 的顺序执行配置中开启的检测项。
开始前检测本机可用的 IPv4/IPv6 地址，两者都不可用时退出。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecks(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.watchConfig, "watch-config", false, "监听配置文件，运行期间应用日志配置的修改")
	cmd.Flags().StringVar(&opts.outputCSV, "output-csv", "", "将全部结果导出为 CSV (覆盖 output.csv)")
	cmd.Flags().BoolVar(&opts.table, "table", false, "结束时以表格形式汇总全部结果")
	cmd.Flags().BoolVar(&opts.noBanner, "no-banner", false, "不显示启动横幅")
	return cmd
}

func runChecks(cmd *cobra.Command, opts checkOptions) error {
	env := config.NewEnvLoader(envFiles...)
	if err := env.Load(); err != nil {
		return err
	}

	loader := config.NewConfigLoader(cfgFile, config.DefaultEnvPrefix)
	cfg, err := loader.LoadConfig()
	if err != nil {
		return err
	}
	if err := applyLogConfig(cmd, cfg); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	logger.Debugf("using config file %s, env files %v", loader.GetConfigPath(), env.Loaded())

	if opts.watchConfig {
		watcher, err := watchLogConfig(loader.GetConfigPath(), cfg)
		if err != nil {
			logger.Warnf("config watcher disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.noBanner {
		printBanner()
	}

	rep := newReporter(cfg, opts)
	caps, err := runner.RunSanity(ctx, sanity.NewChecker(cfg.Sanity.Override, nil), rep)
	if err != nil {
		return err
	}

	_, err = runner.NewCheckManager().Run(ctx, cfg, caps, rep)
	if errors.Is(err, context.Canceled) {
		logger.Warnf("interrupted")
		return nil
	}
	return err
}

// newReporter 控制台输出，按需附加 CSV 导出
func newReporter(cfg *config.Config, opts checkOptions) reporter.Reporter {
	reporters := []reporter.Reporter{
		reporter.NewConsoleReporter(opts.table || cfg.Output.Table),
	}
	if path := csvPath(cfg, opts); path != "" {
		reporters = append(reporters, reporter.NewCsvReporter(path))
	}
	return reporter.NewMultiReporter(reporters...)
}

// csvPath --output-csv 优先于 output.csv
func csvPath(cfg *config.Config, opts checkOptions) string {
	if opts.outputCSV != "" {
		return opts.outputCSV
	}
	return cfg.Output.CSV
}

// watchLogConfig 配置文件变化时只应用日志配置，检测项参数在构建后不再变化
func watchLogConfig(path string, cfg *config.Config) (*config.ConfigWatcher, error) {
	watcher, err := config.WatchConfig(path, cfg, func(oldConfig, newConfig *config.Config) error {
		if frozen := config.FrozenSectionsChanged(oldConfig, newConfig); len(frozen) > 0 {
			logger.Warnf("config sections %v changed, they take effect on the next run", frozen)
		}
		if !config.LogConfigChanged(oldConfig, newConfig) || logger.LoggerInstance == nil {
			return nil
		}
		return logger.LoggerInstance.UpdateConfig(newConfig.Log)
	})
	if err != nil {
		return nil, err
	}
	watcher.OnError(func(err error) {
		logger.Warnf("config reload failed: %v", err)
	})
	return watcher, nil
}
