package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/config"
	"github.com/rschmaelzle/aeneas/internal/logger"
	"github.com/rschmaelzle/aeneas/internal/synth"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

const defaultConfigPath = "configs/aeneas.yaml"

// globalOptions 是所有子命令共享的参数。
type globalOptions struct {
	configPath string
	logLevel   string
}

// loadConfig 读取配置。未显式指定且默认路径不存在时使用内置默认值。
func (o *globalOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			cfg, err := config.Default()
			if err != nil {
				return nil, err
			}
			o.applyOverrides(cfg)
			return cfg, nil
		}
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	o.applyOverrides(cfg)
	return cfg, nil
}

func (o *globalOptions) applyOverrides(cfg *config.Config) {
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

// initLogger 初始化全局日志并返回注入给各组件的 logger。
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}
	if err := logger.Init(lc); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return logger.Z, nil
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "aeneas",
		Short: "Synthesize text fragments into one audio file with time anchors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default "+defaultConfigPath+" when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newSynthesizeCommand(opts),
		newLanguagesCommand(),
		newHistoryCommand(opts),
		newPreviewCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "aeneas %s\n", formatVersion())
			if buildTime != "" {
				fmt.Fprintf(out, "  Build: %s\n", buildTime)
			}
			fmt.Fprintf(out, "  Go: %s\n", runtime.Version())
		},
	}
}

// exitCode 按错误类别返回进程退出码。
func exitCode(err error) int {
	var usage *usageError
	if errors.As(err, &usage) || errors.Is(err, synth.ErrInvalidInput) {
		return 2
	}
	return 1
}

// usageError 表示命令行参数错误。
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	err := newRootCommand().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(exitCode(err))
	}
}
