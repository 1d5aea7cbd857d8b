package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weisyn/tonrelay/internal/config"
	"github.com/weisyn/tonrelay/pkg/types"
)

// GlobalFlags 全局标志，显式设置时覆盖环境变量
type GlobalFlags struct {
	EnvFile  string // .env 文件路径
	Port     int    // WebSocket 端口
	LogLevel string // 日志级别
	Network  string // mainnet | testnet | 自定义
}

var globalFlags GlobalFlags

// rootCmd 根命令，不带子命令时等同于 serve
var rootCmd = &cobra.Command{
	Use:   "tonrelay",
	Short: "TON 外部消息实时中继",
	Long: `tonrelay - TON 外部消息实时中继

从点对点覆盖网络接收外部消息，去重后按源/目标地址推送给 WebSocket 订阅者；
订阅者也可以通过同一连接向覆盖网络提交外部消息。

配置来自环境变量（可选 .env 文件），命令行标志优先。`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.EnvFile, "env-file", "", "环境变量文件 (默认尝试 "+config.DefaultEnvFile+"，不存在时忽略)")
	flags.IntVar(&globalFlags.Port, "port", 0, "WebSocket 端口 (覆盖 WS_PORT)")
	flags.StringVar(&globalFlags.LogLevel, "log-level", "", "日志级别: debug|info|warn|error (覆盖 LOG_LEVEL)")
	flags.StringVar(&globalFlags.Network, "network", "", "网络: mainnet|testnet|自定义 (覆盖 NETWORK)")

	rootCmd.AddCommand(serveCmd, versionCmd, keygenCmd)
}

// loadConfig 读取环境配置并应用显式设置的命令行标志
func loadConfig(cmd *cobra.Command) (*types.AppConfig, error) {
	cfg, err := config.LoadAppConfig(globalFlags.EnvFile)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cmd, cfg)
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *types.AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.API.Port = types.IntPtr(globalFlags.Port)
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = types.StringPtr(strings.ToLower(globalFlags.LogLevel))
	}
	if flags.Changed("network") {
		cfg.Overlay.Network = types.StringPtr(globalFlags.Network)
	}
}
