package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weisyn/tonrelay/internal/app"
	"github.com/weisyn/tonrelay/internal/core/infrastructure/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动中继服务",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// 容器内存上限自动感知，日志模块尚未初始化，直接写 stderr
	if target, limit, err := runtime.ApplyMemoryLimit(runtime.DefaultReserveRatio); err != nil {
		fmt.Fprintf(os.Stderr, "自动设置内存上限失败: %v\n", err)
	} else if target > 0 {
		fmt.Fprintf(os.Stderr, "已按 cgroup 上限设置内存上限: limit=%d target=%d\n", limit, target)
	}

	relayApp, err := app.Start(app.WithAppConfig(cfg))
	if err != nil {
		return err
	}
	return relayApp.Wait()
}
