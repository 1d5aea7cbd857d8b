package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	log "github.com/weisyn/tonrelay/internal/core/infrastructure/log"
)

// stopTimeout 优雅退出的最长等待时间
const stopTimeout = 15 * time.Second

// App 是中继应用的对外接口
type App interface {
	// Stop 停止应用
	Stop() error

	// Wait 阻塞直到收到退出信号，然后停止应用
	Wait() error
}

// internalApp 中继应用的内部实现
type internalApp struct {
	bootstrap *Bootstrap
	done      <-chan fx.ShutdownSignal
}

// Stop 停止应用
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 等待 SIGINT/SIGTERM 后优雅退出
func (a *internalApp) Wait() error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		log.GetLogger().Infof("收到信号 %v，正在优雅退出", sig)
	case sig := <-a.done:
		log.GetLogger().Infof("应用请求退出: %v", sig.Signal)
	}
	return a.Stop()
}

// Start 启动中继应用
func Start(appOptions ...Option) (App, error) {
	return BootstrapApp(appOptions...)
}
