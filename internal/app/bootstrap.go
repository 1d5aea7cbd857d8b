package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/weisyn/tonrelay/internal/api"
	config "github.com/weisyn/tonrelay/internal/config"
	"github.com/weisyn/tonrelay/internal/core/codec"
	"github.com/weisyn/tonrelay/internal/core/infrastructure/clock"
	log "github.com/weisyn/tonrelay/internal/core/infrastructure/log"
	"github.com/weisyn/tonrelay/internal/core/overlay"
	"github.com/weisyn/tonrelay/internal/core/relay"
	configiface "github.com/weisyn/tonrelay/pkg/interfaces/config"
)

// startTimeout 启动超时（覆盖网络引导在后台进行，不计入）
const startTimeout = 60 * time.Second

// Framework layers
const (
	// 基础设施层
	LayerInfrastructure = "infrastructure"
	// 通信层
	LayerCommunication = "communication"
	// 业务逻辑层
	LayerBusiness = "business"
	// 应用层
	LayerApplication = "application"
)

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts  *options
	fxApp *fx.App
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// SetupInfrastructureLayer 设置基础设施层模块
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func() configiface.AppOptions { return b.opts }),
		config.Module(), // 1. 配置(不依赖其他)
		log.Module(),    // 2. 日志(依赖配置)
		clock.Module(),  // 3. 时钟
	}
}

// SetupCommunicationLayer 设置通信层模块
func (b *Bootstrap) SetupCommunicationLayer() []fx.Option {
	return []fx.Option{
		overlay.Module(), // 覆盖网络(依赖配置、日志，可选指标)
	}
}

// SetupBusinessLayer 设置业务逻辑层模块
// 加载顺序：解码器 -> 中继核心（注册表、去重、路由、管线）
func (b *Bootstrap) SetupBusinessLayer() []fx.Option {
	return []fx.Option{
		codec.Module(),
		relay.Module(),
	}
}

// SetupApplicationLayer 设置应用层模块
func (b *Bootstrap) SetupApplicationLayer() []fx.Option {
	if !b.opts.enableAPI {
		return nil
	}
	return []fx.Option{
		api.Module(),
	}
}

// SetupModules 按层组装所有模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var allModules []fx.Option
	allModules = append(allModules, b.SetupInfrastructureLayer()...)
	allModules = append(allModules, b.SetupCommunicationLayer()...)
	allModules = append(allModules, b.SetupBusinessLayer()...)
	allModules = append(allModules, b.SetupApplicationLayer()...)
	return allModules
}

// CreateFxApp 创建并配置fx应用
func (b *Bootstrap) CreateFxApp() error {
	b.fxApp = fx.New(
		fx.Options(b.SetupModules()...),
		// 禁用fx内部日志
		fx.NopLogger,
	)
	if err := b.fxApp.Err(); err != nil {
		return fmt.Errorf("装配模块失败: %w", err)
	}
	return nil
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}

// BootstrapApp 执行完整的引导过程并返回应用实例
func BootstrapApp(options ...Option) (App, error) {
	bootstrap := NewBootstrap(newOptions(options...))

	if err := bootstrap.CreateFxApp(); err != nil {
		return nil, err
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startupCancel()
	if err := bootstrap.StartApp(startupCtx); err != nil {
		return nil, err
	}

	return &internalApp{
		bootstrap: bootstrap,
		done:      bootstrap.fxApp.Wait(),
	}, nil
}
