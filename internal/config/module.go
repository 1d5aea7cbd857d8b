// Package config 提供应用配置管理功能
package config

import (
	"go.uber.org/fx"

	apiconfig "github.com/weisyn/tonrelay/internal/config/api"
	logconfig "github.com/weisyn/tonrelay/internal/config/log"
	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	relayconfig "github.com/weisyn/tonrelay/internal/config/relay"
	"github.com/weisyn/tonrelay/pkg/interfaces/config"
	"github.com/weisyn/tonrelay/pkg/types"
)

// ConfigParams 定义配置模块的依赖参数
type ConfigParams struct {
	fx.In

	// 应用配置选项
	AppOptions config.AppOptions `optional:"true"`
}

// ConfigOutput 定义配置模块的输出结构
type ConfigOutput struct {
	fx.Out

	// 配置提供者
	Provider config.Provider
}

// Module 返回配置模块
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			ProvideConfigServices,
			// 提供具体的配置类型用于依赖注入
			func(provider config.Provider) *logconfig.LogOptions {
				return provider.GetLog()
			},
			func(provider config.Provider) *apiconfig.APIOptions {
				return provider.GetAPI()
			},
			func(provider config.Provider) *relayconfig.RelayOptions {
				return provider.GetRelay()
			},
			func(provider config.Provider) *overlayconfig.OverlayOptions {
				return provider.GetOverlay()
			},
		),
	)
}

// ProvideConfigServices 提供配置服务，校验失败时阻止启动
func ProvideConfigServices(params ConfigParams) (ConfigOutput, error) {
	var appConfig *types.AppConfig
	if params.AppOptions != nil {
		appConfig = params.AppOptions.GetAppConfig()
	}

	provider := NewProvider(appConfig)
	if err := provider.Validate(); err != nil {
		return ConfigOutput{}, err
	}

	return ConfigOutput{
		Provider: provider,
	}, nil
}
