package app

import (
	"github.com/weisyn/tonrelay/pkg/interfaces/config"
	"github.com/weisyn/tonrelay/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项
// 实现config.AppOptions接口
type options struct {
	// 用户配置（环境变量 + 命令行覆盖）
	appConfig *types.AppConfig

	// API支持开关 (默认启用)
	enableAPI bool
}

// 编译时校验options是否实现了config.AppOptions接口
var _ config.AppOptions = (*options)(nil)

// WithAppConfig 设置用户配置
func WithAppConfig(cfg *types.AppConfig) Option {
	return func(o *options) {
		if cfg != nil {
			o.appConfig = cfg
		}
	}
}

// WithoutAPI 禁用WebSocket接入层，只运行覆盖网络与中继核心
func WithoutAPI() Option {
	return func(o *options) {
		o.enableAPI = false
	}
}

// newOptions 创建选项
func newOptions(opts ...Option) *options {
	options := &options{
		appConfig: &types.AppConfig{},
		enableAPI: true,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetAppConfig 返回应用程序配置
func (o *options) GetAppConfig() *types.AppConfig {
	return o.appConfig
}
