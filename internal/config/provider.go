package config

import (
	"github.com/weisyn/tonrelay/internal/config/api"
	"github.com/weisyn/tonrelay/internal/config/log"
	"github.com/weisyn/tonrelay/internal/config/overlay"
	"github.com/weisyn/tonrelay/internal/config/relay"
	"github.com/weisyn/tonrelay/pkg/interfaces/config"
	"github.com/weisyn/tonrelay/pkg/types"
)

// Provider 实现配置提供者接口
type Provider struct {
	appConfig *types.AppConfig
}

// NewProvider 创建配置提供者
func NewProvider(appConfig *types.AppConfig) config.Provider {
	return &Provider{
		appConfig: appConfig,
	}
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	var userLogConfig *types.UserLogConfig
	if p.appConfig != nil {
		userLogConfig = &p.appConfig.Log
	}
	return log.New(userLogConfig).GetOptions()
}

// GetAPI 获取 WebSocket 接入配置
func (p *Provider) GetAPI() *api.APIOptions {
	var userAPIConfig *types.UserAPIConfig
	if p.appConfig != nil {
		userAPIConfig = &p.appConfig.API
	}
	return api.New(userAPIConfig).GetOptions()
}

// GetRelay 获取中继核心配置
func (p *Provider) GetRelay() *relay.RelayOptions {
	var userRelayConfig *types.UserRelayConfig
	if p.appConfig != nil {
		userRelayConfig = &p.appConfig.Relay
	}
	return relay.New(userRelayConfig).GetOptions()
}

// GetOverlay 获取覆盖网络配置
func (p *Provider) GetOverlay() *overlay.OverlayOptions {
	var userOverlayConfig *types.UserOverlayConfig
	if p.appConfig != nil {
		userOverlayConfig = &p.appConfig.Overlay
	}
	return overlay.New(userOverlayConfig).GetOptions()
}

// Validate 校验跨字段约束，收集全部错误一次返回
func (p *Provider) Validate() error {
	var errs []error

	if err := p.GetOverlay().Validate(); err != nil {
		errs = append(errs, &ValidationError{Field: "overlay", Message: err.Error(), Err: err})
	}

	relayOptions := p.GetRelay()
	switch relayOptions.DedupBackend {
	case relay.BackendMemory, relay.BackendRedis:
	default:
		errs = append(errs, &ValidationError{
			Field:   "relay.dedup_backend",
			Message: "unsupported backend " + relayOptions.DedupBackend,
			Err:     ErrUnsupportedBackend,
		})
	}

	logOptions := p.GetLog()
	if _, ok := logOptions.LevelMap[logOptions.Level]; !ok {
		errs = append(errs, &ValidationError{
			Field:   "log.level",
			Message: "unknown level " + logOptions.Level,
			Err:     ErrUnknownLogLevel,
		})
	}

	return joinValidationErrors(errs)
}
