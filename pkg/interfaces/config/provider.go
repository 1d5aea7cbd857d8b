// Package config provides configuration provider interfaces.
package config

import (
	apiconfig "github.com/weisyn/tonrelay/internal/config/api"
	logconfig "github.com/weisyn/tonrelay/internal/config/log"
	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	relayconfig "github.com/weisyn/tonrelay/internal/config/relay"
)

// Provider 配置提供者接口
type Provider interface {
	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetAPI 获取 WebSocket 接入配置
	GetAPI() *apiconfig.APIOptions

	// GetRelay 获取中继核心配置（去重、进度日志）
	GetRelay() *relayconfig.RelayOptions

	// GetOverlay 获取覆盖网络配置
	GetOverlay() *overlayconfig.OverlayOptions

	// Validate 启动前校验配置组合
	Validate() error
}
