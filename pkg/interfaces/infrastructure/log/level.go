// Package log 定义中继服务的日志接口
//
// 📃 **日志接口**
// - Logger：各模块统一使用的日志记录器
// - 级别常量：与配置中的 LOG_LEVEL 取值一致
package log

import "github.com/weisyn/tonrelay/pkg/types"

// LogLevel 日志级别别名
type LogLevel = types.LogLevel

const (
	DebugLevel = types.DebugLevel
	InfoLevel  = types.InfoLevel
	WarnLevel  = types.WarnLevel
	ErrorLevel = types.ErrorLevel
	FatalLevel = types.FatalLevel
)
